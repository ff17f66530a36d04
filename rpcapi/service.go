package rpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "martin.Martin"

// MartinServer is the server-side contract for the Martin service.
type MartinServer interface {
	OpenClientConnection(context.Context, *OpenClientConnectionRequest) (*OpenClientConnectionReply, error)
	FetchServerTime(context.Context, *FetchServerTimeRequest) (*FetchServerTimeReply, error)
	ResetRateLimit(context.Context, *ResetRateLimitRequest) (*ResetRateLimitReply, error)
	FetchOpenOrders(context.Context, *FetchOpenOrdersRequest) (*FetchOpenOrdersReply, error)
	FetchOrder(context.Context, *FetchOrderRequest) (*Order, error)
	CancelAllOrders(context.Context, *CancelAllOrdersRequest) (*CancelAllOrdersReply, error)
	FetchExchangeInfoSymbol(context.Context, *FetchExchangeInfoSymbolRequest) (*SymbolInfo, error)
	FetchAccountInformation(context.Context, *FetchAccountInformationRequest) (*FetchAccountInformationReply, error)
	FetchFundingWallet(context.Context, *FetchFundingWalletRequest) (*FetchFundingWalletReply, error)
	FetchOrderBook(context.Context, *FetchOrderBookRequest) (*FetchOrderBookReply, error)
	FetchSymbolPriceTicker(context.Context, *FetchSymbolPriceTickerRequest) (*FetchSymbolPriceTickerReply, error)
	FetchTickerPriceChangeStatistics(context.Context, *FetchTickerPriceChangeStatisticsRequest) (*FetchTickerPriceChangeStatisticsReply, error)
	FetchKlines(context.Context, *FetchKlinesRequest) (*FetchKlinesReply, error)
	FetchAccountTradeList(context.Context, *FetchAccountTradeListRequest) (*FetchAccountTradeListReply, error)
	CreateLimitOrder(context.Context, *CreateLimitOrderRequest) (*Order, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*Order, error)
	StartStream(context.Context, *StartStreamRequest) (*StartStreamReply, error)
	StopStream(context.Context, *StopStreamRequest) (*StopStreamReply, error)
	OnKlinesUpdate(*OnKlinesUpdateRequest, Martin_OnKlinesUpdateServer) error
	OnTickerUpdate(*OnTickerUpdateRequest, Martin_OnTickerUpdateServer) error
	OnOrderBookUpdate(*OnOrderBookUpdateRequest, Martin_OnOrderBookUpdateServer) error
	OnFundsUpdate(*OnFundsUpdateRequest, Martin_OnFundsUpdateServer) error
	OnOrderUpdate(*OnOrderUpdateRequest, Martin_OnOrderUpdateServer) error
}

// Martin_OnKlinesUpdateServer is the send side of the candle stream.
type Martin_OnKlinesUpdateServer interface {
	Send(*CandleFrame) error
	grpc.ServerStream
}

type martinOnKlinesUpdateServer struct{ grpc.ServerStream }

func (s *martinOnKlinesUpdateServer) Send(m *CandleFrame) error { return s.ServerStream.SendMsg(m) }

// Martin_OnTickerUpdateServer is the send side of the ticker stream.
type Martin_OnTickerUpdateServer interface {
	Send(*TickerFrame) error
	grpc.ServerStream
}

type martinOnTickerUpdateServer struct{ grpc.ServerStream }

func (s *martinOnTickerUpdateServer) Send(m *TickerFrame) error { return s.ServerStream.SendMsg(m) }

// Martin_OnOrderBookUpdateServer is the send side of the depth stream.
type Martin_OnOrderBookUpdateServer interface {
	Send(*OrderBookFrame) error
	grpc.ServerStream
}

type martinOnOrderBookUpdateServer struct{ grpc.ServerStream }

func (s *martinOnOrderBookUpdateServer) Send(m *OrderBookFrame) error { return s.ServerStream.SendMsg(m) }

// Martin_OnFundsUpdateServer is the send side of the funds stream.
type Martin_OnFundsUpdateServer interface {
	Send(*FundsFrame) error
	grpc.ServerStream
}

type martinOnFundsUpdateServer struct{ grpc.ServerStream }

func (s *martinOnFundsUpdateServer) Send(m *FundsFrame) error { return s.ServerStream.SendMsg(m) }

// Martin_OnOrderUpdateServer is the send side of the execution-report
// stream.
type Martin_OnOrderUpdateServer interface {
	Send(*OrderUpdateFrame) error
	grpc.ServerStream
}

type martinOnOrderUpdateServer struct{ grpc.ServerStream }

func (s *martinOnOrderUpdateServer) Send(m *OrderUpdateFrame) error { return s.ServerStream.SendMsg(m) }

// RegisterMartinServer registers srv on s.
func RegisterMartinServer(s grpc.ServiceRegistrar, srv MartinServer) {
	s.RegisterService(&MartinServiceDesc, srv)
}

func unaryHandler[Req any, Reply any](method string, call func(MartinServer, context.Context, *Req) (*Reply, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MartinServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MartinServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _Martin_OnKlinesUpdate_Handler(srv any, stream grpc.ServerStream) error {
	in := new(OnKlinesUpdateRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MartinServer).OnKlinesUpdate(in, &martinOnKlinesUpdateServer{stream})
}

func _Martin_OnTickerUpdate_Handler(srv any, stream grpc.ServerStream) error {
	in := new(OnTickerUpdateRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MartinServer).OnTickerUpdate(in, &martinOnTickerUpdateServer{stream})
}

func _Martin_OnOrderBookUpdate_Handler(srv any, stream grpc.ServerStream) error {
	in := new(OnOrderBookUpdateRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MartinServer).OnOrderBookUpdate(in, &martinOnOrderBookUpdateServer{stream})
}

func _Martin_OnFundsUpdate_Handler(srv any, stream grpc.ServerStream) error {
	in := new(OnFundsUpdateRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MartinServer).OnFundsUpdate(in, &martinOnFundsUpdateServer{stream})
}

func _Martin_OnOrderUpdate_Handler(srv any, stream grpc.ServerStream) error {
	in := new(OnOrderUpdateRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MartinServer).OnOrderUpdate(in, &martinOnOrderUpdateServer{stream})
}

// MartinServiceDesc is the hand-maintained service descriptor.
var MartinServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MartinServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenClientConnection", Handler: unaryHandler("OpenClientConnection", MartinServer.OpenClientConnection)},
		{MethodName: "FetchServerTime", Handler: unaryHandler("FetchServerTime", MartinServer.FetchServerTime)},
		{MethodName: "ResetRateLimit", Handler: unaryHandler("ResetRateLimit", MartinServer.ResetRateLimit)},
		{MethodName: "FetchOpenOrders", Handler: unaryHandler("FetchOpenOrders", MartinServer.FetchOpenOrders)},
		{MethodName: "FetchOrder", Handler: unaryHandler("FetchOrder", MartinServer.FetchOrder)},
		{MethodName: "CancelAllOrders", Handler: unaryHandler("CancelAllOrders", MartinServer.CancelAllOrders)},
		{MethodName: "FetchExchangeInfoSymbol", Handler: unaryHandler("FetchExchangeInfoSymbol", MartinServer.FetchExchangeInfoSymbol)},
		{MethodName: "FetchAccountInformation", Handler: unaryHandler("FetchAccountInformation", MartinServer.FetchAccountInformation)},
		{MethodName: "FetchFundingWallet", Handler: unaryHandler("FetchFundingWallet", MartinServer.FetchFundingWallet)},
		{MethodName: "FetchOrderBook", Handler: unaryHandler("FetchOrderBook", MartinServer.FetchOrderBook)},
		{MethodName: "FetchSymbolPriceTicker", Handler: unaryHandler("FetchSymbolPriceTicker", MartinServer.FetchSymbolPriceTicker)},
		{MethodName: "FetchTickerPriceChangeStatistics", Handler: unaryHandler("FetchTickerPriceChangeStatistics", MartinServer.FetchTickerPriceChangeStatistics)},
		{MethodName: "FetchKlines", Handler: unaryHandler("FetchKlines", MartinServer.FetchKlines)},
		{MethodName: "FetchAccountTradeList", Handler: unaryHandler("FetchAccountTradeList", MartinServer.FetchAccountTradeList)},
		{MethodName: "CreateLimitOrder", Handler: unaryHandler("CreateLimitOrder", MartinServer.CreateLimitOrder)},
		{MethodName: "CancelOrder", Handler: unaryHandler("CancelOrder", MartinServer.CancelOrder)},
		{MethodName: "StartStream", Handler: unaryHandler("StartStream", MartinServer.StartStream)},
		{MethodName: "StopStream", Handler: unaryHandler("StopStream", MartinServer.StopStream)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "OnKlinesUpdate", Handler: _Martin_OnKlinesUpdate_Handler, ServerStreams: true},
		{StreamName: "OnTickerUpdate", Handler: _Martin_OnTickerUpdate_Handler, ServerStreams: true},
		{StreamName: "OnOrderBookUpdate", Handler: _Martin_OnOrderBookUpdate_Handler, ServerStreams: true},
		{StreamName: "OnFundsUpdate", Handler: _Martin_OnFundsUpdate_Handler, ServerStreams: true},
		{StreamName: "OnOrderUpdate", Handler: _Martin_OnOrderUpdate_Handler, ServerStreams: true},
	},
}
