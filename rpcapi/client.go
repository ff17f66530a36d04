package rpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// MartinClient is the client-side contract for the Martin service.
type MartinClient interface {
	OpenClientConnection(ctx context.Context, in *OpenClientConnectionRequest, opts ...grpc.CallOption) (*OpenClientConnectionReply, error)
	FetchServerTime(ctx context.Context, in *FetchServerTimeRequest, opts ...grpc.CallOption) (*FetchServerTimeReply, error)
	ResetRateLimit(ctx context.Context, in *ResetRateLimitRequest, opts ...grpc.CallOption) (*ResetRateLimitReply, error)
	FetchOpenOrders(ctx context.Context, in *FetchOpenOrdersRequest, opts ...grpc.CallOption) (*FetchOpenOrdersReply, error)
	FetchOrder(ctx context.Context, in *FetchOrderRequest, opts ...grpc.CallOption) (*Order, error)
	CancelAllOrders(ctx context.Context, in *CancelAllOrdersRequest, opts ...grpc.CallOption) (*CancelAllOrdersReply, error)
	FetchExchangeInfoSymbol(ctx context.Context, in *FetchExchangeInfoSymbolRequest, opts ...grpc.CallOption) (*SymbolInfo, error)
	FetchAccountInformation(ctx context.Context, in *FetchAccountInformationRequest, opts ...grpc.CallOption) (*FetchAccountInformationReply, error)
	FetchFundingWallet(ctx context.Context, in *FetchFundingWalletRequest, opts ...grpc.CallOption) (*FetchFundingWalletReply, error)
	FetchOrderBook(ctx context.Context, in *FetchOrderBookRequest, opts ...grpc.CallOption) (*FetchOrderBookReply, error)
	FetchSymbolPriceTicker(ctx context.Context, in *FetchSymbolPriceTickerRequest, opts ...grpc.CallOption) (*FetchSymbolPriceTickerReply, error)
	FetchTickerPriceChangeStatistics(ctx context.Context, in *FetchTickerPriceChangeStatisticsRequest, opts ...grpc.CallOption) (*FetchTickerPriceChangeStatisticsReply, error)
	FetchKlines(ctx context.Context, in *FetchKlinesRequest, opts ...grpc.CallOption) (*FetchKlinesReply, error)
	FetchAccountTradeList(ctx context.Context, in *FetchAccountTradeListRequest, opts ...grpc.CallOption) (*FetchAccountTradeListReply, error)
	CreateLimitOrder(ctx context.Context, in *CreateLimitOrderRequest, opts ...grpc.CallOption) (*Order, error)
	CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*Order, error)
	StartStream(ctx context.Context, in *StartStreamRequest, opts ...grpc.CallOption) (*StartStreamReply, error)
	StopStream(ctx context.Context, in *StopStreamRequest, opts ...grpc.CallOption) (*StopStreamReply, error)
	OnKlinesUpdate(ctx context.Context, in *OnKlinesUpdateRequest, opts ...grpc.CallOption) (Martin_OnKlinesUpdateClient, error)
	OnTickerUpdate(ctx context.Context, in *OnTickerUpdateRequest, opts ...grpc.CallOption) (Martin_OnTickerUpdateClient, error)
	OnOrderBookUpdate(ctx context.Context, in *OnOrderBookUpdateRequest, opts ...grpc.CallOption) (Martin_OnOrderBookUpdateClient, error)
	OnFundsUpdate(ctx context.Context, in *OnFundsUpdateRequest, opts ...grpc.CallOption) (Martin_OnFundsUpdateClient, error)
	OnOrderUpdate(ctx context.Context, in *OnOrderUpdateRequest, opts ...grpc.CallOption) (Martin_OnOrderUpdateClient, error)
}

type martinClient struct {
	cc grpc.ClientConnInterface
}

// NewMartinClient builds a client on cc. Dial with
// grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)) so the
// JSON codec is selected.
func NewMartinClient(cc grpc.ClientConnInterface) MartinClient {
	return &martinClient{cc}
}

func invoke[Req any, Reply any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Reply, error) {
	out := new(Reply)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *martinClient) OpenClientConnection(ctx context.Context, in *OpenClientConnectionRequest, opts ...grpc.CallOption) (*OpenClientConnectionReply, error) {
	return invoke[OpenClientConnectionRequest, OpenClientConnectionReply](ctx, c.cc, "OpenClientConnection", in, opts)
}

func (c *martinClient) FetchServerTime(ctx context.Context, in *FetchServerTimeRequest, opts ...grpc.CallOption) (*FetchServerTimeReply, error) {
	return invoke[FetchServerTimeRequest, FetchServerTimeReply](ctx, c.cc, "FetchServerTime", in, opts)
}

func (c *martinClient) ResetRateLimit(ctx context.Context, in *ResetRateLimitRequest, opts ...grpc.CallOption) (*ResetRateLimitReply, error) {
	return invoke[ResetRateLimitRequest, ResetRateLimitReply](ctx, c.cc, "ResetRateLimit", in, opts)
}

func (c *martinClient) FetchOpenOrders(ctx context.Context, in *FetchOpenOrdersRequest, opts ...grpc.CallOption) (*FetchOpenOrdersReply, error) {
	return invoke[FetchOpenOrdersRequest, FetchOpenOrdersReply](ctx, c.cc, "FetchOpenOrders", in, opts)
}

func (c *martinClient) FetchOrder(ctx context.Context, in *FetchOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[FetchOrderRequest, Order](ctx, c.cc, "FetchOrder", in, opts)
}

func (c *martinClient) CancelAllOrders(ctx context.Context, in *CancelAllOrdersRequest, opts ...grpc.CallOption) (*CancelAllOrdersReply, error) {
	return invoke[CancelAllOrdersRequest, CancelAllOrdersReply](ctx, c.cc, "CancelAllOrders", in, opts)
}

func (c *martinClient) FetchExchangeInfoSymbol(ctx context.Context, in *FetchExchangeInfoSymbolRequest, opts ...grpc.CallOption) (*SymbolInfo, error) {
	return invoke[FetchExchangeInfoSymbolRequest, SymbolInfo](ctx, c.cc, "FetchExchangeInfoSymbol", in, opts)
}

func (c *martinClient) FetchAccountInformation(ctx context.Context, in *FetchAccountInformationRequest, opts ...grpc.CallOption) (*FetchAccountInformationReply, error) {
	return invoke[FetchAccountInformationRequest, FetchAccountInformationReply](ctx, c.cc, "FetchAccountInformation", in, opts)
}

func (c *martinClient) FetchFundingWallet(ctx context.Context, in *FetchFundingWalletRequest, opts ...grpc.CallOption) (*FetchFundingWalletReply, error) {
	return invoke[FetchFundingWalletRequest, FetchFundingWalletReply](ctx, c.cc, "FetchFundingWallet", in, opts)
}

func (c *martinClient) FetchOrderBook(ctx context.Context, in *FetchOrderBookRequest, opts ...grpc.CallOption) (*FetchOrderBookReply, error) {
	return invoke[FetchOrderBookRequest, FetchOrderBookReply](ctx, c.cc, "FetchOrderBook", in, opts)
}

func (c *martinClient) FetchSymbolPriceTicker(ctx context.Context, in *FetchSymbolPriceTickerRequest, opts ...grpc.CallOption) (*FetchSymbolPriceTickerReply, error) {
	return invoke[FetchSymbolPriceTickerRequest, FetchSymbolPriceTickerReply](ctx, c.cc, "FetchSymbolPriceTicker", in, opts)
}

func (c *martinClient) FetchTickerPriceChangeStatistics(ctx context.Context, in *FetchTickerPriceChangeStatisticsRequest, opts ...grpc.CallOption) (*FetchTickerPriceChangeStatisticsReply, error) {
	return invoke[FetchTickerPriceChangeStatisticsRequest, FetchTickerPriceChangeStatisticsReply](ctx, c.cc, "FetchTickerPriceChangeStatistics", in, opts)
}

func (c *martinClient) FetchKlines(ctx context.Context, in *FetchKlinesRequest, opts ...grpc.CallOption) (*FetchKlinesReply, error) {
	return invoke[FetchKlinesRequest, FetchKlinesReply](ctx, c.cc, "FetchKlines", in, opts)
}

func (c *martinClient) FetchAccountTradeList(ctx context.Context, in *FetchAccountTradeListRequest, opts ...grpc.CallOption) (*FetchAccountTradeListReply, error) {
	return invoke[FetchAccountTradeListRequest, FetchAccountTradeListReply](ctx, c.cc, "FetchAccountTradeList", in, opts)
}

func (c *martinClient) CreateLimitOrder(ctx context.Context, in *CreateLimitOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[CreateLimitOrderRequest, Order](ctx, c.cc, "CreateLimitOrder", in, opts)
}

func (c *martinClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[CancelOrderRequest, Order](ctx, c.cc, "CancelOrder", in, opts)
}

func (c *martinClient) StartStream(ctx context.Context, in *StartStreamRequest, opts ...grpc.CallOption) (*StartStreamReply, error) {
	return invoke[StartStreamRequest, StartStreamReply](ctx, c.cc, "StartStream", in, opts)
}

func (c *martinClient) StopStream(ctx context.Context, in *StopStreamRequest, opts ...grpc.CallOption) (*StopStreamReply, error) {
	return invoke[StopStreamRequest, StopStreamReply](ctx, c.cc, "StopStream", in, opts)
}

func openStream(ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, in any, opts []grpc.CallOption) (grpc.ClientStream, error) {
	stream, err := cc.NewStream(ctx, desc, "/"+ServiceName+"/"+method, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}

// Martin_OnKlinesUpdateClient is the receive side of the candle stream.
type Martin_OnKlinesUpdateClient interface {
	Recv() (*CandleFrame, error)
	grpc.ClientStream
}

type martinOnKlinesUpdateClient struct{ grpc.ClientStream }

func (c *martinOnKlinesUpdateClient) Recv() (*CandleFrame, error) {
	m := new(CandleFrame)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *martinClient) OnKlinesUpdate(ctx context.Context, in *OnKlinesUpdateRequest, opts ...grpc.CallOption) (Martin_OnKlinesUpdateClient, error) {
	stream, err := openStream(ctx, c.cc, &MartinServiceDesc.Streams[0], "OnKlinesUpdate", in, opts)
	if err != nil {
		return nil, err
	}
	return &martinOnKlinesUpdateClient{stream}, nil
}

// Martin_OnTickerUpdateClient is the receive side of the ticker stream.
type Martin_OnTickerUpdateClient interface {
	Recv() (*TickerFrame, error)
	grpc.ClientStream
}

type martinOnTickerUpdateClient struct{ grpc.ClientStream }

func (c *martinOnTickerUpdateClient) Recv() (*TickerFrame, error) {
	m := new(TickerFrame)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *martinClient) OnTickerUpdate(ctx context.Context, in *OnTickerUpdateRequest, opts ...grpc.CallOption) (Martin_OnTickerUpdateClient, error) {
	stream, err := openStream(ctx, c.cc, &MartinServiceDesc.Streams[1], "OnTickerUpdate", in, opts)
	if err != nil {
		return nil, err
	}
	return &martinOnTickerUpdateClient{stream}, nil
}

// Martin_OnOrderBookUpdateClient is the receive side of the depth stream.
type Martin_OnOrderBookUpdateClient interface {
	Recv() (*OrderBookFrame, error)
	grpc.ClientStream
}

type martinOnOrderBookUpdateClient struct{ grpc.ClientStream }

func (c *martinOnOrderBookUpdateClient) Recv() (*OrderBookFrame, error) {
	m := new(OrderBookFrame)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *martinClient) OnOrderBookUpdate(ctx context.Context, in *OnOrderBookUpdateRequest, opts ...grpc.CallOption) (Martin_OnOrderBookUpdateClient, error) {
	stream, err := openStream(ctx, c.cc, &MartinServiceDesc.Streams[2], "OnOrderBookUpdate", in, opts)
	if err != nil {
		return nil, err
	}
	return &martinOnOrderBookUpdateClient{stream}, nil
}

// Martin_OnFundsUpdateClient is the receive side of the funds stream.
type Martin_OnFundsUpdateClient interface {
	Recv() (*FundsFrame, error)
	grpc.ClientStream
}

type martinOnFundsUpdateClient struct{ grpc.ClientStream }

func (c *martinOnFundsUpdateClient) Recv() (*FundsFrame, error) {
	m := new(FundsFrame)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *martinClient) OnFundsUpdate(ctx context.Context, in *OnFundsUpdateRequest, opts ...grpc.CallOption) (Martin_OnFundsUpdateClient, error) {
	stream, err := openStream(ctx, c.cc, &MartinServiceDesc.Streams[3], "OnFundsUpdate", in, opts)
	if err != nil {
		return nil, err
	}
	return &martinOnFundsUpdateClient{stream}, nil
}

// Martin_OnOrderUpdateClient is the receive side of the execution-report
// stream.
type Martin_OnOrderUpdateClient interface {
	Recv() (*OrderUpdateFrame, error)
	grpc.ClientStream
}

type martinOnOrderUpdateClient struct{ grpc.ClientStream }

func (c *martinOnOrderUpdateClient) Recv() (*OrderUpdateFrame, error) {
	m := new(OrderUpdateFrame)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *martinClient) OnOrderUpdate(ctx context.Context, in *OnOrderUpdateRequest, opts ...grpc.CallOption) (Martin_OnOrderUpdateClient, error) {
	stream, err := openStream(ctx, c.cc, &MartinServiceDesc.Streams[4], "OnOrderUpdate", in, opts)
	if err != nil {
		return nil, err
	}
	return &martinOnOrderUpdateClient{stream}, nil
}
