// Package server binds the Martin RPC surface onto the session registry.
// Every unary method is a thin wiring step over the venue client; the
// streaming methods pump bounded subscription queues until the stop
// sentinel arrives.
package server

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/session"
	"github.com/exwrap/martin/internal/venue"
	"github.com/exwrap/martin/rpcapi"
)

// Server implements rpcapi.MartinServer.
type Server struct {
	reg     *session.Registry
	version string
	log     observability.Logger
}

var _ rpcapi.MartinServer = (*Server)(nil)

// New builds the RPC façade over reg.
func New(reg *session.Registry, version string, log observability.Logger) *Server {
	if log == nil {
		log = observability.Log()
	}
	return &Server{reg: reg, version: version, log: log}
}

// rpcErr maps the error taxonomy onto RPC status codes: validation, auth
// and upstream 4xx are precondition failures, throttling is resource
// exhaustion, everything else is unknown.
func rpcErr(err error) error {
	switch errs.CodeOf(err) {
	case errs.CodeValidation, errs.CodeAuth, errs.CodeHTTP:
		return status.Error(codes.FailedPrecondition, err.Error())
	case errs.CodeRateLimited:
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

func (s *Server) session(id int64) (*session.Session, error) {
	sess, err := s.reg.Get(id)
	if err != nil {
		return nil, rpcErr(err)
	}
	return sess, nil
}

// OpenClientConnection finds or creates the session for the account name.
func (s *Server) OpenClientConnection(ctx context.Context, req *rpcapi.OpenClientConnectionRequest) (*rpcapi.OpenClientConnectionReply, error) {
	sess, err := s.reg.Open(ctx, req.AccountName, req.RateLimiter)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.OpenClientConnectionReply{
		ClientID:   sess.ID,
		SrvVersion: s.version,
		Exchange:   string(sess.Client.Venue()),
	}, nil
}

// FetchServerTime returns the venue clock.
func (s *Server) FetchServerTime(ctx context.Context, req *rpcapi.FetchServerTimeRequest) (*rpcapi.FetchServerTimeReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	ts, err := sess.Client.FetchServerTime(ctx)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.FetchServerTimeReply{ServerTime: ts}, nil
}

// ResetRateLimit clears the latch once its window has passed.
func (s *Server) ResetRateLimit(_ context.Context, req *rpcapi.ResetRateLimitRequest) (*rpcapi.ResetRateLimitReply, error) {
	if _, err := s.session(req.ClientID); err != nil {
		return nil, err
	}
	return &rpcapi.ResetRateLimitReply{Success: s.reg.ResetRateLimit(req.RateLimiter)}, nil
}

// FetchOpenOrders lists the open orders for symbol.
func (s *Server) FetchOpenOrders(ctx context.Context, req *rpcapi.FetchOpenOrdersRequest) (*rpcapi.FetchOpenOrdersReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	orders, err := sess.Client.FetchOpenOrders(ctx, req.Symbol)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.FetchOpenOrdersReply{
		Items:       ordersOut(orders),
		RateLimiter: s.reg.RateLimiter(),
	}, nil
}

// FetchOrder fetches one order, optionally synthesizing execution reports
// into the caller's OnOrderUpdate queue.
func (s *Server) FetchOrder(ctx context.Context, req *rpcapi.FetchOrderRequest) (*rpcapi.Order, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	order, err := s.reg.FetchOrder(ctx, sess, req.Symbol, req.OrderID, req.FilledUpdateCall)
	if err != nil {
		return nil, rpcErr(err)
	}
	return orderOut(order), nil
}

// CancelAllOrders mass-cancels the symbol's open orders.
func (s *Server) CancelAllOrders(ctx context.Context, req *rpcapi.CancelAllOrdersRequest) (*rpcapi.CancelAllOrdersReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	cancelled, err := sess.Client.CancelAllOrders(ctx, req.Symbol)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.CancelAllOrdersReply{Items: ordersOut(cancelled)}, nil
}

// FetchExchangeInfoSymbol returns one symbol descriptor.
func (s *Server) FetchExchangeInfoSymbol(_ context.Context, req *rpcapi.FetchExchangeInfoSymbolRequest) (*rpcapi.SymbolInfo, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	info, err := sess.Client.SymbolInfo(req.Symbol)
	if err != nil {
		return nil, rpcErr(err)
	}
	return symbolInfoOut(info), nil
}

// FetchAccountInformation returns the balance snapshot.
func (s *Server) FetchAccountInformation(ctx context.Context, req *rpcapi.FetchAccountInformationRequest) (*rpcapi.FetchAccountInformationReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	info, err := sess.Client.FetchAccountInformation(ctx)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.FetchAccountInformationReply{
		MakerCommission: info.MakerCommission,
		TakerCommission: info.TakerCommission,
		CanTrade:        info.CanTrade,
		CanWithdraw:     info.CanWithdraw,
		CanDeposit:      info.CanDeposit,
		UpdateTime:      info.UpdateTime,
		AccountType:     info.AccountType,
		Balances:        balancesOut(info.Balances),
	}, nil
}

// FetchFundingWallet returns funding balances.
func (s *Server) FetchFundingWallet(ctx context.Context, req *rpcapi.FetchFundingWalletRequest) (*rpcapi.FetchFundingWalletReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	lines, err := sess.Client.FetchFundingWallet(ctx, req.Asset, req.NeedBtcValuation)
	if err != nil {
		return nil, rpcErr(err)
	}
	out := make([]rpcapi.FundingBalance, 0, len(lines))
	for _, l := range lines {
		out = append(out, rpcapi.FundingBalance{
			Asset:        l.Asset,
			Free:         l.Free,
			Locked:       l.Locked,
			Freeze:       l.Freeze,
			Withdrawing:  l.Withdrawing,
			BtcValuation: l.BtcValuation,
		})
	}
	return &rpcapi.FetchFundingWalletReply{Balances: out}, nil
}

// FetchOrderBook returns the top-5 book.
func (s *Server) FetchOrderBook(ctx context.Context, req *rpcapi.FetchOrderBookRequest) (*rpcapi.FetchOrderBookReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	book, err := sess.Client.FetchOrderBook(ctx, req.Symbol, 5)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.FetchOrderBookReply{
		LastUpdateID: book.LastUpdateID,
		Bids:         levelsOut(book.Bids),
		Asks:         levelsOut(book.Asks),
	}, nil
}

// FetchSymbolPriceTicker returns the last-price quote.
func (s *Server) FetchSymbolPriceTicker(ctx context.Context, req *rpcapi.FetchSymbolPriceTickerRequest) (*rpcapi.FetchSymbolPriceTickerReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	tick, err := sess.Client.FetchSymbolPriceTicker(ctx, req.Symbol)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.FetchSymbolPriceTickerReply{Symbol: tick.Symbol, Price: tick.Price}, nil
}

// FetchTickerPriceChangeStatistics returns the rolling 24h summary.
func (s *Server) FetchTickerPriceChangeStatistics(ctx context.Context, req *rpcapi.FetchTickerPriceChangeStatisticsRequest) (*rpcapi.FetchTickerPriceChangeStatisticsReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	st, err := sess.Client.FetchTickerPriceChangeStatistics(ctx, req.Symbol)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.FetchTickerPriceChangeStatisticsReply{
		Symbol:             st.Symbol,
		PriceChange:        st.PriceChange,
		PriceChangePercent: st.PriceChangePercent,
		WeightedAvgPrice:   st.WeightedAvgPrice,
		PrevClosePrice:     st.PrevClosePrice,
		LastPrice:          st.LastPrice,
		LastQty:            st.LastQty,
		BidPrice:           st.BidPrice,
		AskPrice:           st.AskPrice,
		OpenPrice:          st.OpenPrice,
		HighPrice:          st.HighPrice,
		LowPrice:           st.LowPrice,
		Volume:             st.Volume,
		QuoteVolume:        st.QuoteVolume,
		OpenTime:           st.OpenTime,
		CloseTime:          st.CloseTime,
		FirstID:            st.FirstID,
		LastID:             st.LastID,
		Count:              st.Count,
	}, nil
}

// FetchKlines returns historical candles as positional arrays.
func (s *Server) FetchKlines(ctx context.Context, req *rpcapi.FetchKlinesRequest) (*rpcapi.FetchKlinesReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	klines, err := sess.Client.FetchKlines(ctx, req.Symbol, req.Interval, req.Limit, 0, 0)
	if err != nil {
		return nil, rpcErr(err)
	}
	out := make([]rpcapi.Kline, 0, len(klines))
	for _, k := range klines {
		out = append(out, klineOut(k))
	}
	return &rpcapi.FetchKlinesReply{Klines: out}, nil
}

// FetchAccountTradeList returns account trades.
func (s *Server) FetchAccountTradeList(ctx context.Context, req *rpcapi.FetchAccountTradeListRequest) (*rpcapi.FetchAccountTradeListReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	trades, err := sess.Client.FetchAccountTradeList(ctx, req.Symbol, req.StartTime, req.Limit)
	if err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.FetchAccountTradeListReply{Items: tradesOut(trades)}, nil
}

// CreateLimitOrder places a GTC limit order.
func (s *Server) CreateLimitOrder(ctx context.Context, req *rpcapi.CreateLimitOrderRequest) (*rpcapi.Order, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	side := schema.SideSell
	if req.BuySide {
		side = schema.SideBuy
	}
	order, err := sess.Client.CreateOrder(ctx, venue.OrderRequest{
		Symbol:           req.Symbol,
		Side:             side,
		Type:             schema.TypeLimit,
		TimeInForce:      schema.TIFGTC,
		Quantity:         req.Quantity,
		Price:            req.Price,
		NewClientOrderID: req.NewClientOrderID,
	})
	if err != nil {
		return nil, rpcErr(err)
	}
	return orderOut(order), nil
}

// CancelOrder cancels one order, confirming CANCELED within the status
// timeout.
func (s *Server) CancelOrder(ctx context.Context, req *rpcapi.CancelOrderRequest) (*rpcapi.Order, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	order, err := sess.Client.CancelOrder(ctx, req.Symbol, req.OrderID)
	if err != nil {
		return nil, rpcErr(err)
	}
	return orderOut(order), nil
}

// StartStream starts the trade id's market and user listeners once the
// expected subscriptions are registered.
func (s *Server) StartStream(ctx context.Context, req *rpcapi.StartStreamRequest) (*rpcapi.StartStreamReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	if err := s.reg.StartStream(ctx, sess, req.TradeID, req.MarketStreamCount); err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.StartStreamReply{Success: true}, nil
}

// StopStream tears down the trade id's listeners and queues.
func (s *Server) StopStream(ctx context.Context, req *rpcapi.StopStreamRequest) (*rpcapi.StopStreamReply, error) {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return nil, err
	}
	if err := s.reg.StopStream(ctx, sess, req.TradeID); err != nil {
		return nil, rpcErr(err)
	}
	return &rpcapi.StopStreamReply{Success: true}, nil
}
