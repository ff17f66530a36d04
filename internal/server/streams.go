package server

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/bus"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/rpcapi"
)

// pump drains q into send until the stop sentinel, queue closure or the
// caller's departure. Caller-initiated cancellation ends the stream
// silently.
func pump(ctx context.Context, q *bus.Queue, send func(schema.Event) error) error {
	for {
		evt, err := q.Get(ctx)
		if err != nil {
			if errs.CodeOf(err) == errs.CodeStreamTerminal || ctx.Err() != nil {
				return nil
			}
			return rpcErr(err)
		}
		if _, stop := evt.(bus.StopSignal); stop {
			return nil
		}
		if err := send(evt); err != nil {
			return err
		}
	}
}

// parseIntervals accepts a JSON array of canonical intervals or a single
// bare interval string.
func parseIntervals(raw string) ([]string, error) {
	var intervals []string
	if err := json.Unmarshal([]byte(raw), &intervals); err != nil {
		if raw == "" {
			return nil, errs.Validation("empty interval list")
		}
		intervals = []string{raw}
	}
	if len(intervals) == 0 {
		return nil, errs.Validation("empty interval list")
	}
	return intervals, nil
}

// OnKlinesUpdate streams candle frames for every requested interval.
func (s *Server) OnKlinesUpdate(req *rpcapi.OnKlinesUpdateRequest, out rpcapi.Martin_OnKlinesUpdateServer) error {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return err
	}
	intervals, err := parseIntervals(req.Interval)
	if err != nil {
		return rpcErr(err)
	}
	keys := make([]string, 0, len(intervals))
	for _, interval := range intervals {
		keys = append(keys, schema.MarketKey(req.Symbol, schema.StreamKline+"_"+interval))
	}
	q := s.reg.Subscribe(sess, req.TradeID, keys...)
	return pump(out.Context(), q, func(evt schema.Event) error {
		candle, ok := evt.(schema.Candle)
		if !ok {
			return nil
		}
		return out.Send(candleOut(candle))
	})
}

// OnTickerUpdate streams 24h miniTicker frames.
func (s *Server) OnTickerUpdate(req *rpcapi.OnTickerUpdateRequest, out rpcapi.Martin_OnTickerUpdateServer) error {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return err
	}
	q := s.reg.Subscribe(sess, req.TradeID, schema.MarketKey(req.Symbol, schema.StreamMiniTicker))
	return pump(out.Context(), q, func(evt schema.Event) error {
		ticker, ok := evt.(schema.MiniTicker)
		if !ok {
			return nil
		}
		return out.Send(tickerOut(ticker))
	})
}

// OnOrderBookUpdate streams top-5 book frames.
func (s *Server) OnOrderBookUpdate(req *rpcapi.OnOrderBookUpdateRequest, out rpcapi.Martin_OnOrderBookUpdateServer) error {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return err
	}
	q := s.reg.Subscribe(sess, req.TradeID, schema.MarketKey(req.Symbol, schema.StreamDepth5))
	return pump(out.Context(), q, func(evt schema.Event) error {
		book, ok := evt.(schema.OrderBookTop)
		if !ok {
			return nil
		}
		return out.Send(bookOut(book))
	})
}

// OnFundsUpdate streams balance changes filtered to the pair's assets.
func (s *Server) OnFundsUpdate(req *rpcapi.OnFundsUpdateRequest, out rpcapi.Martin_OnFundsUpdateServer) error {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return err
	}
	q := s.reg.Subscribe(sess, req.TradeID, schema.KeyOutboundAccountPosition)
	return pump(out.Context(), q, func(evt schema.Event) error {
		pos, ok := evt.(schema.OutboundAccountPosition)
		if !ok {
			return nil
		}
		balances := make([]rpcapi.Balance, 0, len(pos.Balances))
		for _, b := range pos.Balances {
			if req.BaseAsset != "" && b.Asset != req.BaseAsset && b.Asset != req.QuoteAsset {
				continue
			}
			balances = append(balances, rpcapi.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked})
		}
		if len(balances) == 0 {
			return nil
		}
		return out.Send(&rpcapi.FundsFrame{
			EventTime:  pos.EventTime,
			UpdateTime: pos.UpdateTime,
			Balances:   balances,
		})
	})
}

// OnOrderUpdate streams execution reports, filtered to the symbol when
// one is given.
func (s *Server) OnOrderUpdate(req *rpcapi.OnOrderUpdateRequest, out rpcapi.Martin_OnOrderUpdateServer) error {
	sess, err := s.session(req.ClientID)
	if err != nil {
		return err
	}
	q := s.reg.Subscribe(sess, req.TradeID, schema.KeyExecutionReport)
	return pump(out.Context(), q, func(evt schema.Event) error {
		report, ok := evt.(schema.ExecutionReport)
		if !ok {
			return nil
		}
		if req.Symbol != "" && report.Symbol != req.Symbol {
			return nil
		}
		return out.Send(reportOut(report))
	})
}
