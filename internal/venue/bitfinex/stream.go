package bitfinex

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/sign"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/venue"
)

const wsHeartbeat = 15 * time.Second

type marketSub struct {
	channel string // canonical event key, e.g. btcusdt@depth5
	symbol  string // canonical symbol, upper case
	wire    string
	kind    string // ticker, candles, book
	tf      string // canonical interval for candles
}

type marketState struct {
	subs      []marketSub
	byChan    map[int64]*marketSub
	books     map[string]*venue.Book
	seeded    map[string]bool
	candleMax map[string]int64
	lastPrice map[string]string
}

func (a *Adapter) newMarketState(channels []string) *marketState {
	st := &marketState{
		byChan:    make(map[int64]*marketSub),
		books:     make(map[string]*venue.Book),
		seeded:    make(map[string]bool),
		candleMax: make(map[string]int64),
		lastPrice: make(map[string]string),
	}
	for _, channel := range channels {
		symbol, suffix := schema.SplitKey(channel)
		sub := marketSub{
			channel: channel,
			symbol:  strings.ToUpper(symbol),
			wire:    a.wireSymbol(strings.ToUpper(symbol)),
		}
		switch {
		case suffix == schema.StreamMiniTicker:
			sub.kind = "ticker"
		case strings.HasPrefix(suffix, schema.StreamKline):
			sub.kind = "candles"
			sub.tf = strings.TrimPrefix(suffix, schema.StreamKline+"_")
		case suffix == schema.StreamDepth5:
			sub.kind = "book"
			st.books[channel] = venue.NewBook()
		default:
			continue
		}
		st.subs = append(st.subs, sub)
	}
	return st
}

// NewMarketStream opens one public socket carrying every registered channel;
// the venue answers each subscription with a channel id used to route data
// frames.
func (a *Adapter) NewMarketStream(ctx context.Context, channels []string, emit venue.Emit) (*stream.Manager, error) {
	st := a.newMarketState(channels)
	cfg := stream.Config{
		URL:       a.endpoints.WSPublic,
		Channels:  channels,
		Name:      "bitfinex-market",
		Heartbeat: wsHeartbeat,
		Subscribe: func(ctx context.Context, conn *websocket.Conn, _ []string) error {
			for i := range st.subs {
				if err := stream.WriteJSON(ctx, conn, subscribeFrame(&st.subs[i])); err != nil {
					return err
				}
			}
			return nil
		},
		OnFrame: func(_ context.Context, _ *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleMarketFrame(st, data, emit)
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

func subscribeFrame(sub *marketSub) map[string]any {
	switch sub.kind {
	case "ticker":
		return map[string]any{"event": "subscribe", "channel": "ticker", "pair": sub.wire}
	case "candles":
		return map[string]any{
			"event": "subscribe", "channel": "candles",
			"key": "trade:" + intervalTable[sub.tf] + ":" + sub.wire,
		}
	default:
		return map[string]any{
			"event": "subscribe", "channel": "book",
			"symbol": sub.wire, "prec": "P0", "len": "25",
		}
	}
}

func (st *marketState) resolve(chanID int64, event map[string]any) {
	channel, _ := event["channel"].(string)
	pair, _ := event["pair"].(string)
	key, _ := event["key"].(string)
	symbol, _ := event["symbol"].(string)
	for i := range st.subs {
		sub := &st.subs[i]
		switch {
		case channel == "ticker" && sub.kind == "ticker" && sub.wire == pair:
			st.byChan[chanID] = sub
		case channel == "candles" && sub.kind == "candles" &&
			key == "trade:"+intervalTable[sub.tf]+":"+sub.wire:
			st.byChan[chanID] = sub
		case channel == "book" && sub.kind == "book" && sub.wire == symbol:
			st.byChan[chanID] = sub
		}
	}
}

func (a *Adapter) handleMarketFrame(st *marketState, data []byte, emit venue.Emit) (stream.Action, error) {
	var payload any
	if err := decodeNumbers(data, &payload); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	switch frame := payload.(type) {
	case map[string]any:
		event, _ := frame["event"].(string)
		switch event {
		case "subscribed":
			st.resolve(i64(frame["chanId"]), frame)
		case "error":
			return stream.Action{Kind: stream.ActionReconnect}, nil
		}
		return stream.Action{Kind: stream.ActionControl}, nil
	case []any:
		return a.handleMarketData(st, frame, emit)
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
}

func (a *Adapter) handleMarketData(st *marketState, frame []any, emit venue.Emit) (stream.Action, error) {
	if len(frame) < 2 {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	if num(at(frame, 1)) == "hb" {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	sub, ok := st.byChan[i64(at(frame, 0))]
	if !ok {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	body, ok := at(frame, 1).([]any)
	if !ok {
		return stream.Action{Kind: stream.ActionControl}, nil
	}

	switch sub.kind {
	case "ticker":
		a.emitTicker(st, sub, body, emit)
	case "candles":
		a.emitCandle(st, sub, body, emit)
	case "book":
		a.emitBook(st, sub, body, emit)
	}
	return stream.Action{Kind: stream.ActionData}, nil
}

// Ticker payload: [bid, bidSize, ask, askSize, change, changeRel, last,
// volume, high, low]. Consecutive equal last prices are dropped.
func (a *Adapter) emitTicker(st *marketState, sub *marketSub, body []any, emit venue.Emit) {
	last := num(at(body, 6))
	if st.lastPrice[sub.channel] == last {
		return
	}
	st.lastPrice[sub.channel] = last
	open := dec(at(body, 6)).Sub(dec(at(body, 4)))
	emit(schema.MiniTicker{
		EventTime:   a.clock().UnixMilli(),
		Symbol:      sub.symbol,
		ClosePrice:  last,
		OpenPrice:   open.String(),
		HighPrice:   num(at(body, 8)),
		LowPrice:    num(at(body, 9)),
		Volume:      num(at(body, 7)),
		QuoteVolume: "0",
	})
}

// Candle payload is either one [mts, open, close, high, low, volume] row or
// a snapshot of rows. A candle older than the last forwarded start time for
// this subscription is dropped.
func (a *Adapter) emitCandle(st *marketState, sub *marketSub, body []any, emit venue.Emit) {
	row := body
	if inner, ok := at(body, len(body)-1).([]any); ok {
		row = inner
		for _, candidate := range body {
			arr, isRow := candidate.([]any)
			if isRow && i64(at(arr, 0)) > i64(at(row, 0)) {
				row = arr
			}
		}
	}
	start := i64(at(row, 0))
	if start < st.candleMax[sub.channel] {
		return
	}
	st.candleMax[sub.channel] = start
	emit(schema.Candle{
		EventTime: a.clock().UnixMilli(),
		Symbol:    sub.symbol,
		Interval:  sub.tf,
		StartTime: start,
		CloseTime: start + intervalMillis(sub.tf) - 1,
		Open:      num(at(row, 1)),
		High:      num(at(row, 3)),
		Low:       num(at(row, 4)),
		Close:     num(at(row, 2)),
		Volume:    num(at(row, 5)),
	})
}

// Book payload is a level snapshot on the first data frame, then single
// [price, count, amount] deltas.
func (a *Adapter) emitBook(st *marketState, sub *marketSub, body []any, emit venue.Emit) {
	book := st.books[sub.channel]
	if book == nil {
		return
	}
	if _, snapshot := at(body, 0).([]any); snapshot {
		book.Reset()
		for _, row := range body {
			if arr, ok := row.([]any); ok {
				applyBookLevel(book, arr)
			}
		}
		st.seeded[sub.channel] = true
	} else {
		if !st.seeded[sub.channel] {
			return
		}
		applyBookLevel(book, body)
	}
	top := book.Top(5)
	emit(schema.OrderBookTop{
		Symbol:       sub.symbol,
		LastUpdateID: a.clock().UnixMilli(),
		Bids:         top.Bids,
		Asks:         top.Asks,
	})
}

// NewUserStream opens the authenticated stream carrying order and wallet
// frames.
func (a *Adapter) NewUserStream(ctx context.Context, emit venue.Emit) (*stream.Manager, error) {
	cfg := stream.Config{
		URL:       a.endpoints.WSAuth,
		Name:      "bitfinex-user",
		Heartbeat: wsHeartbeat,
		Authenticate: func(ctx context.Context, conn *websocket.Conn) error {
			ts := a.clock().UnixMilli()
			payload := "AUTH" + strconv.FormatInt(ts, 10)
			return stream.WriteJSON(ctx, conn, map[string]any{
				"event":       "auth",
				"apiKey":      a.apiKey,
				"authSig":     sign.Sign(schema.VenueBitfinex, a.apiSecret, []byte(payload)),
				"authPayload": payload,
				"authNonce":   ts,
				"filter":      []string{"trading", "wallet"},
			})
		},
		OnFrame: func(_ context.Context, _ *websocket.Conn, data []byte) (stream.Action, error) {
			return a.handleUserFrame(data, emit)
		},
		Logger:  a.log,
		Metrics: a.metrics,
	}
	return stream.NewManager(ctx, cfg), nil
}

func (a *Adapter) handleUserFrame(data []byte, emit venue.Emit) (stream.Action, error) {
	var payload any
	if err := decodeNumbers(data, &payload); err != nil {
		return stream.Action{Kind: stream.ActionControl}, err
	}
	switch frame := payload.(type) {
	case map[string]any:
		event, _ := frame["event"].(string)
		if event == "auth" {
			if status, _ := frame["status"].(string); status != "OK" {
				return stream.Action{Kind: stream.ActionStop}, nil
			}
		}
		return stream.Action{Kind: stream.ActionControl}, nil
	case []any:
		return a.handleUserData(frame, emit)
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
}

func (a *Adapter) handleUserData(frame []any, emit venue.Emit) (stream.Action, error) {
	kind := num(at(frame, 1))
	if kind == "hb" {
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	body, ok := at(frame, 2).([]any)
	if !ok {
		return stream.Action{Kind: stream.ActionControl}, nil
	}

	switch kind {
	case "ws":
		balances := make([]schema.Balance, 0, len(body))
		for _, row := range body {
			if arr, rowOK := row.([]any); rowOK && num(at(arr, 0)) == "exchange" {
				balances = append(balances, parseWalletBalance(arr))
			}
		}
		a.emitPosition(balances, emit)
	case "wu":
		if num(at(body, 0)) == "exchange" {
			a.emitPosition([]schema.Balance{parseWalletBalance(body)}, emit)
		}
	case "oc":
		a.handleOrderClose(body, emit)
	case "te":
		a.handleTradeExecuted(body, emit)
	default:
		return stream.Action{Kind: stream.ActionControl}, nil
	}
	return stream.Action{Kind: stream.ActionData}, nil
}

func (a *Adapter) emitPosition(balances []schema.Balance, emit venue.Emit) {
	if len(balances) == 0 {
		return
	}
	now := a.clock().UnixMilli()
	emit(schema.OutboundAccountPosition{EventTime: now, UpdateTime: now, Balances: balances})
}

// handleOrderClose emits the terminal report for a closed order. A cancel
// flips the tracker flag the venue client's poll loop waits on; a full fill
// merges the latched last trade into the report.
func (a *Adapter) handleOrderClose(body []any, emit venue.Emit) {
	order, err := parseOrder(body)
	if err != nil {
		return
	}
	now := a.clock().UnixMilli()
	report := schema.ExecutionReport{
		EventTime:                now,
		Symbol:                   order.Symbol,
		ClientOrderID:            order.ClientOrderID,
		Side:                     order.Side,
		Type:                     order.Type,
		TimeInForce:              order.TimeInForce,
		Quantity:                 order.OrigQty,
		Price:                    order.Price,
		OrderListID:              -1,
		Status:                   order.Status,
		OrderID:                  order.OrderID,
		CumulativeFilledQuantity: order.ExecutedQty,
		TransactionTime:          order.UpdateTime,
		OrderCreationTime:        order.Time,
		QuoteAssetTransacted:     order.CummulativeQuoteQty,
	}
	switch order.Status {
	case schema.StatusCanceled:
		a.tracker.MarkCancelled(order.OrderID)
		report.ExecutionType = "CANCELED"
	case schema.StatusFilled:
		report.ExecutionType = "TRADE"
		if last := a.tracker.LastEvent(order.OrderID); last != nil {
			report.TradeID = last.TradeID
			report.LastExecutedQuantity = last.LastExecutedQuantity
			report.LastExecutedPrice = last.LastExecutedPrice
		}
	default:
		return
	}
	emit(report)
}

// handleTradeExecuted routes one te frame: trades for unknown orders are
// buffered until placement acknowledges the id, fills on the final trade are
// latched and left for the oc frame to report.
func (a *Adapter) handleTradeExecuted(body []any, emit venue.Emit) {
	report := parseTradeExecuted(body)
	if !a.tracker.Known(report.OrderID) {
		a.buffer.Add(report.OrderID, report)
		return
	}
	qty := dec(report.LastExecutedQuantity)
	executed, filled := a.tracker.ApplyTrade(report.OrderID, qty, &report)
	report.CumulativeFilledQuantity = executed.String()
	if filled {
		report.Status = schema.StatusFilled
		return
	}
	emit(report)
}
