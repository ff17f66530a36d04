package bitfinex

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/venue"
)

func newStreamAdapter() (*Adapter, *venue.Tracker, *venue.Buffer) {
	tracker := venue.NewTracker()
	buffer := venue.NewBuffer()
	a := New(nil, config.Endpoint{}, "key", "secret", tracker, buffer, nil)
	return a, tracker, buffer
}

func collect(events *[]schema.Event) venue.Emit {
	return func(evt schema.Event) { *events = append(*events, evt) }
}

func feed(t *testing.T, a *Adapter, st *marketState, emit venue.Emit, frames ...string) {
	t.Helper()
	for i, frame := range frames {
		if _, err := a.handleMarketFrame(st, []byte(frame), emit); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestMarketCandleOrderingGuard(t *testing.T) {
	a, _, _ := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@kline_1m"})
	var events []schema.Event

	feed(t, a, st, collect(&events),
		`{"event":"subscribed","channel":"candles","chanId":5,"key":"trade:1m:BTC/USDT"}`,
		`[5,[120000,1,2,3,0.5,10]]`,
		`[5,[60000,1,2,3,0.5,10]]`,
		`[5,[180000,4,5,6,3.5,20]]`,
	)

	if len(events) != 2 {
		t.Fatalf("older candle must be dropped, events = %d", len(events))
	}
	first, ok := events[0].(schema.Candle)
	if !ok || first.StartTime != 120000 || first.Interval != "1m" || first.Symbol != "BTCUSDT" {
		t.Fatalf("candle = %+v", events[0])
	}
	if events[1].(schema.Candle).StartTime != 180000 {
		t.Fatalf("candle = %+v", events[1])
	}
}

func TestMarketCandleSnapshotPicksNewest(t *testing.T) {
	a, _, _ := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@kline_1m"})
	var events []schema.Event

	feed(t, a, st, collect(&events),
		`{"event":"subscribed","channel":"candles","chanId":5,"key":"trade:1m:BTC/USDT"}`,
		`[5,[[180000,4,5,6,3.5,20],[120000,1,2,3,0.5,10]]]`,
	)

	if len(events) != 1 || events[0].(schema.Candle).StartTime != 180000 {
		t.Fatalf("snapshot must forward the newest candle, events = %+v", events)
	}
}

func TestMarketBookSnapshotAndDeltas(t *testing.T) {
	a, _, _ := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@depth5"})
	var events []schema.Event

	feed(t, a, st, collect(&events),
		`{"event":"subscribed","channel":"book","chanId":7,"symbol":"BTC/USDT"}`,
		`[7,[[100,1,2],[99,1,1],[101,1,-3]]]`,
	)
	if len(events) != 1 {
		t.Fatalf("snapshot must emit, events = %d", len(events))
	}
	top := events[0].(schema.OrderBookTop)
	if len(top.Bids) != 2 || top.Bids[0].Price() != "100" || top.Asks[0].Qty() != "3" {
		t.Fatalf("top = %+v", top)
	}

	// count==0 removes the level on the side the amount sign selects
	feed(t, a, st, collect(&events), `[7,[100,0,1]]`)
	top = events[1].(schema.OrderBookTop)
	if len(top.Bids) != 1 || top.Bids[0].Price() != "99" {
		t.Fatalf("bid removal failed, top = %+v", top)
	}
}

func TestMarketBookDeltaBeforeSnapshotIgnored(t *testing.T) {
	a, _, _ := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@depth5"})
	var events []schema.Event

	feed(t, a, st, collect(&events),
		`{"event":"subscribed","channel":"book","chanId":7,"symbol":"BTC/USDT"}`,
		`[7,[100,1,2]]`,
	)
	if len(events) != 0 {
		t.Fatalf("delta before snapshot must not emit, events = %+v", events)
	}
}

func TestMarketTickerDedupesLastPrice(t *testing.T) {
	a, _, _ := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@miniTicker"})
	var events []schema.Event

	frame := `[3,[30000,1,30001,1,500,0.01,30500,100,31000,29000]]`
	feed(t, a, st, collect(&events),
		`{"event":"subscribed","channel":"ticker","chanId":3,"pair":"BTC/USDT"}`,
		frame, frame, frame,
		`[3,[30000,1,30001,1,500,0.01,30600,100,31000,29000]]`,
	)

	if len(events) != 2 {
		t.Fatalf("equal last price must dedupe, events = %d", len(events))
	}
	ticker := events[0].(schema.MiniTicker)
	if ticker.ClosePrice != "30500" || ticker.OpenPrice != "30000" {
		t.Fatalf("ticker = %+v", ticker)
	}
}

func TestMarketErrorEventReconnects(t *testing.T) {
	a, _, _ := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@miniTicker"})

	action, err := a.handleMarketFrame(st, []byte(`{"event":"error","msg":"subscribe: dup","code":10300}`), nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if action.Kind != stream.ActionReconnect {
		t.Fatalf("action = %v", action.Kind)
	}
}

func TestUserAuthFailureStops(t *testing.T) {
	a, _, _ := newStreamAdapter()

	action, err := a.handleUserFrame([]byte(`{"event":"auth","status":"FAILED","code":10100}`), nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if action.Kind != stream.ActionStop {
		t.Fatalf("action = %v", action.Kind)
	}
}

func TestUserTradeBuffersUnknownOrder(t *testing.T) {
	a, _, buffer := newStreamAdapter()
	var events []schema.Event

	if _, err := a.handleUserFrame([]byte(`[0,"te",[1,"BTC/USDT",99,42,0.5,100]]`), collect(&events)); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unknown order trade must not emit, events = %+v", events)
	}
	if buffer.Len() != 1 {
		t.Fatalf("buffer len = %d", buffer.Len())
	}
	buffered := buffer.Drain(42)
	if len(buffered) != 1 || buffered[0].TradeID != 1 || buffered[0].LastExecutedQuantity != "0.5" {
		t.Fatalf("buffered = %+v", buffered)
	}
}

func TestUserTradeAccumulatesAndLatchesFill(t *testing.T) {
	a, tracker, _ := newStreamAdapter()
	tracker.Add(42, decimal.RequireFromString("1"))
	var events []schema.Event
	emit := collect(&events)

	if _, err := a.handleUserFrame([]byte(`[0,"te",[1,"BTC/USDT",99,42,0.4,100]]`), emit); err != nil {
		t.Fatalf("partial: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("partial fill must emit, events = %d", len(events))
	}
	report := events[0].(schema.ExecutionReport)
	if report.Status != schema.StatusPartiallyFilled || report.CumulativeFilledQuantity != "0.4" {
		t.Fatalf("report = %+v", report)
	}

	// final trade is latched for the oc frame, not emitted
	if _, err := a.handleUserFrame([]byte(`[0,"te",[2,"BTC/USDT",100,42,0.6,101]]`), emit); err != nil {
		t.Fatalf("final: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("final trade must not emit, events = %d", len(events))
	}
	last := tracker.LastEvent(42)
	if last == nil || last.TradeID != 2 || last.Status != schema.StatusFilled {
		t.Fatalf("latched = %+v", last)
	}

	// oc close merges the latched trade into the terminal report
	oc := `[0,"oc",[42,null,"cid","BTC/USDT",99,100,0,1.0,"EXCHANGE LIMIT",` +
		`null,null,null,0,"EXECUTED @ 100.0(1.0)",null,null,100.0,100.4,0,0]]`
	if _, err := a.handleUserFrame([]byte(oc), emit); err != nil {
		t.Fatalf("oc: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("oc must emit, events = %d", len(events))
	}
	final := events[1].(schema.ExecutionReport)
	if final.Status != schema.StatusFilled || final.TradeID != 2 || final.LastExecutedPrice != "101" {
		t.Fatalf("final report = %+v", final)
	}
}

func TestUserOrderCancelMarksTracker(t *testing.T) {
	a, tracker, _ := newStreamAdapter()
	tracker.Add(42, decimal.RequireFromString("1"))
	var events []schema.Event

	oc := `[0,"oc",[42,null,"cid","BTC/USDT",99,100,1.0,1.0,"EXCHANGE LIMIT",` +
		`null,null,null,0,"CANCELED",null,null,100.0,0,0,0]]`
	if _, err := a.handleUserFrame([]byte(oc), collect(&events)); err != nil {
		t.Fatalf("oc: %v", err)
	}
	if !tracker.Cancelled(42) {
		t.Fatal("cancel flag not set")
	}
	if len(events) != 1 || events[0].(schema.ExecutionReport).Status != schema.StatusCanceled {
		t.Fatalf("events = %+v", events)
	}
}

func TestUserWalletSnapshotEmitsPosition(t *testing.T) {
	a, _, _ := newStreamAdapter()
	var events []schema.Event

	ws := `[0,"ws",[["exchange","BTC",1.5,0,1.0],["funding","BTC",9,0,9]]]`
	if _, err := a.handleUserFrame([]byte(ws), collect(&events)); err != nil {
		t.Fatalf("ws: %v", err)
	}
	pos, ok := events[0].(schema.OutboundAccountPosition)
	if !ok || len(pos.Balances) != 1 {
		t.Fatalf("position = %+v", events[0])
	}
	if pos.Balances[0].Asset != "BTC" || pos.Balances[0].Free != "1" {
		t.Fatalf("balance = %+v", pos.Balances[0])
	}
}
