package huobi

import (
	"context"
	"testing"
	"time"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/venue"
)

func newStreamAdapter() *Adapter {
	return New(nil, config.Endpoint{}, "key", "secret", nil)
}

func collect(events *[]schema.Event) venue.Emit {
	return func(evt schema.Event) { *events = append(*events, evt) }
}

func TestControlActionTable(t *testing.T) {
	cases := []struct {
		code  int64
		kind  stream.ActionKind
		delay time.Duration
		known bool
	}{
		{10300, stream.ActionReconnect, 0, true},
		{20051, stream.ActionReconnect, 0, true},
		{10301, stream.ActionStop, 0, true},
		{10302, stream.ActionStop, 0, true},
		{10305, stream.ActionStop, 0, true},
		{20060, stream.ActionReconnect, 120 * time.Second, true},
		{200, 0, 0, false},
	}
	for _, tc := range cases {
		action, ok := controlAction(tc.code)
		if ok != tc.known {
			t.Fatalf("code %d: known = %v", tc.code, ok)
		}
		if ok && (action.Kind != tc.kind || action.Delay != tc.delay) {
			t.Fatalf("code %d: action = %+v", tc.code, action)
		}
	}
}

func TestMarketErrorFrameUsesControlCodes(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@miniTicker"})

	action, err := a.handleMarketFrame(context.Background(), nil, st,
		[]byte(`{"status":"error","err-code":"bad-request","code":20060}`), nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if action.Kind != stream.ActionReconnect || action.Delay != 120*time.Second {
		t.Fatalf("action = %+v", action)
	}

	action, err = a.handleMarketFrame(context.Background(), nil, st,
		[]byte(`{"status":"error","err-code":"bad-request"}`), nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if action.Kind != stream.ActionReconnect || action.Delay != 0 {
		t.Fatalf("unknown error code must reconnect, action = %+v", action)
	}
}

func TestMarketTickerDedupesLastPrice(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@miniTicker"})
	var events []schema.Event
	emit := collect(&events)

	frame := `{"ch":"market.tBTC:USDT.ticker","ts":1700000000000,` +
		`"tick":{"open":30000,"high":31000,"low":29000,"amount":100,"vol":3000000,"lastPrice":30500}}`
	for i := 0; i < 3; i++ {
		if _, err := a.handleMarketFrame(context.Background(), nil, st, []byte(frame), emit); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	moved := `{"ch":"market.tBTC:USDT.ticker","ts":1700000001000,` +
		`"tick":{"open":30000,"high":31000,"low":29000,"amount":100,"vol":3000000,"lastPrice":30600}}`
	if _, err := a.handleMarketFrame(context.Background(), nil, st, []byte(moved), emit); err != nil {
		t.Fatalf("moved frame: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("equal last price must dedupe, events = %d", len(events))
	}
	ticker := events[0].(schema.MiniTicker)
	if ticker.Symbol != "BTCUSDT" || ticker.ClosePrice != "30500" || ticker.OpenPrice != "30000" {
		t.Fatalf("ticker = %+v", ticker)
	}
}

func TestMarketKlineLiftsSecondStamps(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@kline_1m"})
	var events []schema.Event

	frame := `{"ch":"market.tBTC:USDT.kline.1min","ts":1700000000500,` +
		`"tick":{"id":1700000000,"open":100,"close":101,"low":99,"high":102,"amount":1.5,"vol":150,"count":7}}`
	if _, err := a.handleMarketFrame(context.Background(), nil, st, []byte(frame), collect(&events)); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	candle := events[0].(schema.Candle)
	if candle.StartTime != 1700000000000 || candle.CloseTime != 1700000000000+60000-1 {
		t.Fatalf("candle = %+v", candle)
	}
	if candle.Interval != "1m" || candle.Close != "101" || candle.Trades != 7 {
		t.Fatalf("candle = %+v", candle)
	}
}

func TestMarketDepthTruncatesToTopFive(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@depth5"})
	var events []schema.Event

	frame := `{"ch":"market.tBTC:USDT.depth.step0","ts":1700000000000,` +
		`"tick":{"bids":[[100,1],[99,1],[98,1],[97,1],[96,1],[95,1]],"asks":[[101,2]]}}`
	if _, err := a.handleMarketFrame(context.Background(), nil, st, []byte(frame), collect(&events)); err != nil {
		t.Fatalf("frame: %v", err)
	}
	top := events[0].(schema.OrderBookTop)
	if len(top.Bids) != 5 || len(top.Asks) != 1 {
		t.Fatalf("top = %+v", top)
	}
	if top.Bids[0].Price() != "100" || top.Asks[0].Qty() != "2" {
		t.Fatalf("top = %+v", top)
	}
}

func TestUserSubAckCodes(t *testing.T) {
	a := newStreamAdapter()

	action, err := a.handleUserFrame(context.Background(), nil,
		[]byte(`{"action":"sub","ch":"accounts.update#2","code":200}`), nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if action.Kind != stream.ActionControl {
		t.Fatalf("ack action = %v", action.Kind)
	}

	action, err = a.handleUserFrame(context.Background(), nil,
		[]byte(`{"action":"sub","ch":"accounts.update#2","code":20051}`), nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if action.Kind != stream.ActionReconnect {
		t.Fatalf("control code action = %v", action.Kind)
	}
}

func TestUserAccountUpdateFiltersForeignAccounts(t *testing.T) {
	a := newStreamAdapter()
	a.accountID = 22
	var events []schema.Event
	emit := collect(&events)

	foreign := `{"action":"push","ch":"accounts.update#2",` +
		`"data":{"currency":"btc","accountId":33,"balance":"2","available":"2","changeTime":1700000000000}}`
	if _, err := a.handleUserFrame(context.Background(), nil, []byte(foreign), emit); err != nil {
		t.Fatalf("foreign: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("foreign account must be dropped, events = %+v", events)
	}

	own := `{"action":"push","ch":"accounts.update#2",` +
		`"data":{"currency":"btc","accountId":22,"balance":"1.5","available":"1","changeTime":1700000000000}}`
	if _, err := a.handleUserFrame(context.Background(), nil, []byte(own), emit); err != nil {
		t.Fatalf("own: %v", err)
	}
	pos, ok := events[0].(schema.OutboundAccountPosition)
	if !ok || len(pos.Balances) != 1 {
		t.Fatalf("position = %+v", events[0])
	}
	if pos.Balances[0].Asset != "BTC" || pos.Balances[0].Free != "1" || pos.Balances[0].Locked != "0.5" {
		t.Fatalf("balance = %+v", pos.Balances[0])
	}
}

func TestUserClearingPartialFill(t *testing.T) {
	a := newStreamAdapter()
	var events []schema.Event

	push := `{"action":"push","ch":"trade.clearing#btcusdt#0","data":{` +
		`"symbol":"tBTC:USDT","eventType":"trade","orderId":42,"clientOrderId":"cid-1",` +
		`"orderSide":"buy","orderType":"buy-limit","orderStatus":"partial-filled",` +
		`"orderSize":"1","orderPrice":"100","tradePrice":"99.5","tradeVolume":"0.4",` +
		`"tradeId":7,"tradeTime":1700000000000,"aggressor":false,"transactFee":"0.04",` +
		`"feeCurrency":"usdt","orderCreateTime":1699999990000,"accountId":22}}`
	if _, err := a.handleUserFrame(context.Background(), nil, []byte(push), collect(&events)); err != nil {
		t.Fatalf("push: %v", err)
	}
	report := events[0].(schema.ExecutionReport)
	if report.OrderID != 42 || report.Symbol != "BTCUSDT" || report.Side != schema.SideBuy {
		t.Fatalf("report = %+v", report)
	}
	if report.Status != schema.StatusPartiallyFilled || report.ExecutionType != "TRADE" {
		t.Fatalf("report = %+v", report)
	}
	if report.LastExecutedQuantity != "0.4" || report.LastExecutedPrice != "99.5" {
		t.Fatalf("report = %+v", report)
	}
	if report.LastQuoteAssetTransacted != "39.8" || report.QuoteAssetTransacted != "0" {
		t.Fatalf("report = %+v", report)
	}
	if report.TradeID != 7 || !report.IsMakerSide || report.CommissionAsset != "USDT" {
		t.Fatalf("report = %+v", report)
	}
}

func TestUserClearingFullFillSetsCumulative(t *testing.T) {
	a := newStreamAdapter()
	var events []schema.Event

	push := `{"action":"push","ch":"trade.clearing#btcusdt#0","data":{` +
		`"symbol":"tBTC:USDT","eventType":"trade","orderId":42,` +
		`"orderSide":"sell","orderType":"sell-limit","orderStatus":"filled",` +
		`"orderSize":"1","orderPrice":"100","tradePrice":"100","tradeVolume":"0.6",` +
		`"tradeId":8,"tradeTime":1700000000000,"aggressor":true,"transactFee":"0.06",` +
		`"feeCurrency":"usdt","orderCreateTime":1699999990000,"accountId":22}}`
	if _, err := a.handleUserFrame(context.Background(), nil, []byte(push), collect(&events)); err != nil {
		t.Fatalf("push: %v", err)
	}
	report := events[0].(schema.ExecutionReport)
	if report.Status != schema.StatusFilled || report.Side != schema.SideSell {
		t.Fatalf("report = %+v", report)
	}
	if report.CumulativeFilledQuantity != "1" || report.QuoteAssetTransacted != "100" {
		t.Fatalf("report = %+v", report)
	}
	if report.IsMakerSide {
		t.Fatalf("aggressor fill must not be maker, report = %+v", report)
	}
}
