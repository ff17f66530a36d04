package okx

import (
	"hash/crc32"
	"strconv"
	"testing"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/venue"
)

func newStreamAdapter() *Adapter {
	return New(nil, config.Endpoint{}, "key", "secret", "phrase", nil)
}

func collect(events *[]schema.Event) venue.Emit {
	return func(evt schema.Event) { *events = append(*events, evt) }
}

func crcOf(t *testing.T, joined string) string {
	t.Helper()
	return strconv.FormatInt(int64(int32(crc32.ChecksumIEEE([]byte(joined)))), 10)
}

func bookFrame(t *testing.T, action, bids, asks, joined string) string {
	t.Helper()
	return `{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"` + action + `",` +
		`"data":[{"bids":` + bids + `,"asks":` + asks + `,"ts":"1700000000000",` +
		`"checksum":` + crcOf(t, joined) + `}]}`
}

func TestBookPartialSeedsAndVerifies(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@depth5"})
	var events []schema.Event

	partial := bookFrame(t, "partial",
		`[["100","1","0","1"],["99","2","0","1"]]`, `[["101","3","0","1"]]`,
		"100:1:101:3:99:2")
	action, err := a.handleMarketFrame(st, []byte(partial), collect(&events))
	if err != nil {
		t.Fatalf("partial: %v", err)
	}
	if action.Kind != stream.ActionData || len(events) != 1 {
		t.Fatalf("action = %v, events = %d", action.Kind, len(events))
	}
	top := events[0].(schema.OrderBookTop)
	if len(top.Bids) != 2 || top.Bids[0].Price() != "100" || top.Asks[0].Qty() != "3" {
		t.Fatalf("top = %+v", top)
	}

	// zero size removes the level
	update := bookFrame(t, "update",
		`[["100","0","0","0"]]`, `[]`, "99:2:101:3")
	action, err = a.handleMarketFrame(st, []byte(update), collect(&events))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if action.Kind != stream.ActionData || len(events) != 2 {
		t.Fatalf("action = %v, events = %d", action.Kind, len(events))
	}
	top = events[1].(schema.OrderBookTop)
	if len(top.Bids) != 1 || top.Bids[0].Price() != "99" {
		t.Fatalf("top = %+v", top)
	}
}

func TestBookChecksumMismatchForcesReconnect(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@depth5"})
	var events []schema.Event

	partial := bookFrame(t, "partial",
		`[["100","1","0","1"]]`, `[["101","3","0","1"]]`, "100:1:101:3")
	if _, err := a.handleMarketFrame(st, []byte(partial), collect(&events)); err != nil {
		t.Fatalf("partial: %v", err)
	}

	bad := `{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update",` +
		`"data":[{"bids":[["100","2","0","1"]],"asks":[],"ts":"1700000001000","checksum":1}]}`
	action, err := a.handleMarketFrame(st, []byte(bad), collect(&events))
	if err != nil {
		t.Fatalf("bad update: %v", err)
	}
	if action.Kind != stream.ActionReconnect {
		t.Fatalf("mismatch must reconnect, action = %v", action.Kind)
	}
	if len(events) != 1 {
		t.Fatalf("mismatch must not emit, events = %d", len(events))
	}

	// the mirror was dropped; updates before the next partial are ignored
	update := bookFrame(t, "update", `[["100","2","0","1"]]`, `[]`, "100:2:101:3")
	action, err = a.handleMarketFrame(st, []byte(update), collect(&events))
	if err != nil {
		t.Fatalf("post-reset update: %v", err)
	}
	if action.Kind != stream.ActionControl || len(events) != 1 {
		t.Fatalf("action = %v, events = %d", action.Kind, len(events))
	}
}

func TestChecksumInterleavesUnevenSides(t *testing.T) {
	book := newWSBook()
	book.apply(
		[]bookRow{{"100", "1"}, {"99", "2"}, {"98", "3"}},
		[]bookRow{{"101", "4"}},
	)
	want := int32(crc32.ChecksumIEEE([]byte("100:1:101:4:99:2:98:3")))
	if got := book.checksum(); got != want {
		t.Fatalf("checksum = %d, want %d", got, want)
	}
}

func TestMarketTickerDedupesLastPrice(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@miniTicker"})
	var events []schema.Event
	emit := collect(&events)

	frame := `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"last":"30500",` +
		`"open24h":"30000","high24h":"31000","low24h":"29000","vol24h":"100",` +
		`"volCcy24h":"3000000","ts":"1700000000000"}]}`
	for i := 0; i < 3; i++ {
		if _, err := a.handleMarketFrame(st, []byte(frame), emit); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	if len(events) != 1 {
		t.Fatalf("equal last price must dedupe, events = %d", len(events))
	}
	ticker := events[0].(schema.MiniTicker)
	if ticker.Symbol != "BTCUSDT" || ticker.ClosePrice != "30500" || ticker.OpenPrice != "30000" {
		t.Fatalf("ticker = %+v", ticker)
	}
}

func TestMarketCandleCarriesConfirmFlag(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@kline_1m"})
	var events []schema.Event

	frame := `{"arg":{"channel":"candle1m","instId":"BTC-USDT"},"data":[` +
		`["1700000000000","100","102","99","101","1.5","150","150","1"]]}`
	if _, err := a.handleMarketFrame(st, []byte(frame), collect(&events)); err != nil {
		t.Fatalf("frame: %v", err)
	}
	candle := events[0].(schema.Candle)
	if candle.StartTime != 1700000000000 || candle.CloseTime != 1700000000000+60000-1 {
		t.Fatalf("candle = %+v", candle)
	}
	if candle.Interval != "1m" || candle.Close != "101" || !candle.Closed {
		t.Fatalf("candle = %+v", candle)
	}
}

func TestMarketErrorEventReconnects(t *testing.T) {
	a := newStreamAdapter()
	st := a.newMarketState([]string{"btcusdt@miniTicker"})

	action, err := a.handleMarketFrame(st, []byte(`{"event":"error","code":"60012","msg":"Illegal request"}`), nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if action.Kind != stream.ActionReconnect {
		t.Fatalf("action = %v", action.Kind)
	}

	action, err = a.handleMarketFrame(st, []byte(`pong`), nil)
	if err != nil {
		t.Fatalf("pong: %v", err)
	}
	if action.Kind != stream.ActionControl {
		t.Fatalf("pong action = %v", action.Kind)
	}
}

func TestUserOrderPushBuildsReport(t *testing.T) {
	a := newStreamAdapter()
	var events []schema.Event

	push := `{"arg":{"channel":"orders","instId":"BTC-USDT"},"data":[{"ordId":"42",` +
		`"clOrdId":"cid-1","instId":"BTC-USDT","px":"100","sz":"1","avgPx":"99.5",` +
		`"accFillSz":"0.4","fillSz":"0.4","fillPx":"99.5","tradeId":"7",` +
		`"state":"partially_filled","side":"buy","ordType":"limit","fillFee":"-0.04",` +
		`"fillFeeCcy":"usdt","cTime":"1699999990000","uTime":"1700000000000"}]}`
	if _, err := a.handleUserFrame([]byte(push), collect(&events)); err != nil {
		t.Fatalf("push: %v", err)
	}
	report := events[0].(schema.ExecutionReport)
	if report.OrderID != 42 || report.Symbol != "BTCUSDT" || report.Side != schema.SideBuy {
		t.Fatalf("report = %+v", report)
	}
	if report.Status != schema.StatusPartiallyFilled || report.ExecutionType != "TRADE" {
		t.Fatalf("report = %+v", report)
	}
	if report.LastExecutedQuantity != "0.4" || report.CumulativeFilledQuantity != "0.4" {
		t.Fatalf("report = %+v", report)
	}
	if report.TradeID != 7 || report.CommissionAmount != "0.04" || report.CommissionAsset != "USDT" {
		t.Fatalf("report = %+v", report)
	}
	if report.LastQuoteAssetTransacted != "39.8" {
		t.Fatalf("report = %+v", report)
	}
}

func TestUserOrderCancelPush(t *testing.T) {
	a := newStreamAdapter()
	var events []schema.Event

	push := `{"arg":{"channel":"orders","instId":"BTC-USDT"},"data":[{"ordId":"42",` +
		`"instId":"BTC-USDT","px":"100","sz":"1","accFillSz":"0","state":"canceled",` +
		`"side":"buy","ordType":"limit","cTime":"1699999990000","uTime":"1700000000000"}]}`
	if _, err := a.handleUserFrame([]byte(push), collect(&events)); err != nil {
		t.Fatalf("push: %v", err)
	}
	report := events[0].(schema.ExecutionReport)
	if report.Status != schema.StatusCanceled || report.ExecutionType != "CANCELED" {
		t.Fatalf("report = %+v", report)
	}
}

func TestUserAccountPushEmitsPosition(t *testing.T) {
	a := newStreamAdapter()
	var events []schema.Event

	push := `{"arg":{"channel":"account"},"data":[{"uTime":"1700000000000","details":[` +
		`{"ccy":"btc","availBal":"1","frozenBal":"0.5"}]}]}`
	if _, err := a.handleUserFrame([]byte(push), collect(&events)); err != nil {
		t.Fatalf("push: %v", err)
	}
	pos, ok := events[0].(schema.OutboundAccountPosition)
	if !ok || pos.EventTime != 1700000000000 || len(pos.Balances) != 1 {
		t.Fatalf("position = %+v", events[0])
	}
	if pos.Balances[0].Asset != "BTC" || pos.Balances[0].Free != "1" || pos.Balances[0].Locked != "0.5" {
		t.Fatalf("balance = %+v", pos.Balances[0])
	}
}
