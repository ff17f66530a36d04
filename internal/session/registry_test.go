package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/bus"
	"github.com/exwrap/martin/internal/rest"
	"github.com/exwrap/martin/internal/schema"
)

const exchangeInfoJSON = `{
	"timezone": "UTC",
	"serverTime": 1700000000000,
	"rateLimits": [],
	"symbols": [{
		"symbol": "BTCUSDT",
		"status": "TRADING",
		"baseAsset": "BTC",
		"baseAssetPrecision": 8,
		"quoteAsset": "USDT",
		"orderTypes": ["LIMIT", "MARKET"],
		"filters": [
			{"filterType": "PRICE_FILTER", "minPrice": "0.01", "maxPrice": "1000000", "tickSize": "0.01"},
			{"filterType": "LOT_SIZE", "minQty": "0.0001", "maxQty": "9000", "stepSize": "0.0001"},
			{"filterType": "MIN_NOTIONAL", "minNotional": "5"}
		],
		"permissions": ["SPOT"]
	}]
}`

func newTestRegistry(t *testing.T, handler http.HandlerFunc) (*Registry, *Session) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.File{
		Accounts: []config.Account{{
			Name: "primary", Exchange: "binance", APIKey: "key", APISecret: "secret",
		}},
		Endpoint: map[string]config.Endpoint{
			"binance": {APIPublic: srv.URL, WSPublic: "wss://unused", APIAuth: srv.URL, WSAuth: "wss://unused"},
		},
	}
	reg := NewRegistry(context.Background(), cfg, nil)
	reg.heartbeat = 5 * time.Millisecond
	sess, err := reg.Open(context.Background(), "primary", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return reg, sess
}

func serveExchangeInfo(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(exchangeInfoJSON))
	}
}

func TestOpenReturnsSameSessionForSameAccount(t *testing.T) {
	reg, sess := newTestRegistry(t, serveExchangeInfo(t))

	again, err := reg.Open(context.Background(), "primary", 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again.ID != sess.ID || again != sess {
		t.Fatalf("reopen returned a new session: %d vs %d", again.ID, sess.ID)
	}
	if !sess.Client.Loaded() {
		t.Fatal("client not loaded after open")
	}
	if got, err := reg.Get(sess.ID); err != nil || got != sess {
		t.Fatalf("get = %v, %v", got, err)
	}
}

func TestOpenUnknownAccount(t *testing.T) {
	reg, _ := newTestRegistry(t, serveExchangeInfo(t))

	_, err := reg.Open(context.Background(), "ghost", 0)
	if errs.CodeOf(err) != errs.CodeAuth {
		t.Fatalf("err = %v, want auth code", err)
	}
}

func TestGetUnknownHandle(t *testing.T) {
	reg, _ := newTestRegistry(t, serveExchangeInfo(t))

	if _, err := reg.Get(99); errs.CodeOf(err) != errs.CodeAuth {
		t.Fatalf("err = %v, want auth code", err)
	}
}

func TestSubscribeRegistersMarketStreams(t *testing.T) {
	reg, sess := newTestRegistry(t, serveExchangeInfo(t))

	q := reg.Subscribe(sess, "trade-1", schema.MarketKey("BTCUSDT", schema.StreamMiniTicker))
	if got := reg.Bus().MarketStreamCount(schema.VenueBinance, "trade-1"); got != 1 {
		t.Fatalf("market stream count = %d", got)
	}

	reg.Bus().Fire(schema.MiniTicker{Symbol: "BTCUSDT", ClosePrice: "30500"})
	evt, err := q.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if evt.(schema.MiniTicker).ClosePrice != "30500" {
		t.Fatalf("event = %+v", evt)
	}
}

func TestSubscribeUserEventsSkipMarketCount(t *testing.T) {
	reg, sess := newTestRegistry(t, serveExchangeInfo(t))

	reg.Subscribe(sess, "trade-1", schema.KeyExecutionReport)
	if got := reg.Bus().MarketStreamCount(schema.VenueBinance, "trade-1"); got != 0 {
		t.Fatalf("user subscription must not count as market stream, got %d", got)
	}
	if got := reg.Bus().HandlerCount(schema.KeyExecutionReport); got != 1 {
		t.Fatalf("handler count = %d", got)
	}
}

func TestStartStreamGivesUpWhenRegistrationsNeverArrive(t *testing.T) {
	reg, sess := newTestRegistry(t, serveExchangeInfo(t))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := reg.StartStream(ctx, sess, "trade-1", 2)
	if errs.CodeOf(err) != errs.CodeNetwork {
		t.Fatalf("err = %v, want network code", err)
	}
}

func TestStopStreamDeliversSentinelAndClosesQueues(t *testing.T) {
	reg, sess := newTestRegistry(t, serveExchangeInfo(t))

	q := reg.Subscribe(sess, "trade-1", schema.MarketKey("BTCUSDT", schema.StreamMiniTicker))
	reg.Bus().Fire(schema.MiniTicker{Symbol: "BTCUSDT", ClosePrice: "30500"})

	// consumer drains until the sentinel, as the RPC streaming loop would
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			evt, err := q.Get(context.Background())
			if err != nil {
				return
			}
			if _, stop := evt.(bus.StopSignal); stop {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := reg.StopStream(ctx, sess, "trade-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-done

	if got := reg.Bus().MarketStreamCount(schema.VenueBinance, "trade-1"); got != 0 {
		t.Fatalf("streams still registered: %d", got)
	}
	if _, err := q.Get(context.Background()); errs.CodeOf(err) != errs.CodeStreamTerminal {
		t.Fatalf("queue not closed: %v", err)
	}
}

func TestFetchOrderSynthesizesFilledReport(t *testing.T) {
	reg, sess := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			w.Write([]byte(exchangeInfoJSON))
		case "/api/v3/order":
			w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"orderListId":-1,
				"clientOrderId":"cid-1","price":"100","origQty":"1","executedQty":"1",
				"cummulativeQuoteQty":"100","status":"FILLED","timeInForce":"GTC",
				"type":"LIMIT","side":"BUY","stopPrice":"0","icebergQty":"0",
				"time":1699999990000,"updateTime":1700000000000,"isWorking":false,
				"origQuoteOrderQty":"100"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	q := reg.Subscribe(sess, "trade-1", schema.KeyExecutionReport)

	order, err := reg.FetchOrder(context.Background(), sess, "BTCUSDT", 42, true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if order.Status != schema.StatusFilled {
		t.Fatalf("order = %+v", order)
	}

	evt, err := q.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	report := evt.(schema.ExecutionReport)
	if report.Status != schema.StatusFilled || report.ExecutionType != "TRADE" {
		t.Fatalf("report = %+v", report)
	}
	if report.CumulativeFilledQuantity != "1" || report.QuoteAssetTransacted != "100" {
		t.Fatalf("report = %+v", report)
	}
	if report.OrderID != 42 || report.TransactionTime != 1700000000000 {
		t.Fatalf("report = %+v", report)
	}
}

func TestFetchOrderSynthesizesPartialReportsPerTrade(t *testing.T) {
	reg, sess := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			w.Write([]byte(exchangeInfoJSON))
		case "/api/v3/order":
			w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"orderListId":-1,
				"clientOrderId":"cid-1","price":"100","origQty":"1","executedQty":"0.6",
				"cummulativeQuoteQty":"60","status":"PARTIALLY_FILLED","timeInForce":"GTC",
				"type":"LIMIT","side":"BUY","stopPrice":"0","icebergQty":"0",
				"time":1699999990000,"updateTime":1700000000000,"isWorking":true,
				"origQuoteOrderQty":"100"}`))
		case "/api/v3/myTrades":
			if r.URL.Query().Get("orderId") != "42" {
				t.Errorf("orderId = %s", r.URL.Query().Get("orderId"))
			}
			w.Write([]byte(`[
				{"symbol":"BTCUSDT","id":7,"orderId":42,"orderListId":-1,"price":"100",
				 "qty":"0.4","quoteQty":"40","commission":"0.04","commissionAsset":"USDT",
				 "time":1699999995000,"isBuyer":true,"isMaker":true,"isBestMatch":true},
				{"symbol":"BTCUSDT","id":8,"orderId":42,"orderListId":-1,"price":"100",
				 "qty":"0.2","quoteQty":"20","commission":"0.02","commissionAsset":"USDT",
				 "time":1700000000000,"isBuyer":true,"isMaker":false,"isBestMatch":true}
			]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	q := reg.Subscribe(sess, "trade-1", schema.KeyExecutionReport)

	if _, err := reg.FetchOrder(context.Background(), sess, "BTCUSDT", 42, true); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	first, err := q.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	report := first.(schema.ExecutionReport)
	if report.Status != schema.StatusPartiallyFilled || report.LastExecutedQuantity != "0.4" {
		t.Fatalf("report = %+v", report)
	}
	if report.TradeID != 7 || !report.IsMakerSide || report.LastQuoteAssetTransacted != "40" {
		t.Fatalf("report = %+v", report)
	}

	second, err := q.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.(schema.ExecutionReport).TradeID != 8 {
		t.Fatalf("report = %+v", second)
	}
	if q.Len() != 0 {
		t.Fatalf("extra events queued: %d", q.Len())
	}
}

func TestFetchOrderWithoutFlagSkipsSynthesis(t *testing.T) {
	reg, sess := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			w.Write([]byte(exchangeInfoJSON))
		case "/api/v3/order":
			w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"status":"FILLED",
				"origQty":"1","executedQty":"1","price":"100"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	q := reg.Subscribe(sess, "trade-1", schema.KeyExecutionReport)

	if _, err := reg.FetchOrder(context.Background(), sess, "BTCUSDT", 42, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("synthesis without flag: %d events", q.Len())
	}
}

func TestResetRateLimitHonorsLatchWindow(t *testing.T) {
	reg, _ := newTestRegistry(t, serveExchangeInfo(t))

	now := time.UnixMilli(1700000000000)
	reg.latch = rest.NewLatchWithClock(func() time.Time { return now })
	reg.latch.Trip()

	if reg.ResetRateLimit(10) {
		t.Fatal("latch cleared before the reset window")
	}
	now = now.Add(rest.ResetAfter + time.Second)
	if !reg.ResetRateLimit(10) {
		t.Fatal("latch did not clear after the reset window")
	}
	if reg.latch.Active() {
		t.Fatal("latch still active")
	}
}
