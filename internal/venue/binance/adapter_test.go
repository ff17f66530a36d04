package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/internal/rest"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/venue"
)

const exchangeInfoBody = `{
  "timezone": "UTC",
  "serverTime": 1700000000000,
  "rateLimits": [{"rateLimitType": "REQUEST_WEIGHT", "interval": "MINUTE", "intervalNum": 1, "limit": 1200}],
  "symbols": [{
    "symbol": "BTCUSDT", "status": "TRADING",
    "baseAsset": "BTC", "baseAssetPrecision": 8,
    "quoteAsset": "USDT", "quotePrecision": 8,
    "orderTypes": ["LIMIT", "MARKET"],
    "icebergAllowed": true, "ocoAllowed": true,
    "filters": [
      {"filterType": "PRICE_FILTER", "minPrice": "0.01", "maxPrice": "1000000", "tickSize": "0.01"},
      {"filterType": "LOT_SIZE", "minQty": "0.00001", "maxQty": "9000", "stepSize": "0.00001"},
      {"filterType": "MIN_NOTIONAL", "minNotional": "10", "applyToMarket": true, "avgPriceMins": 5}
    ],
    "permissions": ["SPOT"]
  }]
}`

func newAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ep := config.Endpoint{APIPublic: srv.URL, APIAuth: srv.URL, WSPublic: "wss://unused"}
	a := New(nil, ep, "key", "secret", nil)
	a.rest = rest.NewClient(schema.VenueBinance, rest.NewLatch(),
		rest.WithHTTPClient(srv.Client()),
		rest.WithRateLimit(rate.NewLimiter(rate.Inf, 1)),
		rest.WithSignFunc(a.SignRequest),
	)
	return a, srv
}

func TestExchangeInfoUnpacksFilters(t *testing.T) {
	a, _ := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(exchangeInfoBody))
	})

	info, err := a.ExchangeInfo(context.Background())
	if err != nil {
		t.Fatalf("exchange info: %v", err)
	}
	if len(info.Symbols) != 1 {
		t.Fatalf("symbols = %d", len(info.Symbols))
	}
	sym := info.Symbols[0]
	if sym.Filters.Price.TickSize != "0.01" {
		t.Fatalf("tickSize = %q", sym.Filters.Price.TickSize)
	}
	if sym.Filters.LotSize.StepSize != "0.00001" {
		t.Fatalf("stepSize = %q", sym.Filters.LotSize.StepSize)
	}
	if sym.Filters.MinNotional.MinNotional != "10" || !sym.Filters.MinNotional.ApplyToMarket {
		t.Fatalf("minNotional = %+v", sym.Filters.MinNotional)
	}
}

func TestSignRequestAddsTimestampAndSignature(t *testing.T) {
	a := New(nil, config.Endpoint{}, "key", "secret", nil)
	a.clock = func() time.Time { return time.UnixMilli(1700000000000) }

	req := rest.Request{Query: url.Values{}}
	req.Query.Set("symbol", "BTCUSDT")
	if err := a.SignRequest(context.Background(), &req); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if req.Query.Get("timestamp") != "1700000000000" {
		t.Fatalf("timestamp = %q", req.Query.Get("timestamp"))
	}
	if req.Query.Get("recvWindow") != recvWindow {
		t.Fatalf("recvWindow = %q", req.Query.Get("recvWindow"))
	}
	if len(req.Query.Get("signature")) != 64 {
		t.Fatalf("signature length = %d, want 64 hex chars", len(req.Query.Get("signature")))
	}
	if req.Headers.Get("X-MBX-APIKEY") != "key" {
		t.Fatalf("api key header missing")
	}
}

func TestPlaceOrderSendsRefinedFields(t *testing.T) {
	var captured url.Values
	a, _ := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		_, _ = w.Write([]byte(`{
		  "symbol": "BTCUSDT", "orderId": 42, "orderListId": -1,
		  "clientOrderId": "x-1", "price": "100.00", "origQty": "1.234",
		  "executedQty": "0", "cummulativeQuoteQty": "0",
		  "status": "NEW", "timeInForce": "GTC", "type": "LIMIT", "side": "BUY"
		}`))
	})

	order, err := a.PlaceOrder(context.Background(), venue.OrderRequest{
		Symbol: "BTCUSDT", Side: schema.SideBuy, Type: schema.TypeLimit,
		TimeInForce: schema.TIFGTC, Quantity: "1.234", Price: "100.00",
		NewClientOrderID: "x-1",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if order.OrderID != 42 || order.Status != schema.StatusNew {
		t.Fatalf("order = %+v", order)
	}
	if captured.Get("quantity") != "1.234" || captured.Get("price") != "100.00" {
		t.Fatalf("sent query = %v", captured)
	}
	if captured.Get("signature") == "" || captured.Get("timestamp") == "" {
		t.Fatalf("signed fields missing: %v", captured)
	}
	if order.OrigQuoteOrderQty != "123.4" {
		t.Fatalf("origQuoteOrderQty = %q, want derived 123.4", order.OrigQuoteOrderQty)
	}
}

func TestOrderBookConvertsLevels(t *testing.T) {
	a, _ := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
		  "lastUpdateId": 99,
		  "bids": [["10", "1"], ["9", "2"]],
		  "asks": [["11", "1"], ["12", "2"]]
		}`))
	})
	book, err := a.OrderBook(context.Background(), "BTCUSDT", 5)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if book.LastUpdateID != 99 || len(book.Bids) != 2 || book.Bids[0].Price() != "10" {
		t.Fatalf("book = %+v", book)
	}
}

func TestHandleMarketFrameDedupesTicker(t *testing.T) {
	a := New(nil, config.Endpoint{}, "", "", nil)
	dedupe := newTickerDedupe()
	var events []schema.Event
	emit := func(evt schema.Event) { events = append(events, evt) }

	frame := []byte(`{"stream":"btcusdt@miniTicker","data":{"E":1,"s":"BTCUSDT","c":"100","o":"90","h":"101","l":"89","v":"5","q":"500"}}`)
	for i := 0; i < 3; i++ {
		if _, err := a.handleMarketFrame(frame, dedupe, emit); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if len(events) != 1 {
		t.Fatalf("consecutive equal lastPrice must dedupe, events = %d", len(events))
	}
	changed := []byte(`{"stream":"btcusdt@miniTicker","data":{"E":2,"s":"BTCUSDT","c":"101","o":"90","h":"101","l":"89","v":"5","q":"500"}}`)
	if _, err := a.handleMarketFrame(changed, dedupe, emit); err != nil {
		t.Fatalf("changed frame: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("price change must emit, events = %d", len(events))
	}
}

func TestHandleMarketFrameKlineAndDepth(t *testing.T) {
	a := New(nil, config.Endpoint{}, "", "", nil)
	dedupe := newTickerDedupe()
	var events []schema.Event
	emit := func(evt schema.Event) { events = append(events, evt) }

	kline := []byte(`{"stream":"btcusdt@kline_1m","data":{"E":5,"s":"BTCUSDT","k":{"t":100,"T":159,"i":"1m","o":"1","c":"2","h":"3","l":"0.5","v":"10","n":7,"x":false,"q":"20"}}}`)
	if _, err := a.handleMarketFrame(kline, dedupe, emit); err != nil {
		t.Fatalf("kline: %v", err)
	}
	candle, ok := events[0].(schema.Candle)
	if !ok || candle.StartTime != 100 || candle.Interval != "1m" {
		t.Fatalf("candle = %+v", events[0])
	}

	depth := []byte(`{"stream":"btcusdt@depth5","data":{"lastUpdateId":7,"bids":[["10","1"]],"asks":[["11","2"]]}}`)
	if _, err := a.handleMarketFrame(depth, dedupe, emit); err != nil {
		t.Fatalf("depth: %v", err)
	}
	book, ok := events[1].(schema.OrderBookTop)
	if !ok || book.Symbol != "BTCUSDT" || book.Bids[0].Qty() != "1" {
		t.Fatalf("book = %+v", events[1])
	}
}

func TestHandleUserFrameExecutionReport(t *testing.T) {
	a := New(nil, config.Endpoint{}, "", "", nil)
	var events []schema.Event
	emit := func(evt schema.Event) { events = append(events, evt) }

	frame := []byte(`{"e":"executionReport","E":1,"s":"BTCUSDT","c":"cid","S":"BUY","o":"LIMIT","f":"GTC",` +
		`"q":"1","p":"100","P":"0","F":"0","g":-1,"C":"","x":"TRADE","X":"PARTIALLY_FILLED","r":"NONE",` +
		`"i":42,"l":"0.4","z":"0.4","L":"100","n":"0.01","N":"USDT","T":99,"t":7,"w":true,"m":true,` +
		`"O":90,"Z":"40","Y":"40","Q":"0"}`)
	if _, err := a.handleUserFrame(frame, emit); err != nil {
		t.Fatalf("user frame: %v", err)
	}
	report, ok := events[0].(schema.ExecutionReport)
	if !ok {
		t.Fatalf("event type = %T", events[0])
	}
	if report.OrderID != 42 || report.LastExecutedQuantity != "0.4" || report.Status != schema.StatusPartiallyFilled {
		t.Fatalf("report = %+v", report)
	}
	if report.LastExecutedQuantity == "" || !strings.EqualFold(string(report.Side), "BUY") {
		t.Fatalf("report fields = %+v", report)
	}
}

func TestHandleUserFrameAccountPosition(t *testing.T) {
	a := New(nil, config.Endpoint{}, "", "", nil)
	var events []schema.Event
	emit := func(evt schema.Event) { events = append(events, evt) }

	frame := []byte(`{"e":"outboundAccountPosition","E":10,"u":11,"B":[{"a":"BTC","f":"1","l":"0.5"}]}`)
	if _, err := a.handleUserFrame(frame, emit); err != nil {
		t.Fatalf("frame: %v", err)
	}
	pos, ok := events[0].(schema.OutboundAccountPosition)
	if !ok || len(pos.Balances) != 1 || pos.Balances[0].Asset != "BTC" {
		t.Fatalf("position = %+v", events[0])
	}
}
