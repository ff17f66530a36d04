package huobi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/internal/rest"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/venue"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ep := config.Endpoint{APIPublic: srv.URL, APIAuth: srv.URL, WSPublic: "wss://unused", WSAuth: "wss://unused"}
	a := New(nil, ep, "key", "secret", nil)
	a.rest = rest.NewClient(schema.VenueHuobi, rest.NewLatch(),
		rest.WithHTTPClient(srv.Client()),
		rest.WithRateLimit(rate.NewLimiter(rate.Inf, 1)),
		rest.WithSignFunc(a.SignRequest),
	)
	return a
}

func TestSignRequestSignsQuery(t *testing.T) {
	a := New(nil, config.Endpoint{}, "key", "secret", nil)
	a.clock = func() time.Time { return time.UnixMilli(1700000000000) }

	req := rest.Request{Method: http.MethodGet, Base: "https://api.example.test", Path: "/v1/account/accounts"}
	if err := a.SignRequest(context.Background(), &req); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if req.Query.Get("AccessKeyId") != "key" {
		t.Fatalf("access key = %q", req.Query.Get("AccessKeyId"))
	}
	if req.Query.Get("SignatureMethod") != "HmacSHA384" || req.Query.Get("SignatureVersion") != "2" {
		t.Fatalf("signature params = %v", req.Query)
	}
	if req.Query.Get("Timestamp") != "2023-11-14T22:13:20" {
		t.Fatalf("timestamp = %q", req.Query.Get("Timestamp"))
	}
	if len(req.Query.Get("Signature")) != 96 {
		t.Fatalf("signature length = %d, want 96 hex chars", len(req.Query.Get("Signature")))
	}
}

func TestPrepareResolvesSpotAccount(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/account/accounts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("Signature") == "" {
			t.Error("request not signed")
		}
		_, _ = w.Write([]byte(`{"status":"ok","data":[{"id":11,"type":"point"},{"id":22,"type":"spot"}]}`))
	})

	if err := a.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if a.AccountID() != 22 {
		t.Fatalf("account id = %d", a.AccountID())
	}
}

func TestExchangeInfoBuildsSymbolTable(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/common/timestamp":
			_, _ = w.Write([]byte(`{"status":"ok","data":1700000000000}`))
		case "/v1/common/symbols":
			_, _ = w.Write([]byte(`{"status":"ok","data":[` +
				`{"symbol":"btcusdt","base-currency":"btc","quote-currency":"usdt",` +
				`"amount-precision":4,"price-precision":2,"min-order-amt":"0.0001",` +
				`"max-order-amt":"1000","min-order-value":"5","state":"online"},` +
				`{"symbol":"btc3lusdt","base-currency":"btc3l","quote-currency":"usdt",` +
				`"amount-precision":4,"price-precision":4,"underlying":"btcusdt"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	info, err := a.ExchangeInfo(context.Background())
	if err != nil {
		t.Fatalf("exchange info: %v", err)
	}
	if info.ServerTime != 1700000000000 {
		t.Fatalf("server time = %d", info.ServerTime)
	}
	if len(info.Symbols) != 1 {
		t.Fatalf("leveraged listing must be skipped, symbols = %d", len(info.Symbols))
	}
	sym := info.Symbols[0]
	if sym.Symbol != "BTCUSDT" || sym.BaseAsset != "BTC" || sym.QuoteAsset != "USDT" {
		t.Fatalf("symbol = %+v", sym)
	}
	if sym.Filters.Price.TickSize != "0.01" || sym.Filters.LotSize.StepSize != "0.0001" {
		t.Fatalf("filters = %+v", sym.Filters)
	}
	if sym.Filters.MinNotional.MinNotional != "5" {
		t.Fatalf("minNotional = %q", sym.Filters.MinNotional.MinNotional)
	}
	if a.wireFor("BTCUSDT") != "tBTC:USDT" {
		t.Fatalf("wire symbol = %q", a.wireFor("BTCUSDT"))
	}
}

const orderJSON = `{"id":42,"symbol":"tBTC:USDT","client-order-id":"cid-1",` +
	`"price":"100","amount":"1","field-amount":"0.5","field-cash-amount":"50",` +
	`"type":"buy-limit","state":"partial-filled","created-at":1700000000000}`

func TestPlaceOrderPollsUntilVisible(t *testing.T) {
	var orderCalls int
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/order/orders/place":
			_, _ = w.Write([]byte(`{"status":"ok","data":"42"}`))
		case "/v1/order/orders/42":
			orderCalls++
			if orderCalls == 1 {
				_, _ = w.Write([]byte(`{"status":"error","err-code":"base-record-invalid","err-msg":"record invalid"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok","data":` + orderJSON + `}`))
		case "/v1/order/openOrders":
			_, _ = w.Write([]byte(`{"status":"ok","data":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	order, err := a.PlaceOrder(context.Background(), orderRequest())
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if orderCalls != 2 {
		t.Fatalf("order polls = %d", orderCalls)
	}
	if order.OrderID != 42 || order.Symbol != "BTCUSDT" || order.Side != schema.SideBuy {
		t.Fatalf("order = %+v", order)
	}
	if order.ExecutedQty != "0.5" || order.Status != schema.StatusPartiallyFilled {
		t.Fatalf("order = %+v", order)
	}
}

func TestOrderFallsBackToOpenOrders(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/order/orders/42":
			_, _ = w.Write([]byte(`{"status":"error","err-code":"base-record-invalid","err-msg":"record invalid"}`))
		case "/v1/order/openOrders":
			_, _ = w.Write([]byte(`{"status":"ok","data":[` + orderJSON + `]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	order, err := a.Order(context.Background(), "BTCUSDT", 42)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if order.OrderID != 42 || order.CummulativeQuoteQty != "50" {
		t.Fatalf("order = %+v", order)
	}
}

func TestCancelOpenOrdersFiltersConfirmed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/order/orders/batchcancel" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok","data":{"success":["42"],"failed":[{"order-id":"43"}]}}`))
	})

	cancelled, err := a.CancelOpenOrders(context.Background(), "BTCUSDT",
		[]schema.Order{{OrderID: 42}, {OrderID: 43}})
	if err != nil {
		t.Fatalf("batch cancel: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].OrderID != 42 {
		t.Fatalf("cancelled = %+v", cancelled)
	}
	if cancelled[0].Status != schema.StatusCanceled {
		t.Fatalf("status = %q", cancelled[0].Status)
	}
}

func TestAccountInformationMergesBalanceRows(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/account/accounts/9/balance" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok","data":{"list":[` +
			`{"currency":"btc","type":"trade","balance":"1.5"},` +
			`{"currency":"btc","type":"frozen","balance":"0.5"},` +
			`{"currency":"eth","type":"trade","balance":"0"},` +
			`{"currency":"usdt","type":"trade","balance":"100"}]}}`))
	})
	a.accountID = 9

	info, err := a.AccountInformation(context.Background())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if len(info.Balances) != 2 {
		t.Fatalf("zero rows must be dropped, balances = %+v", info.Balances)
	}
	if info.Balances[0].Asset != "BTC" || info.Balances[0].Free != "1.5" || info.Balances[0].Locked != "0.5" {
		t.Fatalf("btc balance = %+v", info.Balances[0])
	}
	if info.Balances[1].Asset != "USDT" || info.Balances[1].Locked != "0" {
		t.Fatalf("usdt balance = %+v", info.Balances[1])
	}
}

func TestKlinesSortedAscending(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("period"); got != "60min" {
			t.Errorf("period = %q", got)
		}
		_, _ = w.Write([]byte(`{"status":"ok","data":[` +
			`{"id":1700003600,"open":101,"close":102,"low":100,"high":103,"amount":2,"vol":200,"count":9},` +
			`{"id":1700000000,"open":100,"close":101,"low":99,"high":102,"amount":1,"vol":100,"count":5}]}`))
	})

	klines, err := a.Klines(context.Background(), "BTCUSDT", "1h", 2, 0, 0)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(klines) != 2 || klines[0].OpenTime != 1700000000000 {
		t.Fatalf("klines = %+v", klines)
	}
	if klines[0].CloseTime != 1700000000000+3600000-1 {
		t.Fatalf("close time = %d", klines[0].CloseTime)
	}
	if klines[1].Open != "101" || klines[1].Trades != 9 {
		t.Fatalf("kline = %+v", klines[1])
	}
}

func TestOrderBookUsesEnvelopeTimestamp(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("depth") != "10" || q.Get("type") != "step0" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"status":"ok","ts":1700000000123,` +
			`"tick":{"bids":[[100,2],[99,1]],"asks":[[101,3]]}}`))
	})

	book, err := a.OrderBook(context.Background(), "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if book.LastUpdateID != 1700000000123 {
		t.Fatalf("last update id = %d", book.LastUpdateID)
	}
	if len(book.Bids) != 2 || book.Bids[0].Price() != "100" || book.Asks[0].Qty() != "3" {
		t.Fatalf("book = %+v", book)
	}
}

func TestOrderTradesParsesKebabFields(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/order/orders/42/matchresults" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok","data":[` +
			`{"symbol":"tBTC:USDT","trade-id":7,"id":42,"price":"100","filled-amount":"0.4",` +
			`"filled-fees":"0.04","fee-currency":"usdt","created-at":1700000000000,` +
			`"type":"buy-limit","role":"maker"}]}`))
	})

	trades, err := a.OrderTrades(context.Background(), "BTCUSDT", 42)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %+v", trades)
	}
	trade := trades[0]
	if trade.ID != 7 || trade.OrderID != 42 || trade.QuoteQty != "40" {
		t.Fatalf("trade = %+v", trade)
	}
	if !trade.IsBuyer || !trade.IsMaker || trade.CommissionAsset != "USDT" {
		t.Fatalf("trade = %+v", trade)
	}
}

func orderRequest() venue.OrderRequest {
	return venue.OrderRequest{
		Symbol: "BTCUSDT", Side: schema.SideBuy, Type: schema.TypeLimit,
		TimeInForce: schema.TIFGTC, Quantity: "1", Price: "100",
		NewClientOrderID: "cid-1",
	}
}

const mergedDetailJSON = `{"status":"ok","ch":"market.btcusdt.detail.merged","ts":1700000000000,
	"tick":{"amount":120.5,"count":888,"open":30000,"close":30600,"low":29500,"high":31000,
	"vol":3672000,"bid":[30590,2],"ask":[30610,3]}}`

func TestSymbolPriceTickerQuotesMergedClose(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/detail/merged" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "btcusdt" {
			t.Errorf("symbol = %s", r.URL.Query().Get("symbol"))
		}
		_, _ = w.Write([]byte(mergedDetailJSON))
	})

	tick, err := a.SymbolPriceTicker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if tick.Symbol != "BTCUSDT" || tick.Price != "30600" {
		t.Fatalf("ticker = %+v", tick)
	}
}

func TestTickerStatisticsFromMergedDetail(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(mergedDetailJSON))
	})

	st, err := a.TickerPriceChangeStatistics(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.PriceChange != "600" || st.PriceChangePercent != "2" {
		t.Fatalf("stats = %+v", st)
	}
	if st.OpenPrice != "30000" || st.LastPrice != "30600" {
		t.Fatalf("stats = %+v", st)
	}
	if st.BidPrice != "30590" || st.AskPrice != "30610" {
		t.Fatalf("stats = %+v", st)
	}
	if st.Volume != "120.5" || st.QuoteVolume != "3672000" || st.Count != 888 {
		t.Fatalf("volumes = %+v", st)
	}
	if st.CloseTime != 1700000000000 {
		t.Fatalf("close time = %d", st.CloseTime)
	}
}
