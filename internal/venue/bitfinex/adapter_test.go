package bitfinex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/rest"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/venue"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ep := config.Endpoint{APIPublic: srv.URL, APIAuth: srv.URL, WSPublic: "wss://unused", WSAuth: "wss://unused"}
	a := New(nil, ep, "key", "secret", venue.NewTracker(), venue.NewBuffer(), nil)
	a.rest = rest.NewClient(schema.VenueBitfinex, rest.NewLatch(),
		rest.WithHTTPClient(srv.Client()),
		rest.WithRateLimit(rate.NewLimiter(rate.Inf, 1)),
		rest.WithSignFunc(a.SignRequest),
	)
	return a
}

func TestExchangeInfoBuildsSymbolTable(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/symbols_details":
			_, _ = w.Write([]byte(`[{"pair":"btcusdt","price_precision":5,` +
				`"minimum_order_size":"0.0006","maximum_order_size":"2000.0"}]`))
		case "/v2/tickers":
			_, _ = w.Write([]byte(`[["BTC/USDT",30000.1,1,30000.2,1,10,0.01,30000,100,31000,29000]]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	info, err := a.ExchangeInfo(context.Background())
	if err != nil {
		t.Fatalf("exchange info: %v", err)
	}
	if len(info.Symbols) != 1 {
		t.Fatalf("symbols = %d", len(info.Symbols))
	}
	sym := info.Symbols[0]
	if sym.Symbol != "BTCUSDT" || sym.BaseAsset != "BTC" || sym.QuoteAsset != "USDT" {
		t.Fatalf("symbol = %+v", sym)
	}
	if sym.Filters.Price.TickSize != "0.00001" {
		t.Fatalf("tickSize = %q", sym.Filters.Price.TickSize)
	}
	if sym.Filters.MinNotional.MinNotional != "18" {
		t.Fatalf("minNotional = %q", sym.Filters.MinNotional.MinNotional)
	}
	if a.wireSymbol("BTCUSDT") != "BTC/USDT" {
		t.Fatalf("wire symbol = %q", a.wireSymbol("BTCUSDT"))
	}
}

func TestSignRequestSetsAuthHeaders(t *testing.T) {
	a := New(nil, config.Endpoint{}, "key", "secret", venue.NewTracker(), venue.NewBuffer(), nil)
	a.clock = func() time.Time { return time.UnixMilli(1700000000000) }

	req := rest.Request{Path: "/v2/auth/r/wallets"}
	if err := a.SignRequest(context.Background(), &req); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if req.Headers.Get("bfx-nonce") != "1700000000000" {
		t.Fatalf("nonce = %q", req.Headers.Get("bfx-nonce"))
	}
	if req.Headers.Get("bfx-apikey") != "key" {
		t.Fatalf("api key header missing")
	}
	if len(req.Headers.Get("bfx-signature")) != 44 {
		t.Fatalf("signature length = %d, want 44 base64 chars", len(req.Headers.Get("bfx-signature")))
	}

	// frozen clock, nonce must still advance
	second := rest.Request{Path: "/v2/auth/r/wallets"}
	if err := a.SignRequest(context.Background(), &second); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if second.Headers.Get("bfx-nonce") != "1700000000001" {
		t.Fatalf("second nonce = %q", second.Headers.Get("bfx-nonce"))
	}
}

const submitSuccess = `[1700000000000,"on-req",null,null,` +
	`[[42,null,"cid-1","BTC/USDT",1700000000000,1700000000000,1.0,1.0,"EXCHANGE LIMIT",` +
	`null,null,null,0,"ACTIVE",null,null,100.0,0,0,0]],null,"SUCCESS","Submitting order"]`

func TestPlaceOrderParsesNotification(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/auth/w/order/submit" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("bfx-signature") == "" {
			t.Errorf("request not signed")
		}
		_, _ = w.Write([]byte(submitSuccess))
	})

	order, err := a.PlaceOrder(context.Background(), venue.OrderRequest{
		Symbol: "BTCUSDT", Side: schema.SideBuy, Type: schema.TypeLimit,
		TimeInForce: schema.TIFGTC, Quantity: "1", Price: "100",
		NewClientOrderID: "cid-1",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if order.OrderID != 42 || order.Symbol != "BTCUSDT" {
		t.Fatalf("order = %+v", order)
	}
	if order.Side != schema.SideBuy || order.OrigQty != "1" || order.Price != "100" {
		t.Fatalf("order = %+v", order)
	}
	if order.Status != schema.StatusNew {
		t.Fatalf("status = %q", order.Status)
	}
}

func TestPlaceOrderRejectedNotification(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1700000000000,"on-req",null,null,null,null,"ERROR","Invalid order: not enough balance"]`))
	})

	_, err := a.PlaceOrder(context.Background(), venue.OrderRequest{
		Symbol: "BTCUSDT", Side: schema.SideBuy, Type: schema.TypeLimit,
		TimeInForce: schema.TIFGTC, Quantity: "1", Price: "100",
	})
	if err == nil {
		t.Fatal("rejected notification must error")
	}
	if errs.CodeOf(err) != errs.CodeHTTP {
		t.Fatalf("code = %v", errs.CodeOf(err))
	}
}

func TestOrderBookSplitsSides(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/book/BTC/USDT/P0" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[[100,1,2],[99,1,1],[101,2,-3]]`))
	})

	book, err := a.OrderBook(context.Background(), "BTCUSDT", 25)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("book = %+v", book)
	}
	if book.Bids[0].Price() != "100" || book.Bids[0].Qty() != "2" {
		t.Fatalf("best bid = %+v", book.Bids[0])
	}
	if book.Asks[0].Price() != "101" || book.Asks[0].Qty() != "3" {
		t.Fatalf("best ask = %+v", book.Asks[0])
	}
}

func TestOrderTriesHistoryThenLive(t *testing.T) {
	var paths []string
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v2/auth/r/orders/BTC/USDT/hist" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[[42,null,"cid","BTC/USDT",1,2,0.5,1.0,"EXCHANGE LIMIT",` +
			`null,null,null,0,"ACTIVE",null,null,100.0,0,0,0]]`))
	})

	order, err := a.Order(context.Background(), "BTCUSDT", 42)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if len(paths) != 2 || paths[1] != "/v2/auth/r/orders/BTC/USDT" {
		t.Fatalf("paths = %v", paths)
	}
	if order.OrderID != 42 || order.ExecutedQty != "0.5" {
		t.Fatalf("order = %+v", order)
	}
	if order.Status != schema.StatusPartiallyFilled {
		t.Fatalf("status = %q", order.Status)
	}
}

func TestCancelOpenOrdersMarksCancelled(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/auth/w/order/cancel/multi" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[1700000000000,"oc_multi-req",null,null,` +
			`[[42,null,"cid","BTC/USDT",1,2,1.0,1.0,"EXCHANGE LIMIT",` +
			`null,null,null,0,"ACTIVE",null,null,100.0,0,0,0]],null,"SUCCESS","Submitted"]`))
	})

	cancelled, err := a.CancelOpenOrders(context.Background(), "BTCUSDT",
		[]schema.Order{{OrderID: 42}})
	if err != nil {
		t.Fatalf("cancel multi: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].Status != schema.StatusCanceled {
		t.Fatalf("cancelled = %+v", cancelled)
	}
}

func TestAccountInformationFiltersExchangeWallets(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[["exchange","BTC",1.5,0,1.0],["funding","BTC",9,0,9],["exchange","USDT",100,0,100]]`))
	})

	info, err := a.AccountInformation(context.Background())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if len(info.Balances) != 2 {
		t.Fatalf("balances = %+v", info.Balances)
	}
	if info.Balances[0].Asset != "BTC" || info.Balances[0].Free != "1" || info.Balances[0].Locked != "0.5" {
		t.Fatalf("btc balance = %+v", info.Balances[0])
	}
}

func TestAccountTradesParsesArrays(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[[7,"BTC/USDT",1700000000000,42,-0.4,100.5,"EXCHANGE LIMIT",100.5,1,-0.04,"USDT"]]`))
	})

	trades, err := a.AccountTrades(context.Background(), "BTCUSDT", 0, 50)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %+v", trades)
	}
	trade := trades[0]
	if trade.ID != 7 || trade.OrderID != 42 || trade.Qty != "0.4" {
		t.Fatalf("trade = %+v", trade)
	}
	if trade.IsBuyer || !trade.IsMaker || trade.Commission != "0.04" {
		t.Fatalf("trade = %+v", trade)
	}
}

const tickerRowJSON = `[30000,5,30010,4,600,0.02,30600,120,31000,29500]`

func TestSymbolPriceTickerQuotesLast(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/ticker/BTC/USDT" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(tickerRowJSON))
	})

	tick, err := a.SymbolPriceTicker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if tick.Symbol != "BTCUSDT" || tick.Price != "30600" {
		t.Fatalf("ticker = %+v", tick)
	}
}

func TestTickerStatisticsReconstructsOpen(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(tickerRowJSON))
	})
	a.clock = func() time.Time { return time.UnixMilli(1700000000000) }

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
	if st.BidPrice != "30000" || st.AskPrice != "30010" {
		t.Fatalf("stats = %+v", st)
	}
	if st.Volume != "120" || st.QuoteVolume != "3672000" {
		t.Fatalf("volumes = %+v", st)
	}
	if st.CloseTime != 1700000000000 || st.OpenTime != 1700000000000-24*60*60*1000 {
		t.Fatalf("window = %+v", st)
	}
	if st.FirstID != -1 || st.LastID != -1 {
		t.Fatalf("trade ids = %+v", st)
	}
}

func TestTickerStatisticsShortRow(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[30000,5]`))
	})

	if _, err := a.TickerPriceChangeStatistics(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("short row must error")
	}
}
