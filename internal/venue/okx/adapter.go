package okx

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/rest"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/sign"
	"github.com/exwrap/martin/internal/telemetry"
	"github.com/exwrap/martin/internal/venue"
)

const (
	timestampLayout = "2006-01-02T15:04:05.000Z"
	placeAttempts   = 10
	tradeMode       = "cash"
)

// Adapter talks to the okx-style venue.
type Adapter struct {
	rest       *rest.Client
	endpoints  config.Endpoint
	apiKey     string
	apiSecret  []byte
	passphrase string
	log        observability.Logger
	clock      func() time.Time
	sleep      func(context.Context, time.Duration) error
	metrics    *telemetry.Instruments

	pairMu sync.RWMutex
	pairs  map[string]string // canonical -> wire
}

var _ venue.Adapter = (*Adapter)(nil)

// New builds the adapter. The rest client must carry this adapter's
// SignRequest hook.
func New(restClient *rest.Client, endpoints config.Endpoint, apiKey, apiSecret, passphrase string, log observability.Logger) *Adapter {
	if log == nil {
		log = observability.Log()
	}
	return &Adapter{
		rest:       restClient,
		endpoints:  endpoints,
		apiKey:     apiKey,
		apiSecret:  []byte(apiSecret),
		passphrase: passphrase,
		log:        log,
		clock:      time.Now,
		sleep:      sleepCtx,
		pairs:      make(map[string]string),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Venue reports the adapter's tag.
func (a *Adapter) Venue() schema.Venue { return schema.VenueOKX }

// SetInstruments attaches metric instruments to the adapter's streams.
func (a *Adapter) SetInstruments(inst *telemetry.Instruments) { a.metrics = inst }

// Prepare has no venue-specific load work here.
func (a *Adapter) Prepare(context.Context) error { return nil }

// SignRequest signs "<timestamp><method><path><query><body>" and sets the
// venue's access headers, passphrase included.
func (a *Adapter) SignRequest(_ context.Context, req *rest.Request) error {
	ts := a.clock().UTC().Format(timestampLayout)
	path := req.Path
	if len(req.Query) > 0 {
		path += "?" + req.Query.Encode()
	}
	payload := ts + req.Method + path + string(req.Body)
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	req.Headers.Set("OK-ACCESS-KEY", a.apiKey)
	req.Headers.Set("OK-ACCESS-SIGN", sign.Sign(schema.VenueOKX, a.apiSecret, []byte(payload)))
	req.Headers.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Headers.Set("OK-ACCESS-PASSPHRASE", a.passphrase)
	req.Headers.Set("Content-Type", "application/json")
	return nil
}

// call issues the request and unwraps the venue envelope.
func (a *Adapter) call(ctx context.Context, req rest.Request) (envelope, error) {
	var env envelope
	if err := a.rest.Do(ctx, req, &env); err != nil {
		return envelope{}, err
	}
	if err := env.err(); err != nil {
		return envelope{}, err
	}
	return env, nil
}

// wireFor maps a canonical symbol to the venue's dash form.
func (a *Adapter) wireFor(symbol string) string {
	a.pairMu.RLock()
	wire, ok := a.pairs[symbol]
	a.pairMu.RUnlock()
	if ok {
		return wire
	}
	for _, quote := range []string{"USDT", "USDC", "USDK", "USD", "BTC", "ETH", "OKB"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "-" + quote
		}
	}
	if len(symbol) > 3 {
		return symbol[:len(symbol)-3] + "-" + symbol[len(symbol)-3:]
	}
	return symbol
}

type nativeInstrument struct {
	InstID   string `json:"instId"`
	BaseCcy  string `json:"baseCcy"`
	QuoteCcy string `json:"quoteCcy"`
	TickSz   string `json:"tickSz"`
	LotSz    string `json:"lotSz"`
	MinSz    string `json:"minSz"`
	MaxLmtSz string `json:"maxLmtSz"`
	State    string `json:"state"`
}

// ExchangeInfo builds the canonical descriptor from the spot instrument
// list.
func (a *Adapter) ExchangeInfo(ctx context.Context) (schema.ExchangeInfo, error) {
	serverTime, err := a.ServerTime(ctx)
	if err != nil {
		return schema.ExchangeInfo{}, err
	}
	query := url.Values{}
	query.Set("instType", "SPOT")
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v5/public/instruments", Query: query,
	})
	if err != nil {
		return schema.ExchangeInfo{}, err
	}
	var instruments []nativeInstrument
	if err := json.Unmarshal(env.Data, &instruments); err != nil {
		return schema.ExchangeInfo{}, err
	}

	pairs := make(map[string]string, len(instruments))
	out := schema.ExchangeInfo{
		Timezone:   "UTC",
		ServerTime: serverTime,
		Symbols:    make([]schema.SymbolInfo, 0, len(instruments)),
	}
	for _, inst := range instruments {
		base := strings.ToUpper(inst.BaseCcy)
		quote := strings.ToUpper(inst.QuoteCcy)
		canonical := base + quote
		pairs[canonical] = inst.InstID
		status := "TRADING"
		if inst.State != "live" {
			status = "BREAK"
		}
		out.Symbols = append(out.Symbols, schema.SymbolInfo{
			Symbol:             canonical,
			Status:             status,
			BaseAsset:          base,
			BaseAssetPrecision: 8,
			QuoteAsset:         quote,
			QuotePrecision:     8,
			OrderTypes:         []schema.OrderType{schema.TypeLimit, schema.TypeMarket},
			Filters: schema.Filters{
				Price: schema.PriceFilter{
					MinPrice: inst.TickSz, MaxPrice: "100000.00000000", TickSize: inst.TickSz,
				},
				LotSize: schema.LotSizeFilter{
					MinQty: inst.MinSz, MaxQty: inst.MaxLmtSz, StepSize: inst.LotSz,
				},
				MinNotional: schema.MinNotionalFilter{
					MinNotional:   mulStrings(inst.MinSz, inst.TickSz),
					ApplyToMarket: true,
					AvgPriceMins:  5,
				},
			},
			Permissions: []string{"SPOT"},
		})
	}
	a.pairMu.Lock()
	a.pairs = pairs
	a.pairMu.Unlock()
	sort.Slice(out.Symbols, func(i, j int) bool { return out.Symbols[i].Symbol < out.Symbols[j].Symbol })
	return out, nil
}

// ServerTime returns the venue clock.
func (a *Adapter) ServerTime(ctx context.Context) (int64, error) {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v5/public/time",
	})
	if err != nil {
		return 0, err
	}
	var rows []struct {
		Ts string `json:"ts"`
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errs.New(string(schema.VenueOKX), errs.CodeHTTP, errs.WithMessage("empty time payload"))
	}
	return pi64(rows[0].Ts), nil
}

// BookLimits is the venue's depth limit allow-list.
func (a *Adapter) BookLimits() []int { return []int{5, 10, 20, 50, 100} }

// OrderBook fetches a depth snapshot.
func (a *Adapter) OrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error) {
	query := url.Values{}
	query.Set("instId", a.wireFor(symbol))
	query.Set("sz", strconv.Itoa(limit))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v5/market/books", Query: query,
	})
	if err != nil {
		return schema.OrderBook{}, err
	}
	var rows []struct {
		Bids []bookRow `json:"bids"`
		Asks []bookRow `json:"asks"`
		Ts   string    `json:"ts"`
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return schema.OrderBook{}, err
	}
	if len(rows) == 0 {
		return schema.OrderBook{}, errs.New(string(schema.VenueOKX), errs.CodeHTTP, errs.WithMessage("empty book payload"))
	}
	return schema.OrderBook{
		LastUpdateID: pi64(rows[0].Ts),
		Bids:         toLevels(rows[0].Bids),
		Asks:         toLevels(rows[0].Asks),
	}, nil
}

type nativeTicker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	LastSz    string `json:"lastSz"`
	AskPx     string `json:"askPx"`
	BidPx     string `json:"bidPx"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
	Ts        string `json:"ts"`
}

func (a *Adapter) ticker(ctx context.Context, symbol string) (nativeTicker, error) {
	query := url.Values{}
	query.Set("instId", a.wireFor(symbol))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v5/market/ticker", Query: query,
	})
	if err != nil {
		return nativeTicker{}, err
	}
	var rows []nativeTicker
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nativeTicker{}, err
	}
	if len(rows) == 0 {
		return nativeTicker{}, errs.New(string(schema.VenueOKX), errs.CodeHTTP, errs.WithMessage("empty ticker payload"))
	}
	return rows[0], nil
}

// SymbolPriceTicker quotes the last trade price.
func (a *Adapter) SymbolPriceTicker(ctx context.Context, symbol string) (schema.SymbolPriceTicker, error) {
	tk, err := a.ticker(ctx, symbol)
	if err != nil {
		return schema.SymbolPriceTicker{}, err
	}
	return schema.SymbolPriceTicker{Symbol: strings.ToUpper(symbol), Price: orZero(tk.Last)}, nil
}

// TickerPriceChangeStatistics derives the 24h summary; vol24h is base
// volume, volCcy24h the quote volume.
func (a *Adapter) TickerPriceChangeStatistics(ctx context.Context, symbol string) (schema.TickerPriceChangeStatistics, error) {
	tk, err := a.ticker(ctx, symbol)
	if err != nil {
		return schema.TickerPriceChangeStatistics{}, err
	}
	last, _ := decimal.NewFromString(orZero(tk.Last))
	open, _ := decimal.NewFromString(orZero(tk.Open24h))
	change := last.Sub(open)
	percent := "0"
	if !open.IsZero() {
		percent = change.Div(open).Mul(decimal.NewFromInt(100)).String()
	}
	when := pi64(tk.Ts)
	if when == 0 {
		when = a.clock().UnixMilli()
	}
	return schema.TickerPriceChangeStatistics{
		Symbol:             strings.ToUpper(symbol),
		PriceChange:        change.String(),
		PriceChangePercent: percent,
		PrevClosePrice:     orZero(tk.Open24h),
		LastPrice:          orZero(tk.Last),
		LastQty:            orZero(tk.LastSz),
		BidPrice:           orZero(tk.BidPx),
		AskPrice:           orZero(tk.AskPx),
		OpenPrice:          orZero(tk.Open24h),
		HighPrice:          orZero(tk.High24h),
		LowPrice:           orZero(tk.Low24h),
		Volume:             orZero(tk.Vol24h),
		QuoteVolume:        orZero(tk.VolCcy24h),
		OpenTime:           when - 24*60*60*1000,
		CloseTime:          when,
		FirstID:            -1,
		LastID:             -1,
	}, nil
}

var intervalTable = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1H", "4h": "4H", "1d": "1D", "1w": "1W", "1M": "1M",
}

var intervalMillis = map[string]int64{
	"1m": 60_000, "5m": 300_000, "15m": 900_000, "30m": 1_800_000,
	"1h": 3_600_000, "4h": 14_400_000, "1d": 86_400_000,
	"1w": 7 * 86_400_000, "1M": 31 * 86_400_000,
}

// KlineIntervals is the venue's interval allow-list.
func (a *Adapter) KlineIntervals() []string {
	out := make([]string, 0, len(intervalTable))
	for interval := range intervalTable {
		out = append(out, interval)
	}
	sort.Strings(out)
	return out
}

// Klines fetches candle history; rows arrive newest first and are returned
// ascending by open time.
func (a *Adapter) Klines(ctx context.Context, symbol, interval string, limit int, _, _ int64) ([]schema.Kline, error) {
	bar, ok := intervalTable[interval]
	if !ok {
		return nil, errs.Validation("unsupported interval " + interval)
	}
	query := url.Values{}
	query.Set("instId", a.wireFor(symbol))
	query.Set("bar", bar)
	query.Set("limit", strconv.Itoa(limit))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v5/market/candles", Query: query,
	})
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, err
	}
	out := make([]schema.Kline, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 7 {
			continue
		}
		start := pi64(row[0])
		out = append(out, schema.Kline{
			OpenTime:      start,
			Open:          row[1],
			High:          row[2],
			Low:           row[3],
			Close:         row[4],
			Volume:        row[5],
			CloseTime:     start + intervalMillis[interval] - 1,
			QuoteVolume:   row[6],
			TakerBuyBase:  "0",
			TakerBuyQuote: "0",
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out, nil
}

type placeAck struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

func (ack placeAck) err() error {
	if ack.SCode == "" || ack.SCode == "0" {
		return nil
	}
	code := errs.CodeHTTP
	if _, ok := rateLimitCodes[ack.SCode]; ok {
		code = errs.CodeRateLimited
	}
	return errs.New(string(schema.VenueOKX), code,
		errs.WithMessage("order rejected"),
		errs.WithRawCode(ack.SCode),
		errs.WithRawMessage(ack.SMsg))
}

// PlaceOrder submits the order, retrying throttled attempts with a growing
// randomized pause, then fetches the resulting order.
func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (schema.Order, error) {
	body := map[string]string{
		"instId":  a.wireFor(req.Symbol),
		"tdMode":  tradeMode,
		"side":    strings.ToLower(string(req.Side)),
		"ordType": strings.ToLower(string(req.Type)),
		"sz":      req.Quantity,
	}
	if req.Price != "" {
		body["px"] = req.Price
	}
	if req.NewClientOrderID != "" {
		body["clOrdId"] = req.NewClientOrderID
	}
	data, err := json.Marshal(body)
	if err != nil {
		return schema.Order{}, err
	}

	var ack placeAck
	for attempt := 1; ; attempt++ {
		ack, err = a.submitOrder(ctx, data)
		if err == nil {
			break
		}
		if attempt >= placeAttempts || errs.CodeOf(err) != errs.CodeRateLimited {
			return schema.Order{}, err
		}
		pause := time.Duration(float64(attempt) * (0.1 + rand.Float64()*0.2) * float64(time.Second))
		if serr := a.sleep(ctx, pause); serr != nil {
			return schema.Order{}, serr
		}
	}
	return a.Order(ctx, req.Symbol, pi64(ack.OrdID))
}

func (a *Adapter) submitOrder(ctx context.Context, body []byte) (placeAck, error) {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/api/v5/trade/order",
		Body: body, Signed: true,
	})
	if err != nil {
		return placeAck{}, err
	}
	var acks []placeAck
	if err := json.Unmarshal(env.Data, &acks); err != nil {
		return placeAck{}, err
	}
	if len(acks) == 0 {
		return placeAck{}, errs.New(string(schema.VenueOKX), errs.CodeHTTP, errs.WithMessage("empty order ack"))
	}
	if err := acks[0].err(); err != nil {
		return placeAck{}, err
	}
	return acks[0], nil
}

// Order fetches one order.
func (a *Adapter) Order(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	query := url.Values{}
	query.Set("instId", a.wireFor(symbol))
	query.Set("ordId", strconv.FormatInt(orderID, 10))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v5/trade/order",
		Query: query, Signed: true,
	})
	if err != nil {
		return schema.Order{}, err
	}
	var natives []nativeOrder
	if err := json.Unmarshal(env.Data, &natives); err != nil {
		return schema.Order{}, err
	}
	if len(natives) == 0 {
		return schema.Order{}, errs.New(string(schema.VenueOKX), errs.CodeHTTP,
			errs.WithMessage("order not found"))
	}
	order := convertOrder(natives[0])
	order.Symbol = symbol
	return order, nil
}

// OpenOrders lists the symbol's live orders.
func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	query := url.Values{}
	query.Set("instType", "SPOT")
	query.Set("instId", a.wireFor(symbol))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v5/trade/orders-pending",
		Query: query, Signed: true,
	})
	if err != nil {
		return nil, err
	}
	var natives []nativeOrder
	if err := json.Unmarshal(env.Data, &natives); err != nil {
		return nil, err
	}
	out := make([]schema.Order, 0, len(natives))
	for _, native := range natives {
		order := convertOrder(native)
		order.Symbol = symbol
		out = append(out, order)
	}
	return out, nil
}

// CancelOrder submits the cancel and reports the order's current state;
// the venue client polls until CANCELED.
func (a *Adapter) CancelOrder(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	body, err := json.Marshal(map[string]string{
		"instId": a.wireFor(symbol),
		"ordId":  strconv.FormatInt(orderID, 10),
	})
	if err != nil {
		return schema.Order{}, err
	}
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/api/v5/trade/cancel-order",
		Body: body, Signed: true,
	})
	if err != nil {
		return schema.Order{}, err
	}
	var acks []placeAck
	if err := json.Unmarshal(env.Data, &acks); err != nil {
		return schema.Order{}, err
	}
	if len(acks) > 0 {
		if err := acks[0].err(); err != nil {
			return schema.Order{}, err
		}
	}
	return a.Order(ctx, symbol, orderID)
}

// CancelOpenOrders batch-cancels the given orders and returns the subset
// the venue accepted.
func (a *Adapter) CancelOpenOrders(ctx context.Context, symbol string, orders []schema.Order) ([]schema.Order, error) {
	if len(orders) == 0 {
		return []schema.Order{}, nil
	}
	wire := a.wireFor(symbol)
	batch := make([]map[string]string, 0, len(orders))
	for _, order := range orders {
		batch = append(batch, map[string]string{
			"instId": wire,
			"ordId":  strconv.FormatInt(order.OrderID, 10),
		})
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/api/v5/trade/cancel-batch-orders",
		Body: body, Signed: true,
	})
	if err != nil {
		return nil, err
	}
	var acks []placeAck
	if err := json.Unmarshal(env.Data, &acks); err != nil {
		return nil, err
	}
	accepted := make(map[int64]struct{}, len(acks))
	for _, ack := range acks {
		if ack.err() == nil {
			accepted[pi64(ack.OrdID)] = struct{}{}
		}
	}
	out := make([]schema.Order, 0, len(orders))
	for _, order := range orders {
		if _, ok := accepted[order.OrderID]; ok {
			order.Status = schema.StatusCanceled
			out = append(out, order)
		}
	}
	return out, nil
}

type balanceDetail struct {
	Ccy       string `json:"ccy"`
	AvailBal  string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
	UTime     string `json:"uTime"`
}

// AccountInformation fetches the trading account snapshot.
func (a *Adapter) AccountInformation(ctx context.Context) (schema.AccountInformation, error) {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v5/account/balance", Signed: true,
	})
	if err != nil {
		return schema.AccountInformation{}, err
	}
	var rows []struct {
		UTime   string          `json:"uTime"`
		Details []balanceDetail `json:"details"`
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return schema.AccountInformation{}, err
	}
	out := schema.AccountInformation{
		CanTrade:    true,
		CanDeposit:  true,
		CanWithdraw: true,
		UpdateTime:  a.clock().UnixMilli(),
		AccountType: "SPOT",
		Balances:    []schema.Balance{},
	}
	if len(rows) == 0 {
		return out, nil
	}
	if ts := pi64(rows[0].UTime); ts > 0 {
		out.UpdateTime = ts
	}
	for _, detail := range rows[0].Details {
		out.Balances = append(out.Balances, schema.Balance{
			Asset:  strings.ToUpper(detail.Ccy),
			Free:   orZero(detail.AvailBal),
			Locked: orZero(detail.FrozenBal),
		})
	}
	return out, nil
}

// FundingWallet fetches funding-account balances.
func (a *Adapter) FundingWallet(ctx context.Context, asset string, _ bool) ([]schema.FundingBalance, error) {
	query := url.Values{}
	if asset != "" {
		query.Set("ccy", asset)
	}
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v5/asset/balances",
		Query: query, Signed: true,
	})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Ccy       string `json:"ccy"`
		AvailBal  string `json:"availBal"`
		FrozenBal string `json:"frozenBal"`
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, err
	}
	out := make([]schema.FundingBalance, 0, len(rows))
	for _, row := range rows {
		out = append(out, schema.FundingBalance{
			Asset:        strings.ToUpper(row.Ccy),
			Free:         orZero(row.AvailBal),
			Locked:       orZero(row.FrozenBal),
			Freeze:       "0",
			Withdrawing:  "0",
			BtcValuation: "0",
		})
	}
	return out, nil
}

// AccountTrades fetches recent fills for symbol.
func (a *Adapter) AccountTrades(ctx context.Context, symbol string, startTime int64, limit int) ([]schema.Trade, error) {
	query := url.Values{}
	query.Set("instType", "SPOT")
	query.Set("instId", a.wireFor(symbol))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if startTime > 0 {
		query.Set("begin", strconv.FormatInt(startTime, 10))
	}
	return a.fills(ctx, query, symbol)
}

// OrderTrades fetches one order's fills.
func (a *Adapter) OrderTrades(ctx context.Context, symbol string, orderID int64) ([]schema.Trade, error) {
	query := url.Values{}
	query.Set("instType", "SPOT")
	query.Set("instId", a.wireFor(symbol))
	query.Set("ordId", strconv.FormatInt(orderID, 10))
	return a.fills(ctx, query, symbol)
}

func (a *Adapter) fills(ctx context.Context, query url.Values, symbol string) ([]schema.Trade, error) {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v5/trade/fills",
		Query: query, Signed: true,
	})
	if err != nil {
		return nil, err
	}
	var natives []nativeFill
	if err := json.Unmarshal(env.Data, &natives); err != nil {
		return nil, err
	}
	out := make([]schema.Trade, 0, len(natives))
	for _, native := range natives {
		trade := convertFill(native)
		trade.Symbol = symbol
		out = append(out, trade)
	}
	return out, nil
}
