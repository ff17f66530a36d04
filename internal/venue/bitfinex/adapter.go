// Package bitfinex adapts the array-encoded venue: v1 symbol metadata,
// nonce-signed v2 auth REST, and a private stream whose trade frames can
// outrun the order placement response.
package bitfinex

import (
	"context"
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

const affCode = "v_4az2nCP"

type pairInfo struct {
	wire  string
	base  string
	quote string
}

// Adapter talks to the bitfinex-style venue.
type Adapter struct {
	rest      *rest.Client
	endpoints config.Endpoint
	apiKey    string
	apiSecret []byte
	tracker   *venue.Tracker
	buffer    *venue.Buffer
	log       observability.Logger
	clock     func() time.Time
	metrics   *telemetry.Instruments

	nonceMu   sync.Mutex
	lastNonce int64

	pairMu sync.RWMutex
	pairs  map[string]pairInfo
}

var _ venue.Adapter = (*Adapter)(nil)

// New builds the adapter. The rest client must carry this adapter's
// SignRequest hook; tracker and buffer are shared with the venue client and
// the private stream.
func New(restClient *rest.Client, endpoints config.Endpoint, apiKey, apiSecret string,
	tracker *venue.Tracker, buffer *venue.Buffer, log observability.Logger) *Adapter {
	if log == nil {
		log = observability.Log()
	}
	return &Adapter{
		rest:      restClient,
		endpoints: endpoints,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		tracker:   tracker,
		buffer:    buffer,
		log:       log,
		clock:     time.Now,
		pairs:     make(map[string]pairInfo),
	}
}

// Venue reports the adapter's tag.
func (a *Adapter) Venue() schema.Venue { return schema.VenueBitfinex }

// SetInstruments attaches metric instruments to the adapter's streams.
func (a *Adapter) SetInstruments(inst *telemetry.Instruments) { a.metrics = inst }

// Prepare has no venue-specific load work; the pair table is built by
// ExchangeInfo.
func (a *Adapter) Prepare(context.Context) error { return nil }

// nonce returns a strictly increasing millisecond nonce.
func (a *Adapter) nonce() string {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	now := a.clock().UnixMilli()
	if now <= a.lastNonce {
		now = a.lastNonce + 1
	}
	a.lastNonce = now
	return strconv.FormatInt(now, 10)
}

// SignRequest signs "/api<path><nonce><body>" and sets the auth headers.
func (a *Adapter) SignRequest(_ context.Context, req *rest.Request) error {
	nonce := a.nonce()
	payload := "/api" + req.Path + nonce + string(req.Body)
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	req.Headers.Set("bfx-nonce", nonce)
	req.Headers.Set("bfx-apikey", a.apiKey)
	req.Headers.Set("bfx-signature", sign.Sign(schema.VenueBitfinex, a.apiSecret, []byte(payload)))
	req.Headers.Set("Content-Type", "application/json")
	return nil
}

func splitPair(pair string) (base, quote string) {
	pair = strings.ToUpper(pair)
	if i := strings.IndexByte(pair, ':'); i >= 0 {
		return pair[:i], pair[i+1:]
	}
	if len(pair) > 3 {
		return pair[:len(pair)-3], pair[len(pair)-3:]
	}
	return pair, ""
}

var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH", "EUR", "GBP"}

// wireSymbol maps a canonical symbol to the venue's BASE/QUOTE form.
func (a *Adapter) wireSymbol(symbol string) string {
	a.pairMu.RLock()
	info, ok := a.pairs[symbol]
	a.pairMu.RUnlock()
	if ok {
		return info.wire
	}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "/" + quote
		}
	}
	if len(symbol) > 3 {
		return symbol[:len(symbol)-3] + "/" + symbol[len(symbol)-3:]
	}
	return symbol
}

type symbolDetail struct {
	Pair             string `json:"pair"`
	PricePrecision   int    `json:"price_precision"`
	MinimumOrderSize string `json:"minimum_order_size"`
	MaximumOrderSize string `json:"maximum_order_size"`
}

// ExchangeInfo builds the canonical descriptor from v1 symbol metadata plus
// last prices, which size the notional floor.
func (a *Adapter) ExchangeInfo(ctx context.Context) (schema.ExchangeInfo, error) {
	var details []symbolDetail
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/v1/symbols_details",
	}, &details)
	if err != nil {
		return schema.ExchangeInfo{}, err
	}

	pairs := make(map[string]pairInfo, len(details))
	wires := make([]string, 0, len(details))
	for _, d := range details {
		base, quote := splitPair(d.Pair)
		if quote == "" {
			continue
		}
		canonical := base + quote
		info := pairInfo{wire: base + "/" + quote, base: base, quote: quote}
		pairs[canonical] = info
		wires = append(wires, info.wire)
	}
	a.pairMu.Lock()
	a.pairs = pairs
	a.pairMu.Unlock()

	lastPrices, err := a.fetchLastPrices(ctx, wires)
	if err != nil {
		return schema.ExchangeInfo{}, err
	}

	out := schema.ExchangeInfo{
		Timezone:   "UTC",
		ServerTime: a.clock().UnixMilli(),
		RateLimits: []schema.RateLimit{
			{RateLimitType: "REQUEST_WEIGHT", Interval: "MINUTE", IntervalNum: 1, Limit: 90},
		},
		Symbols: make([]schema.SymbolInfo, 0, len(details)),
	}
	for _, d := range details {
		base, quote := splitPair(d.Pair)
		if quote == "" {
			continue
		}
		canonical := base + quote
		tickSize := decimal.New(1, int32(-d.PricePrecision)).String()
		minNotional := "0"
		if price, ok := lastPrices[pairs[canonical].wire]; ok {
			minQty, qerr := decimal.NewFromString(d.MinimumOrderSize)
			if qerr == nil {
				minNotional = minQty.Mul(price).String()
			}
		}
		out.Symbols = append(out.Symbols, schema.SymbolInfo{
			Symbol:             canonical,
			Status:             "TRADING",
			BaseAsset:          base,
			BaseAssetPrecision: 8,
			QuoteAsset:         quote,
			QuotePrecision:     d.PricePrecision,
			OrderTypes:         []schema.OrderType{schema.TypeLimit, schema.TypeMarket},
			Filters: schema.Filters{
				Price: schema.PriceFilter{
					MinPrice: tickSize, MaxPrice: "1000000000", TickSize: tickSize,
				},
				LotSize: schema.LotSizeFilter{
					MinQty:   d.MinimumOrderSize,
					MaxQty:   d.MaximumOrderSize,
					StepSize: "0.00000001",
				},
				MinNotional: schema.MinNotionalFilter{MinNotional: minNotional},
			},
			Permissions: []string{"SPOT"},
		})
	}
	sort.Slice(out.Symbols, func(i, j int) bool { return out.Symbols[i].Symbol < out.Symbols[j].Symbol })
	return out, nil
}

// fetchLastPrices reads the multi-symbol ticker; entry layout is
// [symbol, bid, bidSize, ask, askSize, change, changeRel, last, ...].
func (a *Adapter) fetchLastPrices(ctx context.Context, wires []string) (map[string]decimal.Decimal, error) {
	query := url.Values{}
	query.Set("symbols", strings.Join(wires, ","))
	var raw json.RawMessage
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/v2/tickers", Query: query,
	}, &raw)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	if err := decodeNumbers(raw, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		out[num(at(row, 0))] = dec(at(row, 7))
	}
	return out, nil
}

// ServerTime verifies platform status and reports the local clock; the venue
// exposes no time endpoint.
func (a *Adapter) ServerTime(ctx context.Context) (int64, error) {
	var raw json.RawMessage
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/v2/platform/status",
	}, &raw)
	if err != nil {
		return 0, err
	}
	var status []any
	if err := decodeNumbers(raw, &status); err != nil {
		return 0, err
	}
	if len(status) == 0 || i64(at(status, 0)) != 1 {
		return 0, errs.New(string(schema.VenueBitfinex), errs.CodeOther,
			errs.WithMessage("platform in maintenance"))
	}
	return a.clock().UnixMilli(), nil
}

// tickerRow fetches the venue's flat ticker array for one pair:
// [bid, bidSize, ask, askSize, dailyChange, dailyChangeRel, last, volume,
// high, low].
func (a *Adapter) tickerRow(ctx context.Context, symbol string) ([]any, error) {
	var raw json.RawMessage
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic,
		Path: "/v2/ticker/" + a.wireSymbol(symbol),
	}, &raw)
	if err != nil {
		return nil, err
	}
	var row []any
	if err := decodeNumbers(raw, &row); err != nil {
		return nil, err
	}
	if len(row) < 10 {
		return nil, errs.New(string(schema.VenueBitfinex), errs.CodeOther,
			errs.WithMessage("short ticker row"))
	}
	return row, nil
}

// SymbolPriceTicker quotes the last trade price.
func (a *Adapter) SymbolPriceTicker(ctx context.Context, symbol string) (schema.SymbolPriceTicker, error) {
	row, err := a.tickerRow(ctx, symbol)
	if err != nil {
		return schema.SymbolPriceTicker{}, err
	}
	return schema.SymbolPriceTicker{Symbol: strings.ToUpper(symbol), Price: num(at(row, 6))}, nil
}

// TickerPriceChangeStatistics derives the 24h summary from the flat ticker
// row; the open reconstructs as last minus dailyChange.
func (a *Adapter) TickerPriceChangeStatistics(ctx context.Context, symbol string) (schema.TickerPriceChangeStatistics, error) {
	row, err := a.tickerRow(ctx, symbol)
	if err != nil {
		return schema.TickerPriceChangeStatistics{}, err
	}
	last := dec(at(row, 6))
	change := dec(at(row, 4))
	open := last.Sub(change)
	now := a.clock().UnixMilli()
	return schema.TickerPriceChangeStatistics{
		Symbol:             strings.ToUpper(symbol),
		PriceChange:        change.String(),
		PriceChangePercent: dec(at(row, 5)).Mul(decimal.NewFromInt(100)).String(),
		PrevClosePrice:     open.String(),
		LastPrice:          num(at(row, 6)),
		LastQty:            "0",
		BidPrice:           num(at(row, 0)),
		AskPrice:           num(at(row, 2)),
		OpenPrice:          open.String(),
		HighPrice:          num(at(row, 8)),
		LowPrice:           num(at(row, 9)),
		Volume:             num(at(row, 7)),
		QuoteVolume:        dec(at(row, 7)).Mul(last).String(),
		OpenTime:           now - 24*60*60*1000,
		CloseTime:          now,
		FirstID:            -1,
		LastID:             -1,
	}, nil
}

// BookLimits is the venue's depth limit allow-list.
func (a *Adapter) BookLimits() []int { return []int{1, 25, 100} }

// OrderBook fetches a raw P0 book and splits [price, count, amount] records
// into sides: amount>0 bid, amount<0 ask at |amount|.
func (a *Adapter) OrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error) {
	query := url.Values{}
	query.Set("len", strconv.Itoa(limit))
	var raw json.RawMessage
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic,
		Path: "/v2/book/" + a.wireSymbol(symbol) + "/P0", Query: query,
	}, &raw)
	if err != nil {
		return schema.OrderBook{}, err
	}
	var rows [][]any
	if err := decodeNumbers(raw, &rows); err != nil {
		return schema.OrderBook{}, err
	}
	book := venue.NewBook()
	for _, row := range rows {
		applyBookLevel(book, row)
	}
	out := book.Top(limit)
	out.LastUpdateID = a.clock().UnixMilli()
	return out, nil
}

// applyBookLevel applies one [price, count, amount] record: count==0
// removes the level on the side the amount sign selects.
func applyBookLevel(book *venue.Book, row []any) {
	if len(row) < 3 {
		return
	}
	price := dec(at(row, 0))
	count := i64(at(row, 1))
	amount := dec(at(row, 2))
	switch {
	case count == 0 && amount.Sign() >= 0:
		book.RemoveBid(price)
	case count == 0:
		book.RemoveAsk(price)
	case amount.Sign() > 0:
		book.SetBid(price, amount)
	default:
		book.SetAsk(price, amount.Abs())
	}
}

var intervalTable = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1h", "1d": "1D", "1w": "1W", "1M": "1M",
}

// KlineIntervals excludes 4h, which this venue has no native frame for.
func (a *Adapter) KlineIntervals() []string {
	return []string{"1m", "5m", "15m", "30m", "1h", "1d", "1w", "1M"}
}

// Klines fetches candle history; rows arrive newest first and are returned
// ascending by open time.
func (a *Adapter) Klines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]schema.Kline, error) {
	native, ok := intervalTable[interval]
	if !ok {
		return nil, errs.Validation("unsupported interval " + interval)
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sort", "-1")
	if startTime > 0 {
		query.Set("start", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		query.Set("end", strconv.FormatInt(endTime, 10))
	}
	var raw json.RawMessage
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic,
		Path:  "/v2/candles/trade:" + native + ":" + a.wireSymbol(symbol) + "/hist",
		Query: query,
	}, &raw)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	if err := decodeNumbers(raw, &rows); err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return i64(at(rows[i], 0)) < i64(at(rows[j], 0)) })
	out := make([]schema.Kline, 0, len(rows))
	for _, row := range rows {
		out = append(out, parseKline(row, interval))
	}
	return out, nil
}

// authCall POSTs a signed v2 request and decodes the array response.
func (a *Adapter) authCall(ctx context.Context, path string, body any, rows *[]any) error {
	var data []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		data = encoded
	}
	var raw json.RawMessage
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: path,
		Body: data, Signed: true,
	}, &raw)
	if err != nil {
		return err
	}
	return decodeNumbers(raw, rows)
}

// notification layout: [mts, type, msgId, null, payload, code, status, text].
func notificationPayload(rows []any) ([]any, error) {
	if len(rows) < 8 {
		return nil, errs.New(string(schema.VenueBitfinex), errs.CodeOther,
			errs.WithMessage("notification array too short"))
	}
	if num(at(rows, 6)) != "SUCCESS" {
		return nil, errs.New(string(schema.VenueBitfinex), errs.CodeHTTP,
			errs.WithMessage("request rejected"),
			errs.WithRawMessage(num(at(rows, 7))))
	}
	payload, _ := at(rows, 4).([]any)
	return payload, nil
}

// PlaceOrder submits an order; a negative amount encodes the sell side.
func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (schema.Order, error) {
	amount := req.Quantity
	if req.Side == schema.SideSell {
		amount = "-" + amount
	}
	orderType := "EXCHANGE LIMIT"
	if req.Type == schema.TypeMarket {
		orderType = "EXCHANGE MARKET"
	}
	body := map[string]any{
		"type":   orderType,
		"symbol": a.wireSymbol(req.Symbol),
		"price":  req.Price,
		"amount": amount,
		"meta":   map[string]string{"aff_code": affCode},
	}
	if req.NewClientOrderID != "" {
		body["cid"] = req.NewClientOrderID
	}
	var rows []any
	if err := a.authCall(ctx, "/v2/auth/w/order/submit", body, &rows); err != nil {
		return schema.Order{}, err
	}
	payload, err := notificationPayload(rows)
	if err != nil {
		return schema.Order{}, err
	}
	first, ok := at(payload, 0).([]any)
	if !ok {
		return schema.Order{}, errs.New(string(schema.VenueBitfinex), errs.CodeOther,
			errs.WithMessage("submit response missing order"))
	}
	order, err := parseOrder(first)
	if err != nil {
		return schema.Order{}, err
	}
	order.Symbol = req.Symbol
	return order, nil
}

// Order looks an order up in history first, then among live orders.
func (a *Adapter) Order(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	wire := a.wireSymbol(symbol)
	body := map[string]any{"id": []int64{orderID}}
	var rows []any
	if err := a.authCall(ctx, "/v2/auth/r/orders/"+wire+"/hist", body, &rows); err != nil {
		return schema.Order{}, err
	}
	if len(rows) == 0 {
		if err := a.authCall(ctx, "/v2/auth/r/orders/"+wire, body, &rows); err != nil {
			return schema.Order{}, err
		}
	}
	first, ok := at(rows, 0).([]any)
	if !ok {
		return schema.Order{}, errs.New(string(schema.VenueBitfinex), errs.CodeHTTP,
			errs.WithMessage("order not found"))
	}
	order, err := parseOrder(first)
	if err != nil {
		return schema.Order{}, err
	}
	order.Symbol = symbol
	return order, nil
}

// OpenOrders lists the symbol's live orders.
func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	var rows []any
	if err := a.authCall(ctx, "/v2/auth/r/orders/"+a.wireSymbol(symbol), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]schema.Order, 0, len(rows))
	for _, row := range rows {
		arr, ok := row.([]any)
		if !ok {
			continue
		}
		order, err := parseOrder(arr)
		if err != nil {
			continue
		}
		order.Symbol = symbol
		out = append(out, order)
	}
	return out, nil
}

// CancelOrder requests the cancel; confirmation arrives on the private
// stream, so the returned order keeps its pre-cancel status and the venue
// client polls the tracker.
func (a *Adapter) CancelOrder(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	var rows []any
	if err := a.authCall(ctx, "/v2/auth/w/order/cancel", map[string]any{"id": orderID}, &rows); err != nil {
		return schema.Order{}, err
	}
	payload, err := notificationPayload(rows)
	if err != nil {
		return schema.Order{}, err
	}
	order, err := parseOrder(payload)
	if err != nil {
		return schema.Order{}, err
	}
	order.Symbol = symbol
	return order, nil
}

// CancelOpenOrders mass-cancels the given orders.
func (a *Adapter) CancelOpenOrders(ctx context.Context, symbol string, orders []schema.Order) ([]schema.Order, error) {
	ids := make([]int64, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.OrderID)
	}
	var rows []any
	if err := a.authCall(ctx, "/v2/auth/w/order/cancel/multi", map[string]any{"id": ids}, &rows); err != nil {
		return nil, err
	}
	payload, err := notificationPayload(rows)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Order, 0, len(payload))
	for _, row := range payload {
		arr, ok := row.([]any)
		if !ok {
			continue
		}
		order, perr := parseOrder(arr)
		if perr != nil {
			continue
		}
		order.Symbol = symbol
		order.Status = schema.StatusCanceled
		out = append(out, order)
	}
	return out, nil
}

// wallets fetches the raw wallet rows.
func (a *Adapter) wallets(ctx context.Context) ([]any, error) {
	var rows []any
	if err := a.authCall(ctx, "/v2/auth/r/wallets", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// AccountInformation maps exchange wallets into the account snapshot.
func (a *Adapter) AccountInformation(ctx context.Context) (schema.AccountInformation, error) {
	rows, err := a.wallets(ctx)
	if err != nil {
		return schema.AccountInformation{}, err
	}
	out := schema.AccountInformation{
		MakerCommission: 10,
		TakerCommission: 20,
		CanTrade:        true,
		CanWithdraw:     true,
		CanDeposit:      true,
		UpdateTime:      a.clock().UnixMilli(),
		AccountType:     "SPOT",
		Balances:        make([]schema.Balance, 0, len(rows)),
	}
	for _, row := range rows {
		arr, ok := row.([]any)
		if !ok || num(at(arr, 0)) != "exchange" {
			continue
		}
		out.Balances = append(out.Balances, parseWalletBalance(arr))
	}
	return out, nil
}

// FundingWallet maps funding wallets into funding balances.
func (a *Adapter) FundingWallet(ctx context.Context, _ string, _ bool) ([]schema.FundingBalance, error) {
	rows, err := a.wallets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]schema.FundingBalance, 0, len(rows))
	for _, row := range rows {
		arr, ok := row.([]any)
		if !ok || num(at(arr, 0)) != "funding" {
			continue
		}
		balance := parseWalletBalance(arr)
		out = append(out, schema.FundingBalance{
			Asset:        balance.Asset,
			Free:         balance.Free,
			Locked:       balance.Locked,
			Freeze:       "0",
			Withdrawing:  "0",
			BtcValuation: "0",
		})
	}
	return out, nil
}

// AccountTrades fetches the symbol's trade history.
func (a *Adapter) AccountTrades(ctx context.Context, symbol string, startTime int64, limit int) ([]schema.Trade, error) {
	body := map[string]any{"limit": limit, "sort": -1}
	if startTime > 0 {
		body["start"] = startTime
	}
	var rows []any
	if err := a.authCall(ctx, "/v2/auth/r/trades/"+a.wireSymbol(symbol)+"/hist", body, &rows); err != nil {
		return nil, err
	}
	return a.convertTrades(rows, symbol), nil
}

// OrderTrades fetches one order's trades.
func (a *Adapter) OrderTrades(ctx context.Context, symbol string, orderID int64) ([]schema.Trade, error) {
	path := "/v2/auth/r/order/" + a.wireSymbol(symbol) + ":" + strconv.FormatInt(orderID, 10) + "/trades"
	var rows []any
	if err := a.authCall(ctx, path, nil, &rows); err != nil {
		return nil, err
	}
	return a.convertTrades(rows, symbol), nil
}

func (a *Adapter) convertTrades(rows []any, symbol string) []schema.Trade {
	out := make([]schema.Trade, 0, len(rows))
	for _, row := range rows {
		arr, ok := row.([]any)
		if !ok {
			continue
		}
		trade := parseTrade(arr)
		trade.Symbol = symbol
		out = append(out, trade)
	}
	return out
}
