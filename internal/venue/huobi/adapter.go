// Package huobi adapts the envelope-wrapped venue: SHA384-signed query
// REST, a resolved spot account id, gzip-compressed market frames, and an
// order id that must be polled into visibility after placement.
package huobi

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

const (
	signatureMethod  = "HmacSHA384"
	signatureVersion = "2"
	timestampLayout  = "2006-01-02T15:04:05"
	orderSource      = "spot-api"
)

// Adapter talks to the huobi-style venue.
type Adapter struct {
	rest      *rest.Client
	endpoints config.Endpoint
	apiKey    string
	apiSecret []byte
	log       observability.Logger
	clock     func() time.Time
	metrics   *telemetry.Instruments

	accountMu sync.RWMutex
	accountID int64

	pairMu sync.RWMutex
	pairs  map[string]string // canonical -> wire
}

var _ venue.Adapter = (*Adapter)(nil)

// New builds the adapter. The rest client must carry this adapter's
// SignRequest hook.
func New(restClient *rest.Client, endpoints config.Endpoint, apiKey, apiSecret string, log observability.Logger) *Adapter {
	if log == nil {
		log = observability.Log()
	}
	return &Adapter{
		rest:      restClient,
		endpoints: endpoints,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		log:       log,
		clock:     time.Now,
		pairs:     make(map[string]string),
	}
}

// Venue reports the adapter's tag.
func (a *Adapter) Venue() schema.Venue { return schema.VenueHuobi }

// SetInstruments attaches metric instruments to the adapter's streams.
func (a *Adapter) SetInstruments(inst *telemetry.Instruments) { a.metrics = inst }

// SignRequest adds the access-key parameters and signs
// "<method>\n<host>\n<path>\n<sorted query>".
func (a *Adapter) SignRequest(_ context.Context, req *rest.Request) error {
	base, err := url.Parse(req.Base)
	if err != nil {
		return err
	}
	if req.Query == nil {
		req.Query = url.Values{}
	}
	req.Query.Set("AccessKeyId", a.apiKey)
	req.Query.Set("SignatureMethod", signatureMethod)
	req.Query.Set("SignatureVersion", signatureVersion)
	req.Query.Set("Timestamp", a.clock().UTC().Format(timestampLayout))
	payload := req.Method + "\n" + base.Host + "\n" + req.Path + "\n" + req.Query.Encode()
	req.Query.Set("Signature", sign.Sign(schema.VenueHuobi, a.apiSecret, []byte(payload)))
	if req.Body != nil {
		if req.Headers == nil {
			req.Headers = http.Header{}
		}
		req.Headers.Set("Content-Type", "application/json")
	}
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

// Prepare resolves and caches the spot account id.
func (a *Adapter) Prepare(ctx context.Context) error {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/v1/account/accounts", Signed: true,
	})
	if err != nil {
		return err
	}
	var accounts []struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(env.Data, &accounts); err != nil {
		return err
	}
	for _, account := range accounts {
		if account.Type == "spot" {
			a.accountMu.Lock()
			a.accountID = account.ID
			a.accountMu.Unlock()
			return nil
		}
	}
	return errs.New(string(schema.VenueHuobi), errs.CodeAuth,
		errs.WithMessage("no spot account for api key"))
}

// AccountID returns the resolved spot account id.
func (a *Adapter) AccountID() int64 {
	a.accountMu.RLock()
	defer a.accountMu.RUnlock()
	return a.accountID
}

func (a *Adapter) accountIDString() string {
	return strconv.FormatInt(a.AccountID(), 10)
}

// wireFor maps a canonical symbol to the venue's t-form.
func (a *Adapter) wireFor(symbol string) string {
	a.pairMu.RLock()
	wire, ok := a.pairs[symbol]
	a.pairMu.RUnlock()
	if ok {
		return wire
	}
	for _, quote := range []string{"USDT", "USDC", "HUSD", "USD", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return wireSymbol(symbol[:len(symbol)-len(quote)], quote)
		}
	}
	if len(symbol) > 3 {
		return wireSymbol(symbol[:3], symbol[3:])
	}
	return "t" + symbol
}

type nativeSymbol struct {
	Symbol          string      `json:"symbol"`
	BaseCurrency    string      `json:"base-currency"`
	QuoteCurrency   string      `json:"quote-currency"`
	AmountPrecision int         `json:"amount-precision"`
	PricePrecision  int         `json:"price-precision"`
	MinOrderAmt     json.Number `json:"min-order-amt"`
	MaxOrderAmt     json.Number `json:"max-order-amt"`
	MinOrderValue   json.Number `json:"min-order-value"`
	Underlying      string      `json:"underlying"`
	State           string      `json:"state"`
}

// ExchangeInfo builds the canonical descriptor from trading symbols plus
// the venue clock; derivative listings carry an underlying and are skipped.
func (a *Adapter) ExchangeInfo(ctx context.Context) (schema.ExchangeInfo, error) {
	serverTime, err := a.ServerTime(ctx)
	if err != nil {
		return schema.ExchangeInfo{}, err
	}
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/v1/common/symbols",
	})
	if err != nil {
		return schema.ExchangeInfo{}, err
	}
	var symbols []nativeSymbol
	if err := json.Unmarshal(env.Data, &symbols); err != nil {
		return schema.ExchangeInfo{}, err
	}

	pairs := make(map[string]string, len(symbols))
	out := schema.ExchangeInfo{
		Timezone:   "UTC",
		ServerTime: serverTime,
		Symbols:    make([]schema.SymbolInfo, 0, len(symbols)),
	}
	for _, sym := range symbols {
		if sym.Underlying != "" {
			continue
		}
		base := strings.ToUpper(sym.BaseCurrency)
		quote := strings.ToUpper(sym.QuoteCurrency)
		canonical := base + quote
		pairs[canonical] = wireSymbol(base, quote)
		tickSize := decimal.New(1, int32(-sym.PricePrecision)).String()
		stepSize := decimal.New(1, int32(-sym.AmountPrecision)).String()
		out.Symbols = append(out.Symbols, schema.SymbolInfo{
			Symbol:             canonical,
			Status:             "TRADING",
			BaseAsset:          base,
			BaseAssetPrecision: sym.AmountPrecision,
			QuoteAsset:         quote,
			QuotePrecision:     sym.AmountPrecision,
			OrderTypes:         []schema.OrderType{schema.TypeLimit, schema.TypeMarket},
			Filters: schema.Filters{
				Price: schema.PriceFilter{
					MinPrice: tickSize, MaxPrice: "100000.00000000", TickSize: tickSize,
				},
				LotSize: schema.LotSizeFilter{
					MinQty:   sym.MinOrderAmt.String(),
					MaxQty:   sym.MaxOrderAmt.String(),
					StepSize: stepSize,
				},
				MinNotional: schema.MinNotionalFilter{
					MinNotional:   sym.MinOrderValue.String(),
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
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/v1/common/timestamp",
	})
	if err != nil {
		return 0, err
	}
	var ts int64
	if err := json.Unmarshal(env.Data, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// BookLimits is the venue's depth limit allow-list.
func (a *Adapter) BookLimits() []int { return []int{5, 10, 20} }

// OrderBook fetches a step0 depth snapshot.
func (a *Adapter) OrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error) {
	query := url.Values{}
	query.Set("symbol", a.wireFor(symbol))
	query.Set("depth", strconv.Itoa(limit))
	query.Set("type", "step0")
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/market/depth", Query: query,
	})
	if err != nil {
		return schema.OrderBook{}, err
	}
	var tick struct {
		Bids [][2]json.Number `json:"bids"`
		Asks [][2]json.Number `json:"asks"`
	}
	if err := json.Unmarshal(env.Tick, &tick); err != nil {
		return schema.OrderBook{}, err
	}
	return schema.OrderBook{
		LastUpdateID: env.Ts,
		Bids:         toLevels(tick.Bids),
		Asks:         toLevels(tick.Asks),
	}, nil
}

type mergedTick struct {
	Amount json.Number    `json:"amount"`
	Count  int64          `json:"count"`
	Open   json.Number    `json:"open"`
	Close  json.Number    `json:"close"`
	Low    json.Number    `json:"low"`
	High   json.Number    `json:"high"`
	Vol    json.Number    `json:"vol"`
	Bid    [2]json.Number `json:"bid"`
	Ask    [2]json.Number `json:"ask"`
}

func (a *Adapter) merged(ctx context.Context, symbol string) (mergedTick, int64, error) {
	query := url.Values{}
	query.Set("symbol", a.wireFor(symbol))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/market/detail/merged", Query: query,
	})
	if err != nil {
		return mergedTick{}, 0, err
	}
	var tick mergedTick
	if err := json.Unmarshal(env.Tick, &tick); err != nil {
		return mergedTick{}, 0, err
	}
	return tick, env.Ts, nil
}

// SymbolPriceTicker quotes the last trade price from the merged detail.
func (a *Adapter) SymbolPriceTicker(ctx context.Context, symbol string) (schema.SymbolPriceTicker, error) {
	tick, _, err := a.merged(ctx, symbol)
	if err != nil {
		return schema.SymbolPriceTicker{}, err
	}
	return schema.SymbolPriceTicker{Symbol: strings.ToUpper(symbol), Price: tick.Close.String()}, nil
}

// TickerPriceChangeStatistics derives the 24h summary from the merged
// detail; amount is base volume, vol the quote volume.
func (a *Adapter) TickerPriceChangeStatistics(ctx context.Context, symbol string) (schema.TickerPriceChangeStatistics, error) {
	tick, ts, err := a.merged(ctx, symbol)
	if err != nil {
		return schema.TickerPriceChangeStatistics{}, err
	}
	last, _ := decimal.NewFromString(tick.Close.String())
	open, _ := decimal.NewFromString(tick.Open.String())
	change := last.Sub(open)
	percent := "0"
	if !open.IsZero() {
		percent = change.Div(open).Mul(decimal.NewFromInt(100)).String()
	}
	when := normalizeMillis(ts)
	if when == 0 {
		when = a.clock().UnixMilli()
	}
	return schema.TickerPriceChangeStatistics{
		Symbol:             strings.ToUpper(symbol),
		PriceChange:        change.String(),
		PriceChangePercent: percent,
		PrevClosePrice:     tick.Open.String(),
		LastPrice:          tick.Close.String(),
		LastQty:            "0",
		BidPrice:           tick.Bid[0].String(),
		AskPrice:           tick.Ask[0].String(),
		OpenPrice:          tick.Open.String(),
		HighPrice:          tick.High.String(),
		LowPrice:           tick.Low.String(),
		Volume:             tick.Amount.String(),
		QuoteVolume:        tick.Vol.String(),
		OpenTime:           when - 24*60*60*1000,
		CloseTime:          when,
		FirstID:            -1,
		LastID:             -1,
		Count:              tick.Count,
	}, nil
}

var intervalTable = map[string]string{
	"1m": "1min", "5m": "5min", "15m": "15min", "30m": "30min",
	"1h": "60min", "4h": "4hour", "1d": "1day", "1w": "1week", "1M": "1mon",
}

var intervalSeconds = map[string]int64{
	"1min": 60, "5min": 5 * 60, "15min": 15 * 60, "30min": 30 * 60,
	"60min": 60 * 60, "4hour": 4 * 60 * 60, "1day": 24 * 60 * 60,
	"1week": 7 * 24 * 60 * 60, "1mon": 31 * 24 * 60 * 60,
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

type nativeKline struct {
	ID     int64       `json:"id"`
	Open   json.Number `json:"open"`
	Close  json.Number `json:"close"`
	Low    json.Number `json:"low"`
	High   json.Number `json:"high"`
	Amount json.Number `json:"amount"`
	Vol    json.Number `json:"vol"`
	Count  int64       `json:"count"`
}

func convertKline(row nativeKline, native string) schema.Kline {
	start := row.ID * 1000
	return schema.Kline{
		OpenTime:      start,
		Open:          row.Open.String(),
		High:          row.High.String(),
		Low:           row.Low.String(),
		Close:         row.Close.String(),
		Volume:        row.Amount.String(),
		CloseTime:     start + intervalSeconds[native]*1000 - 1,
		QuoteVolume:   row.Vol.String(),
		Trades:        row.Count,
		TakerBuyBase:  "0",
		TakerBuyQuote: "0",
	}
}

// Klines fetches candle history; rows arrive newest first and are returned
// ascending by open time.
func (a *Adapter) Klines(ctx context.Context, symbol, interval string, limit int, _, _ int64) ([]schema.Kline, error) {
	native, ok := intervalTable[interval]
	if !ok {
		return nil, errs.Validation("unsupported interval " + interval)
	}
	query := url.Values{}
	query.Set("symbol", a.wireFor(symbol))
	query.Set("period", native)
	query.Set("size", strconv.Itoa(limit))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/market/history/kline", Query: query,
	})
	if err != nil {
		return nil, err
	}
	var rows []nativeKline
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	out := make([]schema.Kline, 0, len(rows))
	for _, row := range rows {
		out = append(out, convertKline(row, native))
	}
	return out, nil
}

// PlaceOrder submits the order, then polls until the returned id becomes
// visible so the caller gets a fully populated canonical order.
func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (schema.Order, error) {
	body := map[string]any{
		"account-id": a.accountIDString(),
		"symbol":     a.wireFor(req.Symbol),
		"type":       strings.ToLower(string(req.Side)) + "-" + strings.ToLower(string(req.Type)),
		"amount":     req.Quantity,
		"price":      req.Price,
		"source":     orderSource,
	}
	if req.NewClientOrderID != "" {
		body["client-order-id"] = req.NewClientOrderID
	}
	data, err := json.Marshal(body)
	if err != nil {
		return schema.Order{}, err
	}
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/v1/order/orders/place",
		Body: data, Signed: true,
	})
	if err != nil {
		return schema.Order{}, err
	}
	var rawID string
	if err := json.Unmarshal(env.Data, &rawID); err != nil {
		return schema.Order{}, err
	}
	orderID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return schema.Order{}, errs.New(string(schema.VenueHuobi), errs.CodeOther,
			errs.WithMessage("unparsable order id"), errs.WithCause(err))
	}

	deadline := a.clock().Add(venue.StatusTimeout)
	for {
		order, oerr := a.Order(ctx, req.Symbol, orderID)
		if oerr == nil {
			return order, nil
		}
		if a.clock().After(deadline) {
			return schema.Order{}, oerr
		}
		select {
		case <-ctx.Done():
			return schema.Order{}, ctx.Err()
		case <-time.After(venue.Heartbeat):
		}
	}
}

// Order looks the order up in history first, then among the live open
// orders.
func (a *Adapter) Order(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth,
		Path: "/v1/order/orders/" + strconv.FormatInt(orderID, 10), Signed: true,
	})
	if err == nil {
		var native nativeOrder
		if uerr := json.Unmarshal(env.Data, &native); uerr != nil {
			return schema.Order{}, uerr
		}
		order := convertOrder(native)
		order.Symbol = symbol
		return order, nil
	}

	open, oerr := a.OpenOrders(ctx, symbol)
	if oerr != nil {
		return schema.Order{}, err
	}
	for _, order := range open {
		if order.OrderID == orderID {
			return order, nil
		}
	}
	return schema.Order{}, err
}

// OpenOrders lists the symbol's live orders.
func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	query := url.Values{}
	query.Set("account-id", a.accountIDString())
	query.Set("symbol", a.wireFor(symbol))
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/v1/order/openOrders",
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
	_, err := a.call(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth,
		Path: "/v1/order/orders/" + strconv.FormatInt(orderID, 10) + "/submitcancel", Signed: true,
	})
	if err != nil {
		return schema.Order{}, err
	}
	return a.Order(ctx, symbol, orderID)
}

// CancelOpenOrders batch-cancels the given orders and returns the subset
// the venue confirmed.
func (a *Adapter) CancelOpenOrders(ctx context.Context, _ string, orders []schema.Order) ([]schema.Order, error) {
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, strconv.FormatInt(order.OrderID, 10))
	}
	data, err := json.Marshal(map[string]any{"order-ids": ids})
	if err != nil {
		return nil, err
	}
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/v1/order/orders/batchcancel",
		Body: data, Signed: true,
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Success []string `json:"success"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, err
	}
	confirmed := make(map[string]struct{}, len(result.Success))
	for _, id := range result.Success {
		confirmed[id] = struct{}{}
	}
	out := make([]schema.Order, 0, len(orders))
	for _, order := range orders {
		if _, ok := confirmed[strconv.FormatInt(order.OrderID, 10)]; ok {
			order.Status = schema.StatusCanceled
			out = append(out, order)
		}
	}
	return out, nil
}

// AccountInformation merges the balance list's trade/frozen rows per
// currency.
func (a *Adapter) AccountInformation(ctx context.Context) (schema.AccountInformation, error) {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth,
		Path: "/v1/account/accounts/" + a.accountIDString() + "/balance", Signed: true,
	})
	if err != nil {
		return schema.AccountInformation{}, err
	}
	var data struct {
		List []struct {
			Currency string `json:"currency"`
			Type     string `json:"type"`
			Balance  string `json:"balance"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return schema.AccountInformation{}, err
	}
	type line struct{ free, locked string }
	assets := make(map[string]*line)
	order := make([]string, 0)
	for _, entry := range data.List {
		if entry.Balance == "" || entry.Balance == "0" {
			continue
		}
		asset := strings.ToUpper(entry.Currency)
		row, ok := assets[asset]
		if !ok {
			row = &line{free: "0", locked: "0"}
			assets[asset] = row
			order = append(order, asset)
		}
		if entry.Type == "frozen" {
			row.locked = entry.Balance
		} else {
			row.free = entry.Balance
		}
	}
	out := schema.AccountInformation{
		CanTrade:    true,
		UpdateTime:  a.clock().UnixMilli(),
		AccountType: "SPOT",
		Balances:    make([]schema.Balance, 0, len(order)),
	}
	for _, asset := range order {
		out.Balances = append(out.Balances, schema.Balance{
			Asset: asset, Free: assets[asset].free, Locked: assets[asset].locked,
		})
	}
	return out, nil
}

// FundingWallet is not offered by this venue.
func (a *Adapter) FundingWallet(context.Context, string, bool) ([]schema.FundingBalance, error) {
	return []schema.FundingBalance{}, nil
}

// AccountTrades fetches recent match results for symbol.
func (a *Adapter) AccountTrades(ctx context.Context, symbol string, _ int64, limit int) ([]schema.Trade, error) {
	query := url.Values{}
	query.Set("symbol", a.wireFor(symbol))
	if limit > 0 {
		query.Set("size", strconv.Itoa(limit))
	}
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/v1/order/matchresults",
		Query: query, Signed: true,
	})
	if err != nil {
		return nil, err
	}
	return a.convertTrades(env.Data, symbol)
}

// OrderTrades fetches one order's match results.
func (a *Adapter) OrderTrades(ctx context.Context, symbol string, orderID int64) ([]schema.Trade, error) {
	env, err := a.call(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth,
		Path: "/v1/order/orders/" + strconv.FormatInt(orderID, 10) + "/matchresults", Signed: true,
	})
	if err != nil {
		return nil, err
	}
	return a.convertTrades(env.Data, symbol)
}

func (a *Adapter) convertTrades(data json.RawMessage, symbol string) ([]schema.Trade, error) {
	var natives []nativeTrade
	if err := json.Unmarshal(data, &natives); err != nil {
		return nil, err
	}
	out := make([]schema.Trade, 0, len(natives))
	for _, native := range natives {
		trade := convertTrade(native)
		trade.Symbol = symbol
		out = append(out, trade)
	}
	return out, nil
}
