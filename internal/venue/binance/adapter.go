// Package binance implements the reference venue. Its REST and stream
// payloads are the canonical model, so translation is mostly identity plus
// filter-array unpacking.
package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/numeric"
	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/rest"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/sign"
	"github.com/exwrap/martin/internal/telemetry"
	"github.com/exwrap/martin/internal/venue"
)

const recvWindow = "5000"

// Adapter talks to the reference venue.
type Adapter struct {
	rest      *rest.Client
	endpoints config.Endpoint
	apiKey    string
	apiSecret []byte
	log       observability.Logger
	clock     func() time.Time
	metrics   *telemetry.Instruments
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
	}
}

// Venue reports the adapter's tag.
func (a *Adapter) Venue() schema.Venue { return schema.VenueBinance }

// SetInstruments attaches metric instruments to the adapter's streams.
func (a *Adapter) SetInstruments(inst *telemetry.Instruments) { a.metrics = inst }

// Prepare has no venue-specific load work here.
func (a *Adapter) Prepare(context.Context) error { return nil }

// SignRequest appends timestamp, recvWindow and the HMAC signature over the
// sorted query string, and sets the API-key header.
func (a *Adapter) SignRequest(_ context.Context, req *rest.Request) error {
	if req.Query == nil {
		req.Query = url.Values{}
	}
	req.Query.Set("timestamp", strconv.FormatInt(a.clock().UnixMilli(), 10))
	req.Query.Set("recvWindow", recvWindow)
	payload := req.Query.Encode()
	req.Query.Set("signature", sign.Sign(schema.VenueBinance, a.apiSecret, []byte(payload)))
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	req.Headers.Set("X-MBX-APIKEY", a.apiKey)
	return nil
}

type nativeSymbol struct {
	Symbol             string             `json:"symbol"`
	Status             string             `json:"status"`
	BaseAsset          string             `json:"baseAsset"`
	BaseAssetPrecision int                `json:"baseAssetPrecision"`
	QuoteAsset         string             `json:"quoteAsset"`
	QuotePrecision     int                `json:"quotePrecision"`
	OrderTypes         []schema.OrderType `json:"orderTypes"`
	IcebergAllowed     bool               `json:"icebergAllowed"`
	OcoAllowed         bool               `json:"ocoAllowed"`
	Filters            []nativeFilter     `json:"filters"`
	Permissions        []string           `json:"permissions"`
}

type nativeFilter struct {
	FilterType    string `json:"filterType"`
	MinPrice      string `json:"minPrice"`
	MaxPrice      string `json:"maxPrice"`
	TickSize      string `json:"tickSize"`
	MinQty        string `json:"minQty"`
	MaxQty        string `json:"maxQty"`
	StepSize      string `json:"stepSize"`
	MinNotional   string `json:"minNotional"`
	ApplyToMarket bool   `json:"applyToMarket"`
	AvgPriceMins  int    `json:"avgPriceMins"`
}

type nativeExchangeInfo struct {
	Timezone   string             `json:"timezone"`
	ServerTime int64              `json:"serverTime"`
	RateLimits []schema.RateLimit `json:"rateLimits"`
	Symbols    []nativeSymbol     `json:"symbols"`
}

// ExchangeInfo fetches and unpacks the venue descriptor.
func (a *Adapter) ExchangeInfo(ctx context.Context) (schema.ExchangeInfo, error) {
	var native nativeExchangeInfo
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v3/exchangeInfo",
	}, &native)
	if err != nil {
		return schema.ExchangeInfo{}, err
	}
	out := schema.ExchangeInfo{
		Timezone:   native.Timezone,
		ServerTime: native.ServerTime,
		RateLimits: native.RateLimits,
		Symbols:    make([]schema.SymbolInfo, 0, len(native.Symbols)),
	}
	for _, sym := range native.Symbols {
		out.Symbols = append(out.Symbols, convertSymbol(sym))
	}
	return out, nil
}

func convertSymbol(sym nativeSymbol) schema.SymbolInfo {
	info := schema.SymbolInfo{
		Symbol:             sym.Symbol,
		Status:             sym.Status,
		BaseAsset:          sym.BaseAsset,
		BaseAssetPrecision: sym.BaseAssetPrecision,
		QuoteAsset:         sym.QuoteAsset,
		QuotePrecision:     sym.QuotePrecision,
		OrderTypes:         sym.OrderTypes,
		IcebergAllowed:     sym.IcebergAllowed,
		OcoAllowed:         sym.OcoAllowed,
		Permissions:        sym.Permissions,
	}
	for _, f := range sym.Filters {
		switch f.FilterType {
		case schema.FilterPrice:
			info.Filters.Price = schema.PriceFilter{
				MinPrice: f.MinPrice, MaxPrice: f.MaxPrice, TickSize: f.TickSize,
			}
		case schema.FilterLotSize:
			info.Filters.LotSize = schema.LotSizeFilter{
				MinQty: f.MinQty, MaxQty: f.MaxQty, StepSize: f.StepSize,
			}
		case schema.FilterMinNotional, "NOTIONAL":
			info.Filters.MinNotional = schema.MinNotionalFilter{
				MinNotional:   f.MinNotional,
				ApplyToMarket: f.ApplyToMarket,
				AvgPriceMins:  f.AvgPriceMins,
			}
		}
	}
	return info
}

// ServerTime returns the venue clock.
func (a *Adapter) ServerTime(ctx context.Context) (int64, error) {
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v3/time",
	}, &out)
	return out.ServerTime, err
}

// Ping checks REST connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v3/ping",
	}, nil)
}

// BookLimits is the venue's depth limit allow-list.
func (a *Adapter) BookLimits() []int { return []int{5, 10, 20, 50, 100, 500, 1000, 5000} }

type nativeDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// OrderBook fetches a depth snapshot.
func (a *Adapter) OrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("limit", strconv.Itoa(limit))
	var native nativeDepth
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v3/depth", Query: query,
	}, &native)
	if err != nil {
		return schema.OrderBook{}, err
	}
	return schema.OrderBook{
		LastUpdateID: native.LastUpdateID,
		Bids:         toLevels(native.Bids),
		Asks:         toLevels(native.Asks),
	}, nil
}

func toLevels(raw [][2]string) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, len(raw))
	for _, level := range raw {
		out = append(out, schema.PriceLevel{level[0], level[1]})
	}
	return out
}

// KlineIntervals accepts the full canonical set.
func (a *Adapter) KlineIntervals() []string { return nil }

// Klines fetches candles; native arrays are the canonical shape.
func (a *Adapter) Klines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]schema.Kline, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("limit", strconv.Itoa(limit))
	if startTime > 0 {
		query.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		query.Set("endTime", strconv.FormatInt(endTime, 10))
	}
	var out []schema.Kline
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v3/klines", Query: query,
	}, &out)
	return out, err
}

// PlaceOrder submits an order and returns the canonical result.
func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (schema.Order, error) {
	query := url.Values{}
	query.Set("symbol", req.Symbol)
	query.Set("side", string(req.Side))
	query.Set("type", string(req.Type))
	query.Set("newOrderRespType", "RESULT")
	if req.TimeInForce != "" {
		query.Set("timeInForce", string(req.TimeInForce))
	}
	if req.Quantity != "" {
		query.Set("quantity", req.Quantity)
	}
	if req.QuoteOrderQty != "" {
		query.Set("quoteOrderQty", req.QuoteOrderQty)
	}
	if req.Price != "" {
		query.Set("price", req.Price)
	}
	if req.StopPrice != "" {
		query.Set("stopPrice", req.StopPrice)
	}
	if req.IcebergQty != "" {
		query.Set("icebergQty", req.IcebergQty)
	}
	if req.NewClientOrderID != "" {
		query.Set("newClientOrderId", req.NewClientOrderID)
	}
	var order schema.Order
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/api/v3/order",
		Query: query, Signed: true,
	}, &order)
	if err != nil {
		return schema.Order{}, err
	}
	if order.OrigQuoteOrderQty == "" {
		order.OrigQuoteOrderQty = deriveQuote(order.OrigQty, order.Price)
	}
	return order, nil
}

func deriveQuote(qty, price string) string {
	if qty == "" || price == "" {
		return ""
	}
	q, err1 := numeric.Parse(qty)
	p, err2 := numeric.Parse(price)
	if err1 != nil || err2 != nil {
		return ""
	}
	return q.Mul(p).String()
}

// Order fetches one order.
func (a *Adapter) Order(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("orderId", strconv.FormatInt(orderID, 10))
	var order schema.Order
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v3/order",
		Query: query, Signed: true,
	}, &order)
	return order, err
}

// OpenOrders lists open orders for symbol.
func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", symbol)
	}
	var orders []schema.Order
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v3/openOrders",
		Query: query, Signed: true,
	}, &orders)
	return orders, err
}

// CancelOrder cancels one order; the venue confirms synchronously.
func (a *Adapter) CancelOrder(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("orderId", strconv.FormatInt(orderID, 10))
	var order schema.Order
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete, Base: a.endpoints.APIAuth, Path: "/api/v3/order",
		Query: query, Signed: true,
	}, &order)
	return order, err
}

// CancelOpenOrders mass-cancels the symbol's open orders.
func (a *Adapter) CancelOpenOrders(ctx context.Context, symbol string, _ []schema.Order) ([]schema.Order, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	var orders []schema.Order
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete, Base: a.endpoints.APIAuth, Path: "/api/v3/openOrders",
		Query: query, Signed: true,
	}, &orders)
	return orders, err
}

// AccountInformation fetches the account snapshot.
func (a *Adapter) AccountInformation(ctx context.Context) (schema.AccountInformation, error) {
	var out schema.AccountInformation
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v3/account", Signed: true,
	}, &out)
	return out, err
}

// FundingWallet fetches funding balances.
func (a *Adapter) FundingWallet(ctx context.Context, asset string, needBtcValuation bool) ([]schema.FundingBalance, error) {
	query := url.Values{}
	if asset != "" {
		query.Set("asset", asset)
	}
	if needBtcValuation {
		query.Set("needBtcValuation", "true")
	}
	var out []schema.FundingBalance
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/sapi/v1/asset/get-funding-asset",
		Query: query, Signed: true,
	}, &out)
	return out, err
}

// AccountTrades fetches account trades for symbol.
func (a *Adapter) AccountTrades(ctx context.Context, symbol string, startTime int64, limit int) ([]schema.Trade, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("limit", strconv.Itoa(limit))
	if startTime > 0 {
		query.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	var out []schema.Trade
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v3/myTrades",
		Query: query, Signed: true,
	}, &out)
	return out, err
}

// OrderTrades fetches the trades belonging to one order.
func (a *Adapter) OrderTrades(ctx context.Context, symbol string, orderID int64) ([]schema.Trade, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("orderId", strconv.FormatInt(orderID, 10))
	var out []schema.Trade
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIAuth, Path: "/api/v3/myTrades",
		Query: query, Signed: true,
	}, &out)
	return out, err
}

// SymbolPriceTicker fetches the last-price quote.
func (a *Adapter) SymbolPriceTicker(ctx context.Context, symbol string) (schema.SymbolPriceTicker, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	var out schema.SymbolPriceTicker
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v3/ticker/price", Query: query,
	}, &out)
	return out, err
}

// TickerPriceChangeStatistics fetches the 24h rolling stats.
func (a *Adapter) TickerPriceChangeStatistics(ctx context.Context, symbol string) (schema.TickerPriceChangeStatistics, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	var out schema.TickerPriceChangeStatistics
	err := a.rest.Do(ctx, rest.Request{
		Method: http.MethodGet, Base: a.endpoints.APIPublic, Path: "/api/v3/ticker/24hr", Query: query,
	}, &out)
	return out, err
}

// createListenKey opens a user-data-stream session.
func (a *Adapter) createListenKey(ctx context.Context) (string, error) {
	var out struct {
		ListenKey string `json:"listenKey"`
	}
	req := rest.Request{
		Method: http.MethodPost, Base: a.endpoints.APIAuth, Path: "/api/v3/userDataStream",
		Headers: http.Header{"X-MBX-APIKEY": []string{a.apiKey}},
	}
	if err := a.rest.Do(ctx, req, &out); err != nil {
		return "", err
	}
	if out.ListenKey == "" {
		return "", errs.New(string(schema.VenueBinance), errs.CodeAuth,
			errs.WithMessage("empty listen key"))
	}
	return out.ListenKey, nil
}

// keepAliveListenKey renews the user-data-stream session.
func (a *Adapter) keepAliveListenKey(ctx context.Context, listenKey string) error {
	query := url.Values{}
	query.Set("listenKey", listenKey)
	return a.rest.Do(ctx, rest.Request{
		Method: http.MethodPut, Base: a.endpoints.APIAuth, Path: "/api/v3/userDataStream",
		Query: query, Headers: http.Header{"X-MBX-APIKEY": []string{a.apiKey}},
	}, nil)
}

// closeListenKey ends the user-data-stream session.
func (a *Adapter) closeListenKey(ctx context.Context, listenKey string) error {
	query := url.Values{}
	query.Set("listenKey", listenKey)
	return a.rest.Do(ctx, rest.Request{
		Method: http.MethodDelete, Base: a.endpoints.APIAuth, Path: "/api/v3/userDataStream",
		Query: query, Headers: http.Header{"X-MBX-APIKEY": []string{a.apiKey}},
	}, nil)
}
