package schema

import (
	json "github.com/goccy/go-json"

	"github.com/exwrap/martin/errs"
)

// Filter type names carried in canonical symbol info. PriceFilter, LotSize
// and MinNotional are mandatory for every symbol.
const (
	FilterPrice       = "PRICE_FILTER"
	FilterLotSize     = "LOT_SIZE"
	FilterMinNotional = "MIN_NOTIONAL"
)

// PriceFilter bounds order prices for a symbol.
type PriceFilter struct {
	MinPrice string `json:"minPrice"`
	MaxPrice string `json:"maxPrice"`
	TickSize string `json:"tickSize"`
}

// LotSizeFilter bounds order quantities for a symbol.
type LotSizeFilter struct {
	MinQty  string `json:"minQty"`
	MaxQty  string `json:"maxQty"`
	StepSize string `json:"stepSize"`
}

// MinNotionalFilter bounds the order notional value.
type MinNotionalFilter struct {
	MinNotional   string `json:"minNotional"`
	ApplyToMarket bool   `json:"applyToMarket"`
	AvgPriceMins  int    `json:"avgPriceMins"`
}

// Filters aggregates the per-symbol trading constraints.
type Filters struct {
	Price       PriceFilter       `json:"PRICE_FILTER"`
	LotSize     LotSizeFilter     `json:"LOT_SIZE"`
	MinNotional MinNotionalFilter `json:"MIN_NOTIONAL"`
}

// SymbolInfo is the canonical per-symbol descriptor.
type SymbolInfo struct {
	Symbol             string      `json:"symbol"`
	Status             string      `json:"status"`
	BaseAsset          string      `json:"baseAsset"`
	BaseAssetPrecision int         `json:"baseAssetPrecision"`
	QuoteAsset         string      `json:"quoteAsset"`
	QuotePrecision     int         `json:"quotePrecision"`
	OrderTypes         []OrderType `json:"orderTypes"`
	IcebergAllowed     bool        `json:"icebergAllowed"`
	OcoAllowed         bool        `json:"ocoAllowed"`
	Filters            Filters     `json:"filters"`
	Permissions        []string    `json:"permissions"`
}

// RateLimit mirrors the reference venue's rate-limit descriptors.
type RateLimit struct {
	RateLimitType string `json:"rateLimitType"`
	Interval      string `json:"interval"`
	IntervalNum   int    `json:"intervalNum"`
	Limit         int    `json:"limit"`
}

// ExchangeInfo is the canonical venue descriptor returned by load.
type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	RateLimits []RateLimit  `json:"rateLimits"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// Order is the canonical order shape.
type Order struct {
	Symbol              string      `json:"symbol"`
	OrderID             int64       `json:"orderId"`
	OrderListID         int64       `json:"orderListId"`
	ClientOrderID       string      `json:"clientOrderId"`
	Price               string      `json:"price"`
	OrigQty             string      `json:"origQty"`
	ExecutedQty         string      `json:"executedQty"`
	CummulativeQuoteQty string      `json:"cummulativeQuoteQty"`
	Status              OrderStatus `json:"status"`
	TimeInForce         TimeInForce `json:"timeInForce"`
	Type                OrderType   `json:"type"`
	Side                OrderSide   `json:"side"`
	StopPrice           string      `json:"stopPrice"`
	IcebergQty          string      `json:"icebergQty"`
	Time                int64       `json:"time"`
	UpdateTime          int64       `json:"updateTime"`
	IsWorking           bool        `json:"isWorking"`
	OrigQuoteOrderQty   string      `json:"origQuoteOrderQty"`
}

// Trade is the canonical account-trade shape.
type Trade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	OrderListID     int64  `json:"orderListId"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	QuoteQty        string `json:"quoteQty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"isBuyer"`
	IsMaker         bool   `json:"isMaker"`
	IsBestMatch     bool   `json:"isBestMatch"`
}

// Balance is one asset's free/locked pair.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// AccountInformation is the canonical account snapshot.
type AccountInformation struct {
	MakerCommission  int64     `json:"makerCommission"`
	TakerCommission  int64     `json:"takerCommission"`
	CanTrade         bool      `json:"canTrade"`
	CanWithdraw      bool      `json:"canWithdraw"`
	CanDeposit       bool      `json:"canDeposit"`
	UpdateTime       int64     `json:"updateTime"`
	AccountType      string    `json:"accountType"`
	Balances         []Balance `json:"balances"`
}

// FundingBalance is one funding-wallet asset line.
type FundingBalance struct {
	Asset        string `json:"asset"`
	Free         string `json:"free"`
	Locked       string `json:"locked"`
	Freeze       string `json:"freeze"`
	Withdrawing  string `json:"withdrawing"`
	BtcValuation string `json:"btcValuation"`
}

// PriceLevel is a [price, qty] pair rendered as decimal strings.
type PriceLevel [2]string

// Price returns the level price string.
func (l PriceLevel) Price() string { return l[0] }

// Qty returns the level quantity string.
func (l PriceLevel) Qty() string { return l[1] }

// OrderBook is a canonical depth snapshot: bids descending, asks ascending.
type OrderBook struct {
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// SymbolPriceTicker is the canonical last-price quote.
type SymbolPriceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TickerPriceChangeStatistics is the canonical rolling 24h summary.
type TickerPriceChangeStatistics struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	WeightedAvgPrice   string `json:"weightedAvgPrice"`
	PrevClosePrice     string `json:"prevClosePrice"`
	LastPrice          string `json:"lastPrice"`
	LastQty            string `json:"lastQty"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
	FirstID            int64  `json:"firstId"`
	LastID             int64  `json:"lastId"`
	Count              int64  `json:"count"`
}

// Kline is one candle, serialized as the reference venue's 12-element array.
type Kline struct {
	OpenTime         int64
	Open             string
	High             string
	Low              string
	Close            string
	Volume           string
	CloseTime        int64
	QuoteVolume      string
	Trades           int64
	TakerBuyBase     string
	TakerBuyQuote    string
}

// MarshalJSON renders the kline as the canonical positional array.
func (k Kline) MarshalJSON() ([]byte, error) {
	arr := []any{
		k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume,
		k.CloseTime, k.QuoteVolume, k.Trades, k.TakerBuyBase, k.TakerBuyQuote, "0",
	}
	return json.Marshal(arr)
}

// UnmarshalJSON accepts the canonical positional array.
func (k *Kline) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) < 11 {
		return errs.New("", errs.CodeOther, errs.WithMessage("kline array too short"))
	}
	fields := []any{
		&k.OpenTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume,
		&k.CloseTime, &k.QuoteVolume, &k.Trades, &k.TakerBuyBase, &k.TakerBuyQuote,
	}
	for i, dst := range fields {
		if err := json.Unmarshal(arr[i], dst); err != nil {
			return err
		}
	}
	return nil
}
