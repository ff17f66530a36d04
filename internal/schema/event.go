package schema

import "strings"

// Event is a decoded stream frame carried on the bus. EventKey matches the
// key a subscription registered with (market: "<symbol>@<stream>", user:
// the event type name).
type Event interface {
	EventKey() string
}

// Market event key suffixes.
const (
	StreamMiniTicker = "miniTicker"
	StreamDepth5     = "depth5"
	StreamKline      = "kline" // kline_<interval>
)

// User event keys.
const (
	KeyExecutionReport         = "executionReport"
	KeyOutboundAccountPosition = "outboundAccountPosition"
)

// MarketKey builds a market event key, e.g. "btcusdt@kline_1m".
func MarketKey(symbol, stream string) string {
	return strings.ToLower(symbol) + "@" + stream
}

// SplitKey splits a market event key into its symbol and stream suffix.
// User keys have no "@" and come back with an empty symbol.
func SplitKey(key string) (symbol, stream string) {
	if i := strings.IndexByte(key, '@'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// MiniTicker is the rolling 24h market ticker event.
type MiniTicker struct {
	EventTime   int64  `json:"eventTime"`
	Symbol      string `json:"symbol"`
	ClosePrice  string `json:"closePrice"`
	OpenPrice   string `json:"openPrice"`
	HighPrice   string `json:"highPrice"`
	LowPrice    string `json:"lowPrice"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quoteVolume"`
}

func (e MiniTicker) EventKey() string { return MarketKey(e.Symbol, StreamMiniTicker) }

// Candle is one kline update on a market stream.
type Candle struct {
	EventTime   int64  `json:"eventTime"`
	Symbol      string `json:"symbol"`
	Interval    string `json:"interval"`
	StartTime   int64  `json:"startTime"`
	CloseTime   int64  `json:"closeTime"`
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quoteVolume"`
	Trades      int64  `json:"trades"`
	Closed      bool   `json:"closed"`
}

func (e Candle) EventKey() string { return MarketKey(e.Symbol, StreamKline+"_"+e.Interval) }

// OrderBookTop is a top-5 depth update on a market stream.
type OrderBookTop struct {
	Symbol       string       `json:"symbol"`
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

func (e OrderBookTop) EventKey() string { return MarketKey(e.Symbol, StreamDepth5) }

// ExecutionReport mirrors the reference venue's executionReport user event.
type ExecutionReport struct {
	EventTime               int64       `json:"eventTime"`
	Symbol                  string      `json:"symbol"`
	ClientOrderID           string      `json:"clientOrderId"`
	Side                    OrderSide   `json:"side"`
	Type                    OrderType   `json:"type"`
	TimeInForce             TimeInForce `json:"timeInForce"`
	Quantity                string      `json:"quantity"`
	Price                   string      `json:"price"`
	StopPrice               string      `json:"stopPrice"`
	IcebergQty              string      `json:"icebergQty"`
	OrderListID             int64       `json:"orderListId"`
	OrigClientOrderID       string      `json:"origClientOrderId"`
	ExecutionType           string      `json:"executionType"`
	Status                  OrderStatus `json:"status"`
	RejectReason            string      `json:"rejectReason"`
	OrderID                 int64       `json:"orderId"`
	LastExecutedQuantity    string      `json:"lastExecutedQuantity"`
	CumulativeFilledQuantity string     `json:"cumulativeFilledQuantity"`
	LastExecutedPrice       string      `json:"lastExecutedPrice"`
	CommissionAmount        string      `json:"commissionAmount"`
	CommissionAsset         string      `json:"commissionAsset"`
	TransactionTime         int64       `json:"transactionTime"`
	TradeID                 int64       `json:"tradeId"`
	InOrderBook             bool        `json:"inOrderBook"`
	IsMakerSide             bool        `json:"isMakerSide"`
	OrderCreationTime       int64       `json:"orderCreationTime"`
	QuoteAssetTransacted    string      `json:"quoteAssetTransacted"`
	LastQuoteAssetTransacted string     `json:"lastQuoteAssetTransacted"`
	QuoteOrderQuantity      string      `json:"quoteOrderQuantity"`
}

func (e ExecutionReport) EventKey() string { return KeyExecutionReport }

// OutboundAccountPosition is the balance-change user event.
type OutboundAccountPosition struct {
	EventTime  int64     `json:"eventTime"`
	UpdateTime int64     `json:"updateTime"`
	Balances   []Balance `json:"balances"`
}

func (e OutboundAccountPosition) EventKey() string { return KeyOutboundAccountPosition }
