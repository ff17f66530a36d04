package rpcapi

// Field names follow the service IDL; all quantities and prices are decimal
// strings.

// Order is the canonical order shape shared by several replies.
type Order struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"order_id"`
	OrderListID         int64  `json:"order_list_id"`
	ClientOrderID       string `json:"client_order_id"`
	Price               string `json:"price"`
	OrigQty             string `json:"orig_qty"`
	ExecutedQty         string `json:"executed_qty"`
	CummulativeQuoteQty string `json:"cummulative_quote_qty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"time_in_force"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	StopPrice           string `json:"stop_price"`
	IcebergQty          string `json:"iceberg_qty"`
	Time                int64  `json:"time"`
	UpdateTime          int64  `json:"update_time"`
	IsWorking           bool   `json:"is_working"`
	OrigQuoteOrderQty   string `json:"orig_quote_order_qty"`
}

// Trade is one canonical account trade.
type Trade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"order_id"`
	OrderListID     int64  `json:"order_list_id"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	QuoteQty        string `json:"quote_qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commission_asset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"is_buyer"`
	IsMaker         bool   `json:"is_maker"`
	IsBestMatch     bool   `json:"is_best_match"`
}

// Balance is one asset's free/locked pair.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// FundingBalance is one funding-wallet line.
type FundingBalance struct {
	Asset        string `json:"asset"`
	Free         string `json:"free"`
	Locked       string `json:"locked"`
	Freeze       string `json:"freeze"`
	Withdrawing  string `json:"withdrawing"`
	BtcValuation string `json:"btc_valuation"`
}

// Kline is the reference venue's positional candle array:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// trades, takerBuyBase, takerBuyQuote, ignore].
type Kline []any

// PriceFilter bounds order prices.
type PriceFilter struct {
	MinPrice string `json:"min_price"`
	MaxPrice string `json:"max_price"`
	TickSize string `json:"tick_size"`
}

// LotSizeFilter bounds order quantities.
type LotSizeFilter struct {
	MinQty   string `json:"min_qty"`
	MaxQty   string `json:"max_qty"`
	StepSize string `json:"step_size"`
}

// MinNotionalFilter bounds the order notional.
type MinNotionalFilter struct {
	MinNotional   string `json:"min_notional"`
	ApplyToMarket bool   `json:"apply_to_market"`
	AvgPriceMins  int    `json:"avg_price_mins"`
}

// SymbolInfo is the canonical per-symbol descriptor with its filters.
type SymbolInfo struct {
	Symbol             string            `json:"symbol"`
	Status             string            `json:"status"`
	BaseAsset          string            `json:"base_asset"`
	BaseAssetPrecision int               `json:"base_asset_precision"`
	QuoteAsset         string            `json:"quote_asset"`
	QuotePrecision     int               `json:"quote_precision"`
	OrderTypes         []string          `json:"order_types"`
	IcebergAllowed     bool              `json:"iceberg_allowed"`
	OcoAllowed         bool              `json:"oco_allowed"`
	PriceFilter        PriceFilter       `json:"price_filter"`
	LotSize            LotSizeFilter     `json:"lot_size"`
	MinNotional        MinNotionalFilter `json:"min_notional"`
	Permissions        []string          `json:"permissions"`
}

// OpenClientConnectionRequest opens or reuses a session by account name.
type OpenClientConnectionRequest struct {
	AccountName string  `json:"account_name"`
	TradeID     string  `json:"trade_id"`
	RateLimiter float64 `json:"rate_limiter"`
}

// OpenClientConnectionReply carries the session handle.
type OpenClientConnectionReply struct {
	ClientID   int64  `json:"client_id"`
	SrvVersion string `json:"srv_version"`
	Exchange   string `json:"exchange"`
}

// FetchServerTimeRequest asks for the venue clock.
type FetchServerTimeRequest struct {
	ClientID int64 `json:"client_id"`
}

// FetchServerTimeReply carries the venue clock in milliseconds.
type FetchServerTimeReply struct {
	ServerTime int64 `json:"server_time"`
}

// ResetRateLimitRequest clears the rate-limit latch once its window passed.
type ResetRateLimitRequest struct {
	ClientID    int64   `json:"client_id"`
	RateLimiter float64 `json:"rate_limiter"`
}

// ResetRateLimitReply reports whether the latch is clear.
type ResetRateLimitReply struct {
	Success bool `json:"success"`
}

// FetchOpenOrdersRequest lists the open orders for one symbol.
type FetchOpenOrdersRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
}

// FetchOpenOrdersReply carries the open orders and the effective limiter.
type FetchOpenOrdersReply struct {
	Items       []Order `json:"items"`
	RateLimiter float64 `json:"rate_limiter"`
}

// FetchOrderRequest fetches one order; FilledUpdateCall additionally
// synthesizes execution reports into the caller's OnOrderUpdate queue.
type FetchOrderRequest struct {
	ClientID         int64  `json:"client_id"`
	Symbol           string `json:"symbol"`
	OrderID          int64  `json:"order_id"`
	TradeID          string `json:"trade_id"`
	FilledUpdateCall bool   `json:"filled_update_call"`
}

// CancelAllOrdersRequest mass-cancels a symbol's open orders.
type CancelAllOrdersRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
}

// CancelAllOrdersReply lists the orders actually cancelled.
type CancelAllOrdersReply struct {
	Items []Order `json:"items"`
}

// FetchExchangeInfoSymbolRequest fetches one symbol descriptor.
type FetchExchangeInfoSymbolRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
}

// FetchAccountInformationRequest fetches the account snapshot.
type FetchAccountInformationRequest struct {
	ClientID int64 `json:"client_id"`
}

// FetchAccountInformationReply carries commissions and balances.
type FetchAccountInformationReply struct {
	MakerCommission int64     `json:"maker_commission"`
	TakerCommission int64     `json:"taker_commission"`
	CanTrade        bool      `json:"can_trade"`
	CanWithdraw     bool      `json:"can_withdraw"`
	CanDeposit      bool      `json:"can_deposit"`
	UpdateTime      int64     `json:"update_time"`
	AccountType     string    `json:"account_type"`
	Balances        []Balance `json:"balances"`
}

// FetchFundingWalletRequest fetches funding balances.
type FetchFundingWalletRequest struct {
	ClientID         int64  `json:"client_id"`
	Asset            string `json:"asset,omitempty"`
	NeedBtcValuation bool   `json:"need_btc_valuation,omitempty"`
}

// FetchFundingWalletReply carries the funding-wallet lines.
type FetchFundingWalletReply struct {
	Balances []FundingBalance `json:"balances"`
}

// FetchOrderBookRequest fetches the top-5 book.
type FetchOrderBookRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
}

// FetchOrderBookReply carries bids descending and asks ascending, each
// level a [price, qty] string pair.
type FetchOrderBookReply struct {
	LastUpdateID int64       `json:"last_update_id"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// FetchSymbolPriceTickerRequest fetches the last price.
type FetchSymbolPriceTickerRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
}

// FetchSymbolPriceTickerReply carries the last-price quote.
type FetchSymbolPriceTickerReply struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchTickerPriceChangeStatisticsRequest fetches the 24h summary.
type FetchTickerPriceChangeStatisticsRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
}

// FetchTickerPriceChangeStatisticsReply is the rolling 24h summary.
type FetchTickerPriceChangeStatisticsReply struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"price_change"`
	PriceChangePercent string `json:"price_change_percent"`
	WeightedAvgPrice   string `json:"weighted_avg_price"`
	PrevClosePrice     string `json:"prev_close_price"`
	LastPrice          string `json:"last_price"`
	LastQty            string `json:"last_qty"`
	BidPrice           string `json:"bid_price"`
	AskPrice           string `json:"ask_price"`
	OpenPrice          string `json:"open_price"`
	HighPrice          string `json:"high_price"`
	LowPrice           string `json:"low_price"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quote_volume"`
	OpenTime           int64  `json:"open_time"`
	CloseTime          int64  `json:"close_time"`
	FirstID            int64  `json:"first_id"`
	LastID             int64  `json:"last_id"`
	Count              int64  `json:"count"`
}

// FetchKlinesRequest fetches historical candles.
type FetchKlinesRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`
}

// FetchKlinesReply carries positional candle arrays.
type FetchKlinesReply struct {
	Klines []Kline `json:"klines"`
}

// FetchAccountTradeListRequest fetches account trades.
type FetchAccountTradeListRequest struct {
	ClientID  int64  `json:"client_id"`
	Symbol    string `json:"symbol"`
	StartTime int64  `json:"start_time"`
	Limit     int    `json:"limit"`
}

// FetchAccountTradeListReply carries the trades.
type FetchAccountTradeListReply struct {
	Items []Trade `json:"items"`
}

// CreateLimitOrderRequest places a GTC limit order.
type CreateLimitOrderRequest struct {
	ClientID         int64  `json:"client_id"`
	Symbol           string `json:"symbol"`
	BuySide          bool   `json:"buy_side"`
	Quantity         string `json:"quantity"`
	Price            string `json:"price"`
	NewClientOrderID string `json:"new_client_order_id"`
}

// CancelOrderRequest cancels one order.
type CancelOrderRequest struct {
	ClientID int64  `json:"client_id"`
	Symbol   string `json:"symbol"`
	OrderID  int64  `json:"order_id"`
}

// StartStreamRequest starts the market and user listeners for a trade id
// once MarketStreamCount subscriptions are registered.
type StartStreamRequest struct {
	ClientID          int64  `json:"client_id"`
	TradeID           string `json:"trade_id"`
	MarketStreamCount int    `json:"market_stream_count"`
}

// StartStreamReply reports listener startup.
type StartStreamReply struct {
	Success bool `json:"success"`
}

// StopStreamRequest tears down a trade id's listeners and queues.
type StopStreamRequest struct {
	ClientID int64  `json:"client_id"`
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
}

// StopStreamReply reports teardown.
type StopStreamReply struct {
	Success bool `json:"success"`
}

// OnKlinesUpdateRequest subscribes to candle frames. Interval is a JSON
// array of canonical interval strings.
type OnKlinesUpdateRequest struct {
	ClientID int64  `json:"client_id"`
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// CandleFrame is one kline update.
type CandleFrame struct {
	EventTime   int64  `json:"event_time"`
	Symbol      string `json:"symbol"`
	Interval    string `json:"interval"`
	StartTime   int64  `json:"start_time"`
	CloseTime   int64  `json:"close_time"`
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quote_volume"`
	Trades      int64  `json:"trades"`
	Closed      bool   `json:"closed"`
}

// OnTickerUpdateRequest subscribes to 24h miniTicker frames.
type OnTickerUpdateRequest struct {
	ClientID int64  `json:"client_id"`
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
}

// TickerFrame is one rolling 24h ticker update.
type TickerFrame struct {
	EventTime   int64  `json:"event_time"`
	Symbol      string `json:"symbol"`
	ClosePrice  string `json:"close_price"`
	OpenPrice   string `json:"open_price"`
	HighPrice   string `json:"high_price"`
	LowPrice    string `json:"low_price"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quote_volume"`
}

// OnOrderBookUpdateRequest subscribes to top-5 book frames.
type OnOrderBookUpdateRequest struct {
	ClientID int64  `json:"client_id"`
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
}

// OrderBookFrame is one top-5 depth update.
type OrderBookFrame struct {
	Symbol       string      `json:"symbol"`
	LastUpdateID int64       `json:"last_update_id"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// OnFundsUpdateRequest subscribes to balance-change frames, filtered to
// the pair's base and quote assets.
type OnFundsUpdateRequest struct {
	ClientID   int64  `json:"client_id"`
	TradeID    string `json:"trade_id"`
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
}

// FundsFrame is one balance-change update.
type FundsFrame struct {
	EventTime  int64     `json:"event_time"`
	UpdateTime int64     `json:"update_time"`
	Balances   []Balance `json:"balances"`
}

// OnOrderUpdateRequest subscribes to execution reports.
type OnOrderUpdateRequest struct {
	ClientID int64  `json:"client_id"`
	TradeID  string `json:"trade_id"`
	Symbol   string `json:"symbol"`
}

// OrderUpdateFrame mirrors the reference venue's executionReport event.
type OrderUpdateFrame struct {
	EventTime                int64  `json:"event_time"`
	Symbol                   string `json:"symbol"`
	ClientOrderID            string `json:"client_order_id"`
	Side                     string `json:"side"`
	Type                     string `json:"type"`
	TimeInForce              string `json:"time_in_force"`
	Quantity                 string `json:"quantity"`
	Price                    string `json:"price"`
	StopPrice                string `json:"stop_price"`
	IcebergQty               string `json:"iceberg_qty"`
	OrderListID              int64  `json:"order_list_id"`
	OrigClientOrderID        string `json:"orig_client_order_id"`
	ExecutionType            string `json:"execution_type"`
	Status                   string `json:"status"`
	RejectReason             string `json:"reject_reason"`
	OrderID                  int64  `json:"order_id"`
	LastExecutedQuantity     string `json:"last_executed_quantity"`
	CumulativeFilledQuantity string `json:"cumulative_filled_quantity"`
	LastExecutedPrice        string `json:"last_executed_price"`
	CommissionAmount         string `json:"commission_amount"`
	CommissionAsset          string `json:"commission_asset"`
	TransactionTime          int64  `json:"transaction_time"`
	TradeID                  int64  `json:"trade_id"`
	InOrderBook              bool   `json:"in_order_book"`
	IsMakerSide              bool   `json:"is_maker_side"`
	OrderCreationTime        int64  `json:"order_creation_time"`
	QuoteAssetTransacted     string `json:"quote_asset_transacted"`
	LastQuoteAssetTransacted string `json:"last_quote_asset_transacted"`
	QuoteOrderQuantity       string `json:"quote_order_quantity"`
}
