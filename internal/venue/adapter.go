// Package venue implements the normalized exchange operations: a shared
// client that validates, refines and confirms, and one Adapter per venue
// carrying the native REST/WSS specifics.
package venue

import (
	"context"

	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/stream"
)

// OrderRequest is a validated, refined order placement.
type OrderRequest struct {
	Symbol           string
	Side             schema.OrderSide
	Type             schema.OrderType
	TimeInForce      schema.TimeInForce
	Quantity         string
	QuoteOrderQty    string
	Price            string
	StopPrice        string
	IcebergQty       string
	NewClientOrderID string
}

// Emit forwards one decoded canonical event into the dispatch fabric.
type Emit func(evt schema.Event)

// Adapter is one venue's capability set behind the canonical model.
type Adapter interface {
	Venue() schema.Venue

	// Prepare runs venue-specific session setup during load (e.g. spot
	// account id resolution). Optional work; most venues return nil.
	Prepare(ctx context.Context) error

	ExchangeInfo(ctx context.Context) (schema.ExchangeInfo, error)
	ServerTime(ctx context.Context) (int64, error)

	// BookLimits is the venue's allowed depth-limit set, ascending.
	BookLimits() []int
	OrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error)

	// KlineIntervals returns the venue's interval allow-list; nil means
	// the full canonical set.
	KlineIntervals() []string
	Klines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]schema.Kline, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (schema.Order, error)
	Order(ctx context.Context, symbol string, orderID int64) (schema.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]schema.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (schema.Order, error)
	// CancelOpenOrders cancels the given open orders and returns those
	// actually cancelled.
	CancelOpenOrders(ctx context.Context, symbol string, orders []schema.Order) ([]schema.Order, error)

	SymbolPriceTicker(ctx context.Context, symbol string) (schema.SymbolPriceTicker, error)
	TickerPriceChangeStatistics(ctx context.Context, symbol string) (schema.TickerPriceChangeStatistics, error)

	AccountInformation(ctx context.Context) (schema.AccountInformation, error)
	FundingWallet(ctx context.Context, asset string, needBtcValuation bool) ([]schema.FundingBalance, error)
	AccountTrades(ctx context.Context, symbol string, startTime int64, limit int) ([]schema.Trade, error)
	OrderTrades(ctx context.Context, symbol string, orderID int64) ([]schema.Trade, error)

	// NewMarketStream builds the single public stream carrying every
	// registered market channel (canonical event keys) for one trade id.
	NewMarketStream(ctx context.Context, channels []string, emit Emit) (*stream.Manager, error)
	// NewUserStream builds the authenticated stream feeding
	// executionReport / outboundAccountPosition events.
	NewUserStream(ctx context.Context, emit Emit) (*stream.Manager, error)
}
