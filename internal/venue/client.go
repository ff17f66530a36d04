package venue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/bus"
	"github.com/exwrap/martin/internal/numeric"
	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/stream"
	"github.com/exwrap/martin/internal/telemetry"
)

const (
	// StatusTimeout bounds post-create and post-cancel confirmation polls.
	StatusTimeout = 5 * time.Second
	// Heartbeat is the coarse poll interval for confirmation and
	// shutdown-quiescence loops.
	Heartbeat = time.Second
)

// Client executes the normalized operations for one exchange session.
// Validation, refinement and confirmation live here; the adapter carries
// the venue's native shapes.
type Client struct {
	adapter Adapter
	bus     *bus.Bus
	log     observability.Logger
	metrics *telemetry.Instruments

	Tracker *Tracker
	Buffer  *Buffer

	mu               sync.Mutex
	loaded           bool
	symbols          map[string]schema.SymbolInfo
	rateLimits       []schema.RateLimit
	highestPrecision int
	streams          map[string][]*stream.Manager
	queues           map[string][]*bus.Queue
}

// NewClient wires a venue adapter into a session-scoped client. The tracker
// and buffer are shared with the adapter's private stream handler.
func NewClient(adapter Adapter, eventBus *bus.Bus, tracker *Tracker, buffer *Buffer, log observability.Logger) *Client {
	if log == nil {
		log = observability.Log()
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	if buffer == nil {
		buffer = NewBuffer()
	}
	return &Client{
		adapter: adapter,
		bus:     eventBus,
		log:     log,
		Tracker: tracker,
		Buffer:  buffer,
		symbols: make(map[string]schema.SymbolInfo),
		streams: make(map[string][]*stream.Manager),
		queues:  make(map[string][]*bus.Queue),
	}
}

// Venue reports the adapter's venue tag.
func (c *Client) Venue() schema.Venue { return c.adapter.Venue() }

// SetInstruments attaches metric instruments to the client and, when the
// adapter supports it, to the adapter's streams. Call before starting
// listeners.
func (c *Client) SetInstruments(inst *telemetry.Instruments) {
	c.metrics = inst
	if ia, ok := c.adapter.(interface {
		SetInstruments(*telemetry.Instruments)
	}); ok {
		ia.SetInstruments(inst)
	}
}

// Loaded reports whether Load completed.
func (c *Client) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// HighestPrecision returns max(8, max baseAssetPrecision) after Load.
func (c *Client) HighestPrecision() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highestPrecision
}

// Load fetches exchange info, populates the symbol table and runs venue
// preparation. Failure is fatal for the session.
func (c *Client) Load(ctx context.Context) error {
	info, err := c.adapter.ExchangeInfo(ctx)
	if err != nil {
		return err
	}
	if len(info.Symbols) == 0 {
		return errs.New(string(c.Venue()), errs.CodeOther,
			errs.WithMessage("exchange info returned no symbols"))
	}
	highest := 8
	symbols := make(map[string]schema.SymbolInfo, len(info.Symbols))
	for _, sym := range info.Symbols {
		symbols[sym.Symbol] = sym
		if sym.BaseAssetPrecision > highest {
			highest = sym.BaseAssetPrecision
		}
	}
	if err := c.adapter.Prepare(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.symbols = symbols
	c.rateLimits = info.RateLimits
	c.highestPrecision = highest
	c.loaded = true
	c.mu.Unlock()

	decimal.DivisionPrecision = highest + 4
	return nil
}

// SymbolInfo returns the canonical descriptor for symbol.
func (c *Client) SymbolInfo(symbol string) (schema.SymbolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.symbols[strings.ToUpper(symbol)]
	if !ok {
		return schema.SymbolInfo{}, errs.Validation("unknown symbol " + symbol)
	}
	return info, nil
}

// ExchangeInfo rebuilds the loaded snapshot.
func (c *Client) ExchangeInfo() schema.ExchangeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := schema.ExchangeInfo{RateLimits: c.rateLimits}
	for _, info := range c.symbols {
		out.Symbols = append(out.Symbols, info)
	}
	return out
}

// FetchServerTime returns the venue clock in epoch milliseconds.
func (c *Client) FetchServerTime(ctx context.Context) (int64, error) {
	return c.adapter.ServerTime(ctx)
}

// FetchOrderBook validates the limit against the venue's allowed set and
// returns the depth snapshot.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error) {
	allowed := c.adapter.BookLimits()
	valid := false
	for _, l := range allowed {
		if l == limit {
			valid = true
			break
		}
	}
	if !valid {
		return schema.OrderBook{}, errs.Validation("order book limit not in venue set")
	}
	return c.adapter.OrderBook(ctx, symbol, limit)
}

// FetchKlines validates the interval and returns candles.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]schema.Kline, error) {
	if !schema.ValidInterval(interval) {
		return nil, errs.Validation("interval not in canonical set")
	}
	if allow := c.adapter.KlineIntervals(); allow != nil {
		ok := false
		for _, i := range allow {
			if i == interval {
				ok = true
				break
			}
		}
		if !ok {
			return nil, errs.Validation("interval not supported by venue")
		}
	}
	if limit <= 0 {
		limit = 500
	}
	return c.adapter.Klines(ctx, symbol, interval, limit, startTime, endTime)
}

// CreateOrder validates and refines the request, places it, then registers
// the order and drains any race-buffered trade frames into the response.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (schema.Order, error) {
	info, err := c.SymbolInfo(req.Symbol)
	if err != nil {
		return schema.Order{}, err
	}
	if err := c.validateOrder(&req); err != nil {
		return schema.Order{}, err
	}
	if err := c.refineOrder(&req, info); err != nil {
		return schema.Order{}, err
	}

	order, err := c.adapter.PlaceOrder(ctx, req)
	if err != nil {
		return schema.Order{}, err
	}

	origQty, parseErr := numeric.Parse(order.OrigQty)
	if parseErr != nil {
		origQty = decimal.Zero
	}
	c.Tracker.Add(order.OrderID, origQty)
	for _, report := range c.Buffer.Drain(order.OrderID) {
		qty, qtyErr := numeric.Parse(report.LastExecutedQuantity)
		if qtyErr != nil {
			continue
		}
		executed, filled := c.Tracker.ApplyTrade(order.OrderID, qty, &report)
		order.ExecutedQty = numeric.FormatFixed(executed, info.BaseAssetPrecision)
		if filled {
			order.Status = schema.StatusFilled
		} else if executed.Sign() > 0 {
			order.Status = schema.StatusPartiallyFilled
		}
		if c.bus != nil {
			c.fire(report)
		}
	}
	return order, nil
}

func (c *Client) validateOrder(req *OrderRequest) error {
	if req.Side != schema.SideBuy && req.Side != schema.SideSell {
		return errs.Validation("bad order side")
	}
	switch req.Type {
	case schema.TypeLimit, schema.TypeStopLossLimit, schema.TypeTakeProfitLimit:
		if req.TimeInForce == "" || req.Price == "" {
			return errs.Validation("limit orders require timeInForce and price")
		}
	case schema.TypeMarket:
	case schema.TypeLimitMaker:
		if req.Price == "" {
			return errs.Validation("limit-maker orders require price")
		}
	case schema.TypeStopLoss, schema.TypeTakeProfit:
	default:
		return errs.Validation("unsupported order type")
	}
	switch req.Type {
	case schema.TypeStopLoss, schema.TypeStopLossLimit, schema.TypeTakeProfit, schema.TypeTakeProfitLimit:
		if req.StopPrice == "" {
			return errs.Validation("stop orders require stopPrice")
		}
	}
	if req.Quantity == "" && req.QuoteOrderQty == "" {
		return errs.Validation("one of quantity or quoteOrderQty is required")
	}
	return nil
}

func (c *Client) refineOrder(req *OrderRequest, info schema.SymbolInfo) error {
	precision := info.BaseAssetPrecision
	if req.Quantity != "" {
		refined, err := numeric.RefineString(req.Quantity, info.Filters.LotSize.StepSize, precision)
		if err != nil {
			return err
		}
		req.Quantity = refined
	}
	if req.Price != "" {
		refined, err := numeric.RefineString(req.Price, info.Filters.Price.TickSize, precision)
		if err != nil {
			return err
		}
		req.Price = refined
	}
	if req.StopPrice != "" {
		refined, err := numeric.RefineString(req.StopPrice, info.Filters.Price.TickSize, precision)
		if err != nil {
			return err
		}
		req.StopPrice = refined
	}
	return nil
}

// FetchOrder returns the canonical order.
func (c *Client) FetchOrder(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	return c.adapter.Order(ctx, symbol, orderID)
}

// FetchOpenOrders lists open orders and garbage-collects the active-order
// table against them.
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	orders, err := c.adapter.OpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	openIDs := make(map[int64]struct{}, len(orders))
	for _, o := range orders {
		openIDs[o.OrderID] = struct{}{}
	}
	c.Tracker.Clear(openIDs)
	return orders, nil
}

// CancelOrder cancels and confirms. Venues without a synchronous cancel ack
// are polled until the order reads CANCELED or the tracker reports the
// cancellation, bounded by StatusTimeout.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (schema.Order, error) {
	order, err := c.adapter.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		return schema.Order{}, err
	}
	if order.Status == schema.StatusCanceled {
		c.Tracker.MarkCancelled(orderID)
		return order, nil
	}

	deadline := time.Now().Add(StatusTimeout)
	for {
		if c.Tracker.Cancelled(orderID) {
			order.Status = schema.StatusCanceled
			return order, nil
		}
		fetched, fetchErr := c.adapter.Order(ctx, symbol, orderID)
		if fetchErr == nil {
			if fetched.Status == schema.StatusCanceled {
				c.Tracker.MarkCancelled(orderID)
				return fetched, nil
			}
			order = fetched
		}
		if time.Now().After(deadline) {
			return schema.Order{}, errs.New(string(c.Venue()), errs.CodeOther,
				errs.WithMessage("cancel confirmation timed out"))
		}
		select {
		case <-ctx.Done():
			return schema.Order{}, errs.New(string(c.Venue()), errs.CodeNetwork, errs.WithCause(ctx.Err()))
		case <-time.After(Heartbeat):
		}
	}
}

// CancelAllOrders fetches the open orders and mass-cancels them, returning
// the orders actually cancelled.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	open, err := c.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	cancelled, err := c.adapter.CancelOpenOrders(ctx, symbol, open)
	if err != nil {
		return nil, err
	}
	for _, o := range cancelled {
		c.Tracker.MarkCancelled(o.OrderID)
	}
	return cancelled, nil
}

// FetchSymbolPriceTicker returns the last-price quote for symbol.
func (c *Client) FetchSymbolPriceTicker(ctx context.Context, symbol string) (schema.SymbolPriceTicker, error) {
	return c.adapter.SymbolPriceTicker(ctx, strings.ToUpper(symbol))
}

// FetchTickerPriceChangeStatistics returns the rolling 24h summary for
// symbol.
func (c *Client) FetchTickerPriceChangeStatistics(ctx context.Context, symbol string) (schema.TickerPriceChangeStatistics, error) {
	return c.adapter.TickerPriceChangeStatistics(ctx, strings.ToUpper(symbol))
}

// FetchAccountInformation returns the balance snapshot.
func (c *Client) FetchAccountInformation(ctx context.Context) (schema.AccountInformation, error) {
	return c.adapter.AccountInformation(ctx)
}

// FetchFundingWallet returns funding balances.
func (c *Client) FetchFundingWallet(ctx context.Context, asset string, needBtcValuation bool) ([]schema.FundingBalance, error) {
	return c.adapter.FundingWallet(ctx, asset, needBtcValuation)
}

// FetchAccountTradeList returns account trades for symbol.
func (c *Client) FetchAccountTradeList(ctx context.Context, symbol string, startTime int64, limit int) ([]schema.Trade, error) {
	if limit <= 0 {
		limit = 500
	}
	return c.adapter.AccountTrades(ctx, symbol, startTime, limit)
}

// FetchOrderTradeList returns the trades of one order.
func (c *Client) FetchOrderTradeList(ctx context.Context, symbol string, orderID int64) ([]schema.Trade, error) {
	return c.adapter.OrderTrades(ctx, symbol, orderID)
}

// RegisterQueue records a subscription queue for tradeID so teardown can
// push the sentinel and wait for quiescence.
func (c *Client) RegisterQueue(tradeID string, q *bus.Queue) {
	c.mu.Lock()
	c.queues[tradeID] = append(c.queues[tradeID], q)
	c.mu.Unlock()
}

// Queues returns the registered queues for tradeID.
func (c *Client) Queues(tradeID string) []*bus.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*bus.Queue(nil), c.queues[tradeID]...)
}

// DropQueues forgets and closes every queue for tradeID.
func (c *Client) DropQueues(tradeID string) {
	c.mu.Lock()
	queues := c.queues[tradeID]
	delete(c.queues, tradeID)
	c.mu.Unlock()
	for _, q := range queues {
		q.Close()
	}
}

// StartMarketEventsListener opens the public stream carrying every market
// channel registered for tradeID.
func (c *Client) StartMarketEventsListener(ctx context.Context, tradeID string) error {
	channels := c.bus.StreamKeys(c.Venue(), tradeID)
	if len(channels) == 0 {
		return errs.Validation("no market streams registered for trade id")
	}
	mgr, err := c.adapter.NewMarketStream(ctx, channels, c.fire)
	if err != nil {
		return err
	}
	c.addStream(tradeID, mgr)
	mgr.Start()
	return nil
}

// StartUserEventsListener opens the authenticated user stream for tradeID.
func (c *Client) StartUserEventsListener(ctx context.Context, tradeID string) error {
	mgr, err := c.adapter.NewUserStream(ctx, c.fire)
	if err != nil {
		return err
	}
	c.addStream(tradeID, mgr)
	mgr.Start()
	return nil
}

// StopEventsListener stops every stream owned by tradeID.
func (c *Client) StopEventsListener(tradeID string) {
	c.mu.Lock()
	managers := c.streams[tradeID]
	delete(c.streams, tradeID)
	c.mu.Unlock()
	for _, mgr := range managers {
		mgr.Stop()
	}
	for _, mgr := range managers {
		<-mgr.Done()
	}
}

// StreamCount reports the live stream managers for tradeID.
func (c *Client) StreamCount(tradeID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams[tradeID])
}

func (c *Client) addStream(tradeID string, mgr *stream.Manager) {
	c.mu.Lock()
	c.streams[tradeID] = append(c.streams[tradeID], mgr)
	c.mu.Unlock()
}

// fire is the adapter-facing event sink: route on the bus, and tear down
// any trade id whose queue overflowed.
func (c *Client) fire(evt schema.Event) {
	symbol, suffix := schema.SplitKey(evt.EventKey())
	c.metrics.FrameDecoded(context.Background(), string(c.Venue()), suffix, symbol)
	for _, overflowed := range c.bus.Fire(evt) {
		tid := overflowed
		c.log.Error("subscription queue overflow, tearing down trade id",
			observability.String("venue", string(c.Venue())),
			observability.String("trade_id", tid))
		c.metrics.QueueDrop(context.Background(), string(c.Venue()), tid)
		go func() {
			c.StopEventsListener(tid)
			c.bus.Unregister(c.Venue(), tid)
			for _, q := range c.Queues(tid) {
				q.Put(bus.StopSignal{TradeID: tid})
			}
		}()
	}
}
