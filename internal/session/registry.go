// Package session tracks client sessions: one venue client per configured
// account, found or created by name and handed out under a stable numeric
// handle. The process-wide rate-limit latch and the current rate-limiter
// threshold live on the registry, not in globals.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/bus"
	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/rest"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/telemetry"
	"github.com/exwrap/martin/internal/venue"
	"github.com/exwrap/martin/internal/venue/binance"
	"github.com/exwrap/martin/internal/venue/bitfinex"
	"github.com/exwrap/martin/internal/venue/huobi"
	"github.com/exwrap/martin/internal/venue/okx"
)

// Session is one opened client connection: a loaded venue client under a
// stable handle. Opening the same account name again returns the same
// session.
type Session struct {
	ID     int64
	Name   string
	Client *venue.Client
}

// Registry owns every open session plus the process-wide pieces they
// share: the event bus, the rate-limit latch and the rate-limiter
// threshold applied to newly opened sessions.
type Registry struct {
	cfg     *config.File
	bus     *bus.Bus
	latch   *rest.Latch
	log     observability.Logger
	metrics *telemetry.Instruments

	// baseCtx bounds stream lifetimes; streams must outlive the RPC
	// call that started them.
	baseCtx   context.Context
	heartbeat time.Duration

	mu          sync.Mutex
	nextID      int64
	sessions    map[int64]*Session
	byName      map[string]*Session
	rateLimiter float64 // requests per second for new sessions; 0 = unlimited
}

// NewRegistry builds an empty registry. ctx bounds the lifetime of every
// stream started through it.
func NewRegistry(ctx context.Context, cfg *config.File, log observability.Logger) *Registry {
	if log == nil {
		log = observability.Log()
	}
	return &Registry{
		cfg:       cfg,
		bus:       bus.New(),
		latch:     rest.NewLatch(),
		log:       log,
		baseCtx:   ctx,
		heartbeat: venue.Heartbeat,
		sessions:  make(map[int64]*Session),
		byName:    make(map[string]*Session),
	}
}

// Bus exposes the shared event bus.
func (r *Registry) Bus() *bus.Bus { return r.bus }

// Latch exposes the process-wide rate-limit latch.
func (r *Registry) Latch() *rest.Latch { return r.latch }

// SetInstruments attaches metric instruments to every client built after
// the call.
func (r *Registry) SetInstruments(inst *telemetry.Instruments) { r.metrics = inst }

// Open finds the session for accountName or creates one, loading the
// venue's exchange info on first open. rateLimiter, when positive, becomes
// the registry's threshold for the session's REST client.
func (r *Registry) Open(ctx context.Context, accountName string, rateLimiter float64) (*Session, error) {
	r.mu.Lock()
	if rateLimiter > 0 {
		r.rateLimiter = rateLimiter
	}
	if sess, ok := r.byName[accountName]; ok {
		r.mu.Unlock()
		return sess, nil
	}
	threshold := r.rateLimiter
	r.mu.Unlock()

	acct, ok := r.cfg.AccountByName(accountName)
	if !ok {
		return nil, errs.New(accountName, errs.CodeAuth, errs.WithMessage("unknown account"))
	}
	client, err := r.buildClient(acct, threshold)
	if err != nil {
		return nil, err
	}
	if err := client.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.byName[accountName]; ok {
		return sess, nil
	}
	r.nextID++
	sess := &Session{ID: r.nextID, Name: accountName, Client: client}
	r.sessions[sess.ID] = sess
	r.byName[accountName] = sess
	r.log.Info("session opened",
		observability.Int64("client_id", sess.ID),
		observability.String("account", accountName),
		observability.String("venue", string(client.Venue())))
	return sess, nil
}

// Get resolves a session handle.
func (r *Registry) Get(id int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, errs.New("", errs.CodeAuth, errs.WithMessage("unknown client id"))
	}
	return sess, nil
}

// ResetRateLimit updates the threshold and attempts to clear the latch.
// The latch only clears after it has been set for rest.ResetAfter.
func (r *Registry) ResetRateLimit(rateLimiter float64) bool {
	r.mu.Lock()
	if rateLimiter > 0 {
		r.rateLimiter = rateLimiter
	}
	r.mu.Unlock()
	return r.latch.Reset()
}

// buildClient wires the account's adapter, REST client and venue client.
// The sign hook binds after the adapter exists; no request is signed
// before Open returns.
func (r *Registry) buildClient(acct config.Account, threshold float64) (*venue.Client, error) {
	v, err := schema.ParseVenue(acct.Exchange)
	if err != nil {
		return nil, err
	}
	ep, err := r.cfg.EndpointFor(acct)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if threshold > 0 {
		limit = rate.Limit(threshold)
	}
	var sign rest.SignFunc
	restClient := rest.NewClient(v, r.latch,
		rest.WithRateLimit(rate.NewLimiter(limit, 1)),
		rest.WithInstruments(r.metrics),
		rest.WithSignFunc(func(ctx context.Context, req *rest.Request) error {
			return sign(ctx, req)
		}))

	tracker := venue.NewTracker()
	buffer := venue.NewBuffer()
	var adapter venue.Adapter
	switch v {
	case schema.VenueBinance:
		a := binance.New(restClient, ep, acct.APIKey, acct.APISecret, r.log)
		sign, adapter = a.SignRequest, a
	case schema.VenueBitfinex:
		a := bitfinex.New(restClient, ep, acct.APIKey, acct.APISecret, tracker, buffer, r.log)
		sign, adapter = a.SignRequest, a
	case schema.VenueHuobi:
		a := huobi.New(restClient, ep, acct.APIKey, acct.APISecret, r.log)
		sign, adapter = a.SignRequest, a
	case schema.VenueOKX:
		a := okx.New(restClient, ep, acct.APIKey, acct.APISecret, acct.Passphrase, r.log)
		sign, adapter = a.SignRequest, a
	}
	client := venue.NewClient(adapter, r.bus, tracker, buffer, r.log)
	client.SetInstruments(r.metrics)
	return client, nil
}

// RateLimiter reports the current requests-per-second threshold.
func (r *Registry) RateLimiter() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rateLimiter
}

// Subscribe allocates one bounded queue scoped to tradeID and registers a
// push handler for every event key, plus the queue with the session's
// client. Depth subscriptions get the larger capacity.
func (r *Registry) Subscribe(sess *Session, tradeID string, eventKeys ...string) *bus.Queue {
	capacity := bus.QueueCap
	for _, key := range eventKeys {
		if _, suffix := schema.SplitKey(key); suffix == schema.StreamDepth5 {
			capacity = bus.OrderBookQueueCap
		}
	}
	q := bus.NewQueue(capacity)
	handler := func(evt schema.Event) bool { return q.Put(evt) }
	for _, key := range eventKeys {
		id := uuid.NewString()
		switch key {
		case schema.KeyExecutionReport, schema.KeyOutboundAccountPosition:
			r.bus.RegisterUserEvent(id, handler, key, tradeID)
		default:
			r.bus.RegisterEvent(id, handler, key, sess.Client.Venue(), tradeID)
		}
	}
	sess.Client.RegisterQueue(tradeID, q)
	return q
}

// StartStream waits until the expected number of market streams is
// registered for tradeID, then starts the market and user listeners
// concurrently. The wait polls at the heartbeat cadence and is bounded by
// ctx; the listeners themselves run on the registry's base context.
func (r *Registry) StartStream(ctx context.Context, sess *Session, tradeID string, expected int) error {
	v := sess.Client.Venue()
	for r.bus.MarketStreamCount(v, tradeID) < expected {
		select {
		case <-ctx.Done():
			return errs.New(string(v), errs.CodeNetwork, errs.WithCause(ctx.Err()),
				errs.WithMessage("gave up waiting for stream registrations"))
		case <-time.After(r.heartbeat):
		}
	}

	p := pool.New().WithErrors()
	p.Go(func() error { return sess.Client.StartMarketEventsListener(r.baseCtx, tradeID) })
	p.Go(func() error { return sess.Client.StartUserEventsListener(r.baseCtx, tradeID) })
	if err := p.Wait(); err != nil {
		sess.Client.StopEventsListener(tradeID)
		return err
	}
	return nil
}

// StopStream tears down tradeID's listeners, pushes the stop sentinel into
// every subscription queue, waits for consumers to drain and then drops
// the queues. Consumers observe the sentinel or a closed queue.
func (r *Registry) StopStream(ctx context.Context, sess *Session, tradeID string) error {
	sess.Client.StopEventsListener(tradeID)
	r.bus.Unregister(sess.Client.Venue(), tradeID)

	queues := sess.Client.Queues(tradeID)
	for _, q := range queues {
		q.Put(bus.StopSignal{TradeID: tradeID})
	}
	for {
		drained := true
		for _, q := range queues {
			if q.Len() > 0 {
				drained = false
				break
			}
		}
		if drained {
			break
		}
		select {
		case <-ctx.Done():
			sess.Client.DropQueues(tradeID)
			return errs.New(string(sess.Client.Venue()), errs.CodeNetwork, errs.WithCause(ctx.Err()),
				errs.WithMessage("gave up waiting for queues to drain"))
		case <-time.After(r.heartbeat):
		}
	}
	sess.Client.DropQueues(tradeID)
	return nil
}

// FetchOrder fetches the canonical order and, when filledUpdate is set,
// synthesizes the execution reports a healthy stream would have carried:
// a terminal report for a filled order, one report per fill for a
// partially filled one. REST polling heals missed stream events this way.
func (r *Registry) FetchOrder(ctx context.Context, sess *Session, symbol string, orderID int64, filledUpdate bool) (schema.Order, error) {
	order, err := sess.Client.FetchOrder(ctx, symbol, orderID)
	if err != nil {
		return schema.Order{}, err
	}
	if !filledUpdate {
		return order, nil
	}
	switch order.Status {
	case schema.StatusFilled:
		r.fire(sess, filledReport(order))
	case schema.StatusPartiallyFilled:
		trades, err := sess.Client.FetchOrderTradeList(ctx, symbol, orderID)
		if err != nil {
			r.log.Warn("order trade list unavailable, skipping synthesized reports",
				observability.String("venue", string(sess.Client.Venue())),
				observability.Err(err))
			return order, nil
		}
		for _, trade := range trades {
			r.fire(sess, partialReport(order, trade))
		}
	}
	return order, nil
}

// fire routes a synthesized event and escalates queue overflow the same
// way the stream path does.
func (r *Registry) fire(sess *Session, evt schema.Event) {
	for _, overflowed := range r.bus.Fire(evt) {
		tid := overflowed
		r.log.Error("subscription queue overflow, tearing down trade id",
			observability.String("venue", string(sess.Client.Venue())),
			observability.String("trade_id", tid))
		go func() {
			sess.Client.StopEventsListener(tid)
			r.bus.Unregister(sess.Client.Venue(), tid)
			for _, q := range sess.Client.Queues(tid) {
				q.Put(bus.StopSignal{TradeID: tid})
			}
		}()
	}
}

func filledReport(order schema.Order) schema.ExecutionReport {
	return schema.ExecutionReport{
		EventTime:                order.UpdateTime,
		Symbol:                   order.Symbol,
		ClientOrderID:            order.ClientOrderID,
		Side:                     order.Side,
		Type:                     order.Type,
		TimeInForce:              order.TimeInForce,
		Quantity:                 order.OrigQty,
		Price:                    order.Price,
		StopPrice:                order.StopPrice,
		IcebergQty:               order.IcebergQty,
		OrderListID:              -1,
		ExecutionType:            "TRADE",
		Status:                   schema.StatusFilled,
		OrderID:                  order.OrderID,
		LastExecutedQuantity:     order.ExecutedQty,
		CumulativeFilledQuantity: order.ExecutedQty,
		LastExecutedPrice:        order.Price,
		TransactionTime:          order.UpdateTime,
		OrderCreationTime:        order.Time,
		QuoteAssetTransacted:     order.CummulativeQuoteQty,
		LastQuoteAssetTransacted: order.CummulativeQuoteQty,
		QuoteOrderQuantity:       order.OrigQuoteOrderQty,
	}
}

func partialReport(order schema.Order, trade schema.Trade) schema.ExecutionReport {
	return schema.ExecutionReport{
		EventTime:                trade.Time,
		Symbol:                   order.Symbol,
		ClientOrderID:            order.ClientOrderID,
		Side:                     order.Side,
		Type:                     order.Type,
		TimeInForce:              order.TimeInForce,
		Quantity:                 order.OrigQty,
		Price:                    order.Price,
		StopPrice:                order.StopPrice,
		IcebergQty:               order.IcebergQty,
		OrderListID:              -1,
		ExecutionType:            "TRADE",
		Status:                   schema.StatusPartiallyFilled,
		OrderID:                  order.OrderID,
		LastExecutedQuantity:     trade.Qty,
		CumulativeFilledQuantity: order.ExecutedQty,
		LastExecutedPrice:        trade.Price,
		CommissionAmount:         trade.Commission,
		CommissionAsset:          trade.CommissionAsset,
		TransactionTime:          trade.Time,
		TradeID:                  trade.ID,
		IsMakerSide:              trade.IsMaker,
		OrderCreationTime:        order.Time,
		QuoteAssetTransacted:     order.CummulativeQuoteQty,
		LastQuoteAssetTransacted: trade.QuoteQty,
		QuoteOrderQuantity:       order.OrigQuoteOrderQty,
	}
}
