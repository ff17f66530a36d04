package venue

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/internal/schema"
)

// ActiveOrderGrace is how long an order absent from the open set stays
// tracked to absorb late stream frames.
const ActiveOrderGrace = 30 * time.Minute

// activeOrder is the per-order fill bookkeeping.
type activeOrder struct {
	origQty     decimal.Decimal
	executedQty decimal.Decimal
	filledTime  time.Time
	lastEvent   *schema.ExecutionReport
	cancelled   bool
}

// Tracker owns the session's active-order table. The venue client and the
// private stream handler both mutate it; a single mutex serializes access.
type Tracker struct {
	mu     sync.Mutex
	orders map[int64]*activeOrder
	clock  func() time.Time
}

// NewTracker builds an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{orders: make(map[int64]*activeOrder), clock: time.Now}
}

// NewTrackerWithClock injects a clock for tests.
func NewTrackerWithClock(clock func() time.Time) *Tracker {
	t := NewTracker()
	if clock != nil {
		t.clock = clock
	}
	return t
}

// Add registers an order at placement time. Re-adding keeps existing fills.
func (t *Tracker) Add(orderID int64, origQty decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.orders[orderID]; exists {
		return
	}
	t.orders[orderID] = &activeOrder{origQty: origQty}
}

// Known reports whether the order is tracked.
func (t *Tracker) Known(orderID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.orders[orderID]
	return ok
}

// ApplyTrade accumulates one fill. When the cumulative quantity reaches
// origQty the report is latched as the order's terminal event and filled is
// true; executedQty never exceeds origQty.
func (t *Tracker) ApplyTrade(orderID int64, qty decimal.Decimal, report *schema.ExecutionReport) (executed decimal.Decimal, filled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.orders[orderID]
	if !ok {
		return decimal.Zero, false
	}
	next := entry.executedQty.Add(qty)
	if next.GreaterThan(entry.origQty) {
		next = entry.origQty
	}
	entry.executedQty = next
	if next.GreaterThanOrEqual(entry.origQty) && entry.origQty.Sign() > 0 {
		entry.lastEvent = report
		return next, true
	}
	return next, false
}

// LastEvent returns the latched terminal report, if any.
func (t *Tracker) LastEvent(orderID int64) *schema.ExecutionReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.orders[orderID]; ok {
		return entry.lastEvent
	}
	return nil
}

// MarkCancelled flags the order as cancelled by the venue.
func (t *Tracker) MarkCancelled(orderID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.orders[orderID]; ok {
		entry.cancelled = true
	}
}

// Cancelled reports the cancelled flag.
func (t *Tracker) Cancelled(orderID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.orders[orderID]
	return ok && entry.cancelled
}

// Clear garbage-collects the table against the current open-order ids:
// entries with an expired grace deadline are dropped, and entries no longer
// open receive a grace deadline to absorb late frames.
func (t *Tracker) Clear(openIDs map[int64]struct{}) {
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, entry := range t.orders {
		if !entry.filledTime.IsZero() && entry.filledTime.Before(now) {
			delete(t.orders, id)
			continue
		}
		if _, open := openIDs[id]; !open && entry.filledTime.IsZero() {
			entry.filledTime = now.Add(ActiveOrderGrace)
		}
	}
}

// Len reports the tracked order count.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}

// Buffer holds raw trade events that arrived before their parent order was
// acknowledged, keyed by order id.
type Buffer struct {
	mu     sync.Mutex
	frames map[int64][]schema.ExecutionReport
}

// NewBuffer builds an empty race buffer.
func NewBuffer() *Buffer {
	return &Buffer{frames: make(map[int64][]schema.ExecutionReport)}
}

// Add buffers one event for an unknown order.
func (b *Buffer) Add(orderID int64, report schema.ExecutionReport) {
	b.mu.Lock()
	b.frames[orderID] = append(b.frames[orderID], report)
	b.mu.Unlock()
}

// Drain removes and returns the buffered events for orderID in arrival
// order; the buffer slot is empty afterwards.
func (b *Buffer) Drain(orderID int64) []schema.ExecutionReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	frames := b.frames[orderID]
	delete(b.frames, orderID)
	return frames
}

// Len reports the number of buffered order slots.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}
