package bus

import (
	"context"
	"sync"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/schema"
)

// Default queue capacities per subscription kind.
const (
	QueueCap          = 50
	OrderBookQueueCap = 500
)

// StopSignal is the sentinel pushed into every subscription queue of a
// trade id when its streams are being torn down.
type StopSignal struct {
	TradeID string
}

// EventKey satisfies schema.Event; sentinels are never routed by key.
func (s StopSignal) EventKey() string { return "stop:" + s.TradeID }

// Queue is a bounded event queue with a non-blocking producer side.
type Queue struct {
	ch chan schema.Event

	mu     sync.Mutex
	closed bool
}

// NewQueue builds a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = QueueCap
	}
	return &Queue{ch: make(chan schema.Event, capacity)}
}

// Put offers evt without blocking. It returns false when the queue is full;
// the caller treats that as fatal for the subscription's trade id. Puts into
// a closed queue drop silently and report success.
func (q *Queue) Put(evt schema.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return true
	}
	select {
	case q.ch <- evt:
		return true
	default:
		return false
	}
}

// Get waits for the next event.
func (q *Queue) Get(ctx context.Context) (schema.Event, error) {
	select {
	case <-ctx.Done():
		return nil, errs.New("", errs.CodeNetwork, errs.WithCause(ctx.Err()))
	case evt, ok := <-q.ch:
		if !ok {
			return nil, errs.New("", errs.CodeStreamTerminal, errs.WithMessage("queue closed"))
		}
		return evt, nil
	}
}

// Len reports the number of queued events.
func (q *Queue) Len() int { return len(q.ch) }

// Close marks the queue closed; subsequent puts drop.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
