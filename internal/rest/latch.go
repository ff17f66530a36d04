package rest

import (
	"sync"
	"time"
)

// ResetAfter is the minimum time a tripped latch stays set before an
// explicit reset may clear it.
const ResetAfter = 30 * time.Second

// Latch is the process-wide rate-limit flag. It trips when any venue call
// observes upstream throttling and clears only through Reset.
type Latch struct {
	mu        sync.Mutex
	trippedAt time.Time
	clock     func() time.Time
}

// NewLatch builds an untripped latch.
func NewLatch() *Latch {
	return &Latch{clock: time.Now}
}

// NewLatchWithClock builds a latch with an injected clock for tests.
func NewLatchWithClock(clock func() time.Time) *Latch {
	if clock == nil {
		clock = time.Now
	}
	return &Latch{clock: clock}
}

// Trip marks the latch; repeated trips refresh the trip time.
func (l *Latch) Trip() {
	l.mu.Lock()
	l.trippedAt = l.clock()
	l.mu.Unlock()
}

// Active reports whether the latch is currently set.
func (l *Latch) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.trippedAt.IsZero()
}

// Reset clears the latch when at least ResetAfter has elapsed since the
// trip. Returns true when the latch is clear afterwards.
func (l *Latch) Reset() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.trippedAt.IsZero() {
		return true
	}
	if l.clock().Sub(l.trippedAt) < ResetAfter {
		return false
	}
	l.trippedAt = time.Time{}
	return true
}
