// Package bus routes decoded stream events to per-subscription bounded
// queues. Handlers must never block the decode loop; they push into a
// bounded queue and report overflow.
package bus

import (
	"sync"

	"github.com/exwrap/martin/internal/schema"
)

// Handler consumes one routed event. It returns false on queue overflow,
// which the caller escalates into a teardown of the trade id's streams.
type Handler func(evt schema.Event) bool

type registration struct {
	id      string
	venue   schema.Venue
	tradeID string
	handler Handler
}

// Bus is the in-process event fabric: (event key → handler set) plus the
// registered-stream bookkeeping StartStream readiness checks rely on.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[string]*registration            // eventKey -> handlerID
	streams  map[schema.Venue]map[string]map[string]struct{} // venue -> tradeID -> eventKey
}

// New builds an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string]map[string]*registration),
		streams:  make(map[schema.Venue]map[string]map[string]struct{}),
	}
}

// RegisterEvent adds a market-stream handler for eventKey, scoped to
// (venue, tradeID). Registering the same handler id twice is a no-op.
func (b *Bus) RegisterEvent(id string, handler Handler, eventKey string, venue schema.Venue, tradeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addHandlerLocked(id, handler, eventKey, venue, tradeID)

	byTrade, ok := b.streams[venue]
	if !ok {
		byTrade = make(map[string]map[string]struct{})
		b.streams[venue] = byTrade
	}
	keys, ok := byTrade[tradeID]
	if !ok {
		keys = make(map[string]struct{})
		byTrade[tradeID] = keys
	}
	keys[eventKey] = struct{}{}
}

// RegisterUserEvent adds a user-stream handler for eventKey. The tradeID is
// kept for teardown scoping only; user keys are not counted as market
// streams.
func (b *Bus) RegisterUserEvent(id string, handler Handler, eventKey string, tradeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addHandlerLocked(id, handler, eventKey, "", tradeID)
}

func (b *Bus) addHandlerLocked(id string, handler Handler, eventKey string, venue schema.Venue, tradeID string) {
	set, ok := b.handlers[eventKey]
	if !ok {
		set = make(map[string]*registration)
		b.handlers[eventKey] = set
	}
	if _, exists := set[id]; exists {
		return
	}
	set[id] = &registration{id: id, venue: venue, tradeID: tradeID, handler: handler}
}

// Fire routes evt to every handler registered for its key, sequentially.
// It returns the trade ids whose handler reported overflow.
func (b *Bus) Fire(evt schema.Event) []string {
	key := evt.EventKey()
	b.mu.RLock()
	regs := make([]*registration, 0, len(b.handlers[key]))
	for _, reg := range b.handlers[key] {
		regs = append(regs, reg)
	}
	b.mu.RUnlock()

	var overflowed []string
	for _, reg := range regs {
		if !reg.handler(evt) {
			overflowed = append(overflowed, reg.tradeID)
		}
	}
	return overflowed
}

// Unregister removes every stream key and handler scoped to
// (venue, tradeID), including the trade id's user-event handlers.
func (b *Bus) Unregister(venue schema.Venue, tradeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if byTrade, ok := b.streams[venue]; ok {
		delete(byTrade, tradeID)
		if len(byTrade) == 0 {
			delete(b.streams, venue)
		}
	}
	for key, set := range b.handlers {
		for id, reg := range set {
			if reg.tradeID != tradeID {
				continue
			}
			if reg.venue == venue || reg.venue == "" {
				delete(set, id)
			}
		}
		if len(set) == 0 {
			delete(b.handlers, key)
		}
	}
}

// MarketStreamCount reports how many market stream keys are registered for
// (venue, tradeID). StartStream busy-waits on this.
func (b *Bus) MarketStreamCount(venue schema.Venue, tradeID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams[venue][tradeID])
}

// StreamKeys returns the registered market event keys for (venue, tradeID).
func (b *Bus) StreamKeys(venue schema.Venue, tradeID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.streams[venue][tradeID]))
	for key := range b.streams[venue][tradeID] {
		keys = append(keys, key)
	}
	return keys
}

// HandlerCount reports the number of handlers registered for eventKey.
func (b *Bus) HandlerCount(eventKey string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventKey])
}
