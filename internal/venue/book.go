package venue

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/internal/schema"
)

// Book keeps both sides of a depth book keyed by decimal price. Venue
// reconstructors layer their native delta semantics on top.
type Book struct {
	mu           sync.Mutex
	bids         map[string]decimal.Decimal
	asks         map[string]decimal.Decimal
	lastUpdateID int64
}

// NewBook builds an empty book.
func NewBook() *Book {
	return &Book{
		bids: make(map[string]decimal.Decimal),
		asks: make(map[string]decimal.Decimal),
	}
}

// Reset drops both sides.
func (b *Book) Reset() {
	b.mu.Lock()
	b.bids = make(map[string]decimal.Decimal)
	b.asks = make(map[string]decimal.Decimal)
	b.mu.Unlock()
}

// SetBid upserts a bid level; a non-positive qty removes it.
func (b *Book) SetBid(price, qty decimal.Decimal) {
	b.set(b.bids, price, qty)
}

// SetAsk upserts an ask level; a non-positive qty removes it.
func (b *Book) SetAsk(price, qty decimal.Decimal) {
	b.set(b.asks, price, qty)
}

func (b *Book) set(side map[string]decimal.Decimal, price, qty decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := price.String()
	if qty.Sign() <= 0 {
		delete(side, key)
		return
	}
	side[key] = qty
}

// RemoveBid deletes a bid level.
func (b *Book) RemoveBid(price decimal.Decimal) {
	b.mu.Lock()
	delete(b.bids, price.String())
	b.mu.Unlock()
}

// RemoveAsk deletes an ask level.
func (b *Book) RemoveAsk(price decimal.Decimal) {
	b.mu.Lock()
	delete(b.asks, price.String())
	b.mu.Unlock()
}

// SetLastUpdateID records the venue's update sequence marker.
func (b *Book) SetLastUpdateID(id int64) {
	b.mu.Lock()
	b.lastUpdateID = id
	b.mu.Unlock()
}

// Top returns up to n levels per side, bids descending and asks ascending.
func (b *Book) Top(n int) schema.OrderBook {
	b.mu.Lock()
	defer b.mu.Unlock()
	return schema.OrderBook{
		LastUpdateID: b.lastUpdateID,
		Bids:         sideLevels(b.bids, n, true),
		Asks:         sideLevels(b.asks, n, false),
	}
}

func sideLevels(side map[string]decimal.Decimal, n int, descending bool) []schema.PriceLevel {
	type level struct {
		price decimal.Decimal
		qty   decimal.Decimal
	}
	levels := make([]level, 0, len(side))
	for price, qty := range side {
		p, err := decimal.NewFromString(price)
		if err != nil {
			continue
		}
		levels = append(levels, level{price: p, qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].price.GreaterThan(levels[j].price)
		}
		return levels[i].price.LessThan(levels[j].price)
	})
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	out := make([]schema.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, schema.PriceLevel{l.price.String(), l.qty.String()})
	}
	return out
}
