// Package marketdata holds the shared best bid/ask cache.
package marketdata

import (
	"sync"

	"exchange_connector/internal/model"

	"github.com/shopspring/decimal"
)

// Cache maps symbol to its latest quote. It is written by the stream
// goroutine and by REST snapshot calls, and read from any goroutine;
// both fields of a quote are always replaced as a unit, so a reader can
// never observe a stale bid next to a fresh ask. Entries are never evicted.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

// NewCache creates an empty quote cache
func NewCache() *Cache {
	return &Cache{
		quotes: make(map[string]model.Quote),
	}
}

// Get returns the current quote for symbol, if one exists
func (c *Cache) Get(symbol string) (model.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	return q, ok
}

// Upsert inserts or replaces the quote for symbol as a single unit
func (c *Cache) Upsert(symbol string, bid, ask decimal.Decimal) {
	c.mu.Lock()
	c.quotes[symbol] = model.Quote{Bid: bid, Ask: ask}
	c.mu.Unlock()
}

// Len returns the number of symbols with a cached quote
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}

// Symbols returns the symbols currently present in the cache
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.quotes))
	for s := range c.quotes {
		out = append(out, s)
	}
	return out
}
