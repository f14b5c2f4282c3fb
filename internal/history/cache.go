// Package history supplies candle series to chart slots: a time-bounded
// in-memory cache keyed by (market, timeframe, limit), an optional shared
// second tier, and a loader that coalesces concurrent fetches.
package history

import (
	"fmt"
	"sync"
	"time"

	"charting-terminalv1/internal/model"
)

// Key identifies one cached series.
type Key struct {
	MarketID  string
	Timeframe model.Timeframe
	Limit     int
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.MarketID, k.Timeframe, k.Limit)
}

type entry struct {
	candles   []model.Candle
	fetchedAt time.Time
}

// Cache memoizes fetched series. Entries are never purged; a stale entry is
// simply not returned. Cardinality is bounded by the markets viewed in one
// session.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry
	now     func() time.Time
}

// NewCache creates an empty cache using the wall clock.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]entry), now: time.Now}
}

// WithClock replaces the clock, for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the series for key if it was stored no more than maxAge ago.
// The returned slice is a copy.
func (c *Cache) Get(key Key, maxAge time.Duration) ([]model.Candle, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) > maxAge {
		return nil, false
	}
	out := make([]model.Candle, len(e.candles))
	copy(out, e.candles)
	return out, true
}

// Set stores candles under key unconditionally, stamping the current time.
func (c *Cache) Set(key Key, candles []model.Candle) {
	cp := make([]model.Candle, len(candles))
	copy(cp, candles)
	c.mu.Lock()
	c.entries[key] = entry{candles: cp, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
