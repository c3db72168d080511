package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sheetpulse/sheetpulse/internal/sheets"
	"github.com/sheetpulse/sheetpulse/internal/table"
)

// Entry is a fetched table together with the time it was fetched.
type Entry struct {
	Table     table.Raw
	FetchedAt time.Time
}

// Cache is a thread-safe read cache of raw tables keyed by sheet identifier.
// Entries older than the TTL are never returned; a background goroutine (Run)
// periodically drops them.
type Cache struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Put stores or replaces the table for sheetID.
// Callers must not modify t after calling Put.
func (c *Cache) Put(sheetID string, t table.Raw) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[sheetID] = &Entry{Table: t, FetchedAt: c.now()}
}

// Get returns the table for sheetID if it was fetched within the TTL.
func (c *Cache) Get(sheetID string) (table.Raw, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[sheetID]
	if !ok || !e.FetchedAt.After(c.now().Add(-c.ttl)) {
		return nil, false
	}
	return e.Table, true
}

// Invalidate drops the entry for sheetID.
func (c *Cache) Invalidate(sheetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, sheetID)
}

// Count returns the total number of entries currently held, including stale ones.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Evict removes entries whose FetchedAt is older than now minus TTL.
// It returns the number of entries removed.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.ttl)
	removed := 0
	for id, e := range c.data {
		if !e.FetchedAt.After(cutoff) {
			delete(c.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL interval
// (minimum 1 second). Run blocks until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := c.Evict(now); n > 0 {
				slog.Debug("cache: evicted stale tables", "count", n)
			}
		}
	}
}

// Cached is a sheets.Source that serves recent tables from a Cache and falls
// through to the wrapped source on a miss.
type Cached struct {
	src   sheets.Source
	cache *Cache
}

// Wrap returns src fronted by c.
func Wrap(src sheets.Source, c *Cache) *Cached {
	return &Cached{src: src, cache: c}
}

// Fetch returns the cached table for sheetID or fetches it. Failed fetches and
// tables without a data row are not cached, so the next call retries.
func (s *Cached) Fetch(ctx context.Context, sheetID string) (table.Raw, error) {
	if t, ok := s.cache.Get(sheetID); ok {
		return t, nil
	}
	t, err := s.src.Fetch(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if len(t) > 1 {
		s.cache.Put(sheetID, t)
	}
	return t, nil
}
