package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// entry is a cached value together with the time it was stored.
type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a thread-safe in-memory TTL cache. An entry is served while it is
// younger than the TTL; older entries read as misses and are removed by Run.
type Cache[K comparable, V any] struct {
	name string
	mu   sync.RWMutex
	data map[K]*entry[V]
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Cache with the given TTL. name only appears in log lines.
func New[K comparable, V any](name string, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		name: name,
		data: make(map[K]*entry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the clock used to stamp and age entries.
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache[K, V]) TTL() time.Duration { return c.ttl }

// Put stores or replaces the value for key.
// Callers must not modify v after calling Put.
func (c *Cache[K, V]) Put(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = &entry[V]{value: v, storedAt: c.now()}
}

// Get returns the value for key if it is present and fresh.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Len returns the number of entries currently held, including stale ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear drops every entry and returns how many were removed.
func (c *Cache[K, V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.data)
	c.data = make(map[K]*entry[V])
	return n
}

// Evict removes entries whose age is at least the TTL at now.
// It returns the number of entries removed.
func (c *Cache[K, V]) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.ttl)
	removed := 0
	for k, e := range c.data {
		if !e.storedAt.After(cutoff) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL (minimum
// 1 second) and blocks until ctx is cancelled.
func (c *Cache[K, V]) Run(ctx context.Context) {
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
				slog.Debug("cache: evicted stale entries", "cache", c.name, "count", n)
			}
		}
	}
}
