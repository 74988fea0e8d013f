// Package cache is a small in-memory TTL cache.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe map whose entries expire after a TTL. Expired
// entries are dropped lazily on read and by Purge.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]item[V]
	gens  map[string]uint64
	epoch uint64
	ttl   time.Duration
	now   func() time.Time

	hits   uint64
	misses uint64
}

type Option[V any] func(*Cache[V])

// WithClock replaces time.Now, for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]item[V]),
		gens:  make(map[string]uint64),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if ok && c.now().Before(it.expiresAt) {
		c.hits++
		return it.value, true
	}
	if ok {
		delete(c.items, key)
	}
	c.misses++
	var zero V
	return zero, false
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.gens[key]++
}

// Invalidate drops every key starting with prefix. An empty prefix clears
// the cache.
func (c *Cache[V]) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	c.epoch++
}

// Purge removes expired entries and reports how many went.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, key)
			n++
		}
	}
	if len(c.gens) > 0 {
		c.gens = make(map[string]uint64)
		c.epoch++
	}
	return n
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached. A result is dropped if the key was deleted or
// invalidated while load ran.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	c.mu.RLock()
	gen, epoch := c.gens[key], c.epoch
	c.mu.RUnlock()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] == gen && c.epoch == epoch {
		c.items[key] = item[V]{value: v, expiresAt: c.now().Add(c.ttl)}
	}
	return v, nil
}

type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Size: len(c.items), Hits: c.hits, Misses: c.misses}
}
