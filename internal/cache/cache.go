// Package cache provides a bounded, time-limited, in-memory read-through cache.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/debsources/debsources/internal/metrics"
)

// LoadTimeout bounds a shared load, which no single caller can cancel.
const LoadTimeout = 30 * time.Second

// Loader fetches the value for a key on a cache miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	value      V
	expires    time.Time
	lastAccess time.Time
}

// Cache memoizes loader results for at most ttl. Errors are never cached.
// Concurrent misses on the same key share a single load.
// The cache is safe for concurrent use.
type Cache[V any] struct {
	name       string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[V]
	group   singleflight.Group
}

// New creates a cache. A ttl <= 0 disables caching: every Get calls the loader.
// maxEntries <= 0 means unbounded.
func New[V any](name string, ttl time.Duration, maxEntries int) *Cache[V] {
	return &Cache[V]{
		name:       name,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*entry[V]),
	}
}

// Get returns the cached value for key, loading it on a miss or after expiry.
func (c *Cache[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	if c.ttl <= 0 {
		return load(ctx, key)
	}

	if v, ok := c.lookup(key); ok {
		metrics.RecordCacheAccess(c.name, true)
		return v, nil
	}
	metrics.RecordCacheAccess(c.name, false)

	// The shared load must outlive any single caller, so it runs detached
	// from ctx cancellation and each caller waits on its own ctx.
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		v, err := load(lctx, key)
		if err != nil {
			return v, err
		}
		c.store(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	now := c.now()
	if !now.Before(e.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

func (c *Cache[V]) store(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists {
		for c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
			if !c.evictOldest() {
				break
			}
		}
	}
	c.entries[key] = &entry[V]{value: v, expires: now.Add(c.ttl), lastAccess: now}
}

// evictOldest removes the least recently accessed entry.
// Must be called with lock held.
func (c *Cache[V]) evictOldest() bool {
	var oldestKey string
	var oldest *entry[V]
	for k, e := range c.entries {
		if oldest == nil || e.lastAccess.Before(oldest.lastAccess) {
			oldest = e
			oldestKey = k
		}
	}
	if oldest == nil {
		return false
	}
	delete(c.entries, oldestKey)
	return true
}

// Invalidate drops a single key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry and returns how many were removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*entry[V])
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Name returns the cache name used in metrics.
func (c *Cache[V]) Name() string { return c.name }
