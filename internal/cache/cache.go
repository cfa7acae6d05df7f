// Package cache provides a process-lifetime get-or-compute cache.
//
// Concurrent first lookups for the same key are coalesced through
// singleflight so the computation runs once and every caller sees the
// same stored value.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache stores computed values by string key. Entries never expire;
// callers own the cache lifetime and scope it to a process or a run.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	group   singleflight.Group
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[string]V)}
}

// Get returns the cached value for key, if present.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores a value unconditionally.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Len reports the number of stored entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. Concurrent callers for the same key share one computation.
// Failed computations are not stored.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, computed)
		return computed, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
