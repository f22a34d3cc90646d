// Package cache provides the in-process read cache that fronts the remote
// store. Entries expire lazily: an entry older than its ttl is treated as
// absent and evicted on the read that observes it. Nothing survives a
// process restart.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	writtenAt time.Time
	ttl       time.Duration
}

type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	now     func() time.Time
}

func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key, or false when the key is absent or its
// entry has outlived its ttl. Expired entries are evicted here.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.writtenAt) > e.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any prior entry and resetting its age.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, writtenAt: c.now(), ttl: ttl}
}

func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}
