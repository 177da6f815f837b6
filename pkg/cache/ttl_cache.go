package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultTTLCacheSize bounds a TTLCache created without an explicit size.
const DefaultTTLCacheSize = 256

// TTLCache is a bounded in-memory cache with a shared expiry, used for store discovery lookups that
// change rarely (measurement names, tag values, field keys). The least recently used entry is
// evicted once size is reached.
type TTLCache struct {
	lru *expirable.LRU[string, []string]
}

// NewTTLCache creates an empty cache holding at most size entries for ttl each. A non-positive size
// selects DefaultTTLCacheSize; a non-positive ttl never expires entries.
func NewTTLCache(size int, ttl time.Duration) *TTLCache {
	if size <= 0 {
		size = DefaultTTLCacheSize
	}
	return &TTLCache{lru: expirable.NewLRU[string, []string](size, nil, ttl)}
}

// Get retrieves a cached list if present and not expired.
func (c *TTLCache) Get(key string) ([]string, bool) {
	value, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return append([]string(nil), value...), true
}

// Set stores a copy of value.
func (c *TTLCache) Set(key string, value []string) {
	c.lru.Add(key, append([]string(nil), value...))
}

// Delete removes an entry.
func (c *TTLCache) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of entries held.
func (c *TTLCache) Len() int {
	return c.lru.Len()
}
