package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// DefaultSize is the number of compiled classifiers kept in memory.
const DefaultSize = 100

// ComputeFunc produces the artifact for a key on a cache miss.
type ComputeFunc func() (models.Artifact, error)

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Computes  uint64
	Evictions uint64
	Len       int
}

// ResultCache is a bounded LRU of compiled artifacts. Concurrent misses on the same key share a
// single computation; callers for other keys are never blocked by it.
type ResultCache struct {
	entries *lru.Cache[string, models.Artifact]
	flights singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	computes  atomic.Uint64
	evictions atomic.Uint64
}

// NewResultCache creates a cache holding at most size artifacts. A non-positive size selects
// DefaultSize.
func NewResultCache(size int) (*ResultCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, models.Artifact](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &ResultCache{entries: entries}, nil
}

// GetOrCompute returns the artifact cached under key, marking it most recently used. On a miss it
// runs fn once for all concurrent callers of the same key and stores a successful result. Each
// caller waits only as long as its own ctx allows; a caller that gives up does not cancel the
// shared computation, and failed computations are never stored.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) (models.Artifact, bool, error) {
	if artifact, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return artifact, true, nil
	}
	c.misses.Add(1)

	ch := c.flights.DoChan(key, func() (any, error) {
		// A previous flight may have completed between the lookup above and joining this one.
		if artifact, ok := c.entries.Peek(key); ok {
			return artifact, nil
		}
		c.computes.Add(1)
		artifact, err := fn()
		if err != nil {
			return nil, err
		}
		if evicted := c.entries.Add(key, artifact); evicted {
			c.evictions.Add(1)
		}
		return artifact, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Artifact{}, false, utils.NewAppError("cache.GetOrCompute", "gave up waiting for training result", fmt.Errorf("%w: %v", utils.ErrTimeout, ctx.Err()))
		}
		return models.Artifact{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Artifact{}, false, res.Err
		}
		return res.Val.(models.Artifact), false, nil
	}
}

// Contains reports whether key is cached without touching its recency.
func (c *ResultCache) Contains(key string) bool {
	return c.entries.Contains(key)
}

// Keys returns cached keys from least to most recently used.
func (c *ResultCache) Keys() []string {
	return c.entries.Keys()
}

// Purge drops every cached artifact.
func (c *ResultCache) Purge() {
	c.entries.Purge()
}

// Stats returns counters since construction.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computes:  c.computes.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.entries.Len(),
	}
}
