package walking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// keyDecimals is about one metre of precision
const keyDecimals = 5

type cacheKey struct {
	from, to utils.Coordinate
}

type cacheEntry struct {
	leg    Leg
	noPath bool
}

// Cached memoizes an estimator. Successful walks and ErrNoPath answers are
// stored; operational errors are not, so a later call may succeed.
type Cached struct {
	inner  Estimator
	walks  sync.Map
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps an estimator with a concurrency-safe memo table
func NewCached(inner Estimator) *Cached {
	return &Cached{inner: inner}
}

func (c *Cached) Walk(ctx context.Context, from, to utils.Coordinate) (Leg, error) {
	key := cacheKey{from: from.Rounded(keyDecimals), to: to.Rounded(keyDecimals)}
	if v, ok := c.walks.Load(key); ok {
		c.hits.Add(1)
		return v.(cacheEntry).result()
	}
	c.misses.Add(1)
	leg, err := c.inner.Walk(ctx, from, to)
	switch {
	case err == nil:
		v, _ := c.walks.LoadOrStore(key, cacheEntry{leg: leg})
		return v.(cacheEntry).result()
	case errors.Is(err, ErrNoPath):
		c.walks.LoadOrStore(key, cacheEntry{noPath: true})
	}
	return Leg{}, err
}

// Stats returns the number of cache hits and misses so far
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (e cacheEntry) result() (Leg, error) {
	if e.noPath {
		return Leg{}, ErrNoPath
	}
	return e.leg, nil
}
