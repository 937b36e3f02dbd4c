package registry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Source provides a Registry to a resolution run.
type Source interface {
	Load(ctx context.Context) (*Registry, error)
}

// Cache keeps a fetched Registry for a fixed time-to-live. Concurrent loads
// of an expired cache share one fetch. A failed fetch is never cached.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	reg       *Registry
	fetchedAt time.Time
	group     singleflight.Group
}

// NewCache wraps source. A ttl of zero or less disables caching.
func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{source: source, ttl: ttl, now: time.Now}
}

// Load returns the cached Registry while it is fresh and fetches otherwise.
func (c *Cache) Load(ctx context.Context) (*Registry, error) {
	c.mu.RLock()
	reg, fetchedAt := c.reg, c.fetchedAt
	c.mu.RUnlock()
	if reg != nil && c.ttl > 0 && c.now().Sub(fetchedAt) < c.ttl {
		return reg, nil
	}

	v, err, _ := c.group.Do("registry", func() (interface{}, error) {
		reg, err := c.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.reg, c.fetchedAt = reg, c.now()
		c.mu.Unlock()
		return reg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Registry), nil
}

// Invalidate drops the cached Registry; the next Load fetches again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.reg = nil
	c.mu.Unlock()
}

// Static returns a Source that always yields reg. Batch callers use it to
// share one pre-fetched registry across many resolutions.
func Static(reg *Registry) Source {
	return staticSource{reg: reg}
}

type staticSource struct {
	reg *Registry
}

func (s staticSource) Load(context.Context) (*Registry, error) {
	return s.reg, nil
}
