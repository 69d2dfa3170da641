// Package cache is the in-process reference data cache. Entries expire after
// their TTL; expired entries read as misses and are removed by a periodic
// sweep.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"findtrades/shared/observability"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSweepInterval is used when no interval is configured.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultLoadTimeout bounds a shared load in GetOrLoad.
	DefaultLoadTimeout = 30 * time.Second
)

type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
}

// expired reports whether the entry outlived its TTL. A non-positive TTL
// never expires.
func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) > e.ttl
}

// Cache is a TTL key/value store safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	now           func() time.Time
	sweepInterval time.Duration
	loadTimeout   time.Duration
	loads         singleflight.Group

	logger  observability.Logger
	metrics observability.Metrics

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSweepInterval sets how often Start sweeps expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithLoadTimeout bounds each shared load started by GetOrLoad.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// New creates an empty cache.
func New(provider observability.Provider, opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]entry),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		loadTimeout:   DefaultLoadTimeout,
		logger:        provider.Logger("cache"),
		metrics:       provider.Metrics("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.now()) {
		c.metrics.RecordSuccess("cache_miss")
		return nil, false
	}
	c.metrics.RecordSuccess("cache_hit")
	return e.value, true
}

// Set stores value under key for ttl.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, insertedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Invalidate removes key and reports whether it was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	return ok
}

// InvalidatePrefix removes every key starting with prefix and returns how
// many were removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.RecordResultSize("cache_evictions", removed)
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start runs the periodic sweep until ctx is done or Stop is called.
// Calling Start on a running cache is a no-op.
func (c *Cache) Start(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go c.sweepLoop(ctx, c.done)

	c.logger.Debug(ctx, "Cache sweeper started", observability.Fields{
		"interval": c.sweepInterval.String(),
	})
}

// Stop ends the sweep goroutine and waits for it to exit.
func (c *Cache) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

func (c *Cache) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug(ctx, "Swept expired cache entries", observability.Fields{
					"removed": n,
				})
			}
		}
	}
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// storing its result for ttl. Concurrent misses on the same key share one
// load. Load errors are returned and nothing is cached.
//
// The shared load is detached from the cancellation of the caller that
// started it and bounded by the load timeout instead. A caller whose ctx
// ends stops waiting; the load carries on for the others.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	ch := c.loads.DoChan(key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		value, err := load(lctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, ttl)
		return value, nil
	})

	select {
	case <-ctx.Done():
		c.metrics.RecordError("cache_load", "caller_cancelled")
		return zero, fmt.Errorf("waiting for %s: %w", key, context.Cause(ctx))
	case res := <-ch:
		if res.Err != nil {
			c.metrics.RecordError("cache_load", "load_failed")
			return zero, fmt.Errorf("failed to load %s: %w", key, res.Err)
		}
		return res.Val.(T), nil
	}
}
