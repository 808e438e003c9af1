// Package cache provides a TTL result cache with in-flight request coalescing.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Stats is a snapshot of coalescer counters.
type Stats struct {
	Hits   int64 // served from a fresh entry
	Misses int64 // started or joined a computation
	Shared int64 // joined a computation started by another caller
	Len    int   // entries currently stored, fresh or expired
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

type options struct {
	now      func() time.Time
	onLookup func(hit bool)
}

// Option customises a Coalescer.
type Option func(*options)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLookupObserver calls fn once per GetOrCompute with whether a fresh entry served it.
func WithLookupObserver(fn func(hit bool)) Option {
	return func(o *options) {
		o.onLookup = fn
	}
}

// Coalescer runs at most one computation per key at a time and keeps successful
// results for ttl. Errors are returned to every waiter and never cached.
type Coalescer[T any] struct {
	group   singleflight.Group
	entries *lru.Cache[string, entry[T]]
	ttl     time.Duration
	now     func() time.Time

	onLookup func(hit bool)

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// NewCoalescer creates a coalescer holding at most size entries.
func NewCoalescer[T any](size int, ttl time.Duration, opts ...Option) (*Coalescer[T], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %s", ttl)
	}
	entries, err := lru.New[string, entry[T]](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Coalescer[T]{entries: entries, ttl: ttl, now: o.now, onLookup: o.onLookup}, nil
}

// Get returns the fresh value stored under key, if any.
func (c *Coalescer[T]) Get(key string) (T, bool) {
	e, ok := c.entries.Get(key)
	if !ok || !c.now().Before(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetOrCompute returns the fresh cached value for key, or joins/starts the computation.
//
// The computation runs on a context detached from the caller's cancellation, so a
// caller that gives up only stops waiting: remaining waiters still get the result.
// compute is expected to bound its own external calls with timeouts.
func (c *Coalescer[T]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		c.observe(true)
		return v, nil
	}
	c.misses.Add(1)
	c.observe(false)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A computation that finished between our lookup and DoChan already stored its result.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(detached)
		if err != nil {
			return v, err
		}
		c.entries.Add(key, entry[T]{value: v, expiresAt: c.now().Add(c.ttl)})
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Coalescer[T]) observe(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}

// Set stores value under key for the configured ttl, replacing any entry.
func (c *Coalescer[T]) Set(key string, value T) {
	c.entries.Add(key, entry[T]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Invalidate drops the entry stored under key.
func (c *Coalescer[T]) Invalidate(key string) {
	c.entries.Remove(key)
}

// Purge drops every stored entry. In-flight computations are unaffected.
func (c *Coalescer[T]) Purge() {
	c.entries.Purge()
}

// Stats returns the current counters.
func (c *Coalescer[T]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
		Len:    c.entries.Len(),
	}
}
