// Package cache provides an in-memory, time-expiring cache with coalesced
// computation of missing entries.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// TTL caches values for a fixed duration measured from insertion. Reads do
// not extend an entry's lifetime. When full, the oldest entry is dropped.
//
// Concurrent GetOrCompute calls for the same missing key share one
// computation.
type TTL[V any] struct {
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock
	onLookup   func(hit bool)

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // oldest insertion at the front

	group singleflight.Group
}

type item[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	clock      clockwork.Clock
	maxEntries int
	onLookup   func(hit bool)
}

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMaxEntries bounds the number of entries. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithLookupHook registers a callback invoked once per GetOrCompute with
// whether the value was already cached.
func WithLookupHook(fn func(hit bool)) Option {
	return func(o *options) { o.onLookup = fn }
}

// New creates a cache whose entries live for ttl.
func New[V any](ttl time.Duration, opts ...Option) *TTL[V] {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[V]{
		ttl:        ttl,
		maxEntries: o.maxEntries,
		clock:      o.clock,
		onLookup:   o.onLookup,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the cached value for key if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

// GetOrCompute returns the cached value for key, or runs compute and caches
// its result. Errors are returned to every waiting caller and not cached.
//
// compute keeps ctx's values but not its cancellation. ctx only bounds how
// long this caller waits.
func (c *TTL[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		c.lookup(true)
		return v, nil
	}
	c.lookup(false)

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A previous flight may have filled the entry between our miss and
		// this call starting.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(shared)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Set stores value under key, replacing any existing entry and restarting
// its lifetime.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}

	now := c.clock.Now()
	c.entries[key] = c.order.PushBack(&item[V]{key: key, value: value, storedAt: now})

	c.purgeExpiredLocked(now)
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.removeLocked(c.order.Front())
	}
}

// Len returns the number of unexpired entries.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked(c.clock.Now())
	return len(c.entries)
}

func (c *TTL[V]) getLocked(key string) (V, bool) {
	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	it := el.Value.(*item[V]) //nolint:forcetypeassert // list holds only *item[V]
	if c.expired(it, c.clock.Now()) {
		c.removeLocked(el)
		return zero, false
	}
	return it.value, true
}

// purgeExpiredLocked drops expired entries. Entries share one TTL, so the
// expired ones are always at the front of the insertion order.
func (c *TTL[V]) purgeExpiredLocked(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if !c.expired(el.Value.(*item[V]), now) { //nolint:forcetypeassert // list holds only *item[V]
			return
		}
		c.removeLocked(el)
	}
}

func (c *TTL[V]) removeLocked(el *list.Element) {
	it := c.order.Remove(el).(*item[V]) //nolint:forcetypeassert // list holds only *item[V]
	delete(c.entries, it.key)
}

func (c *TTL[V]) expired(it *item[V], now time.Time) bool {
	return !now.Before(it.storedAt.Add(c.ttl))
}

func (c *TTL[V]) lookup(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}
