// Package resultcache is a bounded TTL cache for query results, keyed by
// a normalized query fingerprint. Eviction is strictly insertion-order
// oldest-first; entries also expire individually by age, checked lazily
// on read.
package resultcache

import (
	"sync"
	"time"

	"github.com/google/btree"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 5 * time.Minute
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	seq        uint64
}

// orderKey orders entries by insertion sequence in the eviction tree.
type orderKey struct {
	seq uint64
	key string
}

type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*entry[V]
	order    *btree.BTreeG[orderKey]
	seq      uint64

	now func() time.Time
}

type Option[V any] func(*Cache[V])

// WithClock replaces the wall clock, for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

func New[V any](capacity int, ttl time.Duration, opts ...Option[V]) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry[V]),
		order: btree.NewG(2, func(a, b orderKey) bool {
			return a.seq < b.seq
		}),
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the live entry for key. An expired entry is removed and
// reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.order.Delete(orderKey{seq: e.seq, key: key})
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. Overwriting moves the entry to the back of
// the eviction order. When the cache grows past capacity exactly one
// entry, the oldest, is evicted.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.order.Delete(orderKey{seq: old.seq, key: key})
	}

	c.seq++
	c.entries[key] = &entry[V]{
		value:      value,
		insertedAt: c.now(),
		seq:        c.seq,
	}
	c.order.ReplaceOrInsert(orderKey{seq: c.seq, key: key})

	if len(c.entries) > c.capacity {
		if oldest, ok := c.order.DeleteMin(); ok {
			delete(c.entries, oldest.key)
		}
	}
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.order.Clear(false)
}
