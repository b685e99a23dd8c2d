// Package cache holds the bounded LRU+TTL caches that sit in front of the
// embedding provider, the document store and the answer generator.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Observer receives cache events, typically to export them as metrics.
type Observer interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	CacheEviction(cache string, reason string)
	CacheSize(cache string, size int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)              {}
func (nopObserver) CacheMiss(string)             {}
func (nopObserver) CacheEviction(string, string) {}
func (nopObserver) CacheSize(string, int)        {}

// Eviction reasons reported to the Observer.
const (
	ReasonCapacity    = "capacity"
	ReasonExpired     = "expired"
	ReasonInvalidated = "invalidated"
)

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	Name        string  `json:"name"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	TTLSeconds  float64 `json:"ttl_seconds"`
}

// Option configures an LRU.
type Option func(*options)

type options struct {
	now      func() time.Time
	observer Observer
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

type entry[V any] struct {
	key      string
	value    V
	sources  []string
	storedAt time.Time
	hitCount int
}

// LRU is a size-bounded, TTL-expiring map safe for concurrent use. Expired
// entries are dropped lazily when read and in bulk by PurgeExpired.
type LRU[V any] struct {
	name     string
	capacity int
	ttl      time.Duration
	now      func() time.Time
	observer Observer

	mu          sync.Mutex
	ll          *list.List
	items       map[string]*list.Element
	generation  uint64
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// NewLRU creates a cache holding at most capacity entries for at most ttl.
// A non-positive ttl disables expiry.
func NewLRU[V any](name string, capacity int, ttl time.Duration, opts ...Option) *LRU[V] {
	o := options{now: time.Now, observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		name:     name,
		capacity: capacity,
		ttl:      ttl,
		now:      o.now,
		observer: o.observer,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *LRU[V]) Name() string {
	return c.name
}

func (c *LRU[V]) expired(e *entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) > c.ttl
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		c.observer.CacheMiss(c.name)
		return zero, false
	}

	e := el.Value.(*entry[V])
	if c.expired(e, c.now()) {
		c.removeElement(el)
		c.expirations++
		c.misses++
		c.observer.CacheEviction(c.name, ReasonExpired)
		c.observer.CacheMiss(c.name)
		c.observer.CacheSize(c.name, c.ll.Len())
		return zero, false
	}

	c.ll.MoveToFront(el)
	e.hitCount++
	c.hits++
	c.observer.CacheHit(c.name)
	return e.value, true
}

// Put inserts or overwrites key. sources lists the source files the value was
// derived from so InvalidateBySource can find it. Overwriting merges the new
// sources into the existing ones.
func (c *LRU[V]) Put(key string, value V, sources ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.put(key, value, sources)
}

// Generation returns the invalidation generation. RemoveIf and Clear advance
// it.
func (c *LRU[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// PutIfGeneration stores value only if no invalidation happened since gen was
// read from Generation. It reports whether the value was stored.
func (c *LRU[V]) PutIfGeneration(key string, value V, gen uint64, sources ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	c.put(key, value, sources)
	return true
}

func (c *LRU[V]) put(key string, value V, sources []string) {
	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.sources = mergeSources(e.sources, sources)
		e.storedAt = now
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry[V]{key: key, value: value, sources: sources, storedAt: now})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
		c.observer.CacheEviction(c.name, ReasonCapacity)
	}
	c.observer.CacheSize(c.name, c.ll.Len())
}

// Delete removes key and reports whether it was present.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	c.observer.CacheSize(c.name, c.ll.Len())
	return true
}

// Clear drops every entry. Counters are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.generation++
	c.observer.CacheSize(c.name, 0)
}

// RemoveIf deletes every entry for which match returns true and returns the
// number removed. It advances the generation even when nothing matched, so a
// writer holding an older generation cannot store a value read before the
// removal.
func (c *LRU[V]) RemoveIf(match func(value V, sources []string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	removed := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[V])
		if match(e.value, e.sources) {
			c.removeElement(el)
			c.observer.CacheEviction(c.name, ReasonInvalidated)
			removed++
		}
		el = next
	}
	if removed > 0 {
		c.observer.CacheSize(c.name, c.ll.Len())
	}
	return removed
}

// PurgeExpired removes all entries older than the TTL.
func (c *LRU[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	now := c.now()
	removed := 0
	// reads reorder the list without touching storedAt, so scan it all
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[V]), now) {
			c.removeElement(el)
			c.expirations++
			c.observer.CacheEviction(c.name, ReasonExpired)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		c.observer.CacheSize(c.name, c.ll.Len())
	}
	return removed
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Name:        c.name,
		Size:        c.ll.Len(),
		MaxSize:     c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     rate,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		TTLSeconds:  c.ttl.Seconds(),
	}
}

func (c *LRU[V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}

func mergeSources(existing, added []string) []string {
	out := existing
	for _, s := range added {
		if !containsSource(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func containsSource(sources []string, sourceFile string) bool {
	if sourceFile == "" {
		return false
	}
	for _, s := range sources {
		if s == sourceFile {
			return true
		}
	}
	return false
}
