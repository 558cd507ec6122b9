// Package cache provides an in-memory TTL cache shared by the upstream API
// adapters.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store is the cache behaviour the adapters depend on.
type Store[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
}

// TimedCache is a thread-safe LRU cache whose entries expire ttl after they
// were last written. A non-positive maxEntries disables the size bound.
type TimedCache[K comparable, V any] struct {
	clock      clockwork.Clock
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[K]*entry[K, V]
	head    *entry[K, V] // most recently used
	tail    *entry[K, V] // least recently used
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	prev      *entry[K, V]
	next      *entry[K, V]
}

// New creates a TimedCache. A nil clock uses real time.
func New[K comparable, V any](ttl time.Duration, maxEntries int, clock clockwork.Clock) *TimedCache[K, V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TimedCache[K, V]{
		clock:      clock,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[K]*entry[K, V]),
	}
}

// Get returns the value for key if present and not expired.
func (c *TimedCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.delete(e)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

// Set stores value under key, resetting its expiry.
func (c *TimedCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry[K, V]{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.delete(c.tail)
	}
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *TimedCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TimedCache[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *TimedCache[K, V]) addToFront(e *entry[K, V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *TimedCache[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *TimedCache[K, V]) delete(e *entry[K, V]) {
	if e == nil {
		return
	}
	delete(c.entries, e.key)
	c.unlink(e)
}
