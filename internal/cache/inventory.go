// Package cache holds resolved object references for a bounded time.
package cache

import (
	"container/list"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrNegativeSize = errors.New("cache inventory size cannot be negative")

// DefaultTTL applies when an Inventory is created with a zero TTL.
const DefaultTTL = 5 * time.Minute

type item[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Inventory is a TTL cache with an optional upper bound on entries. When
// full, the oldest inserted entry is evicted; Get never changes eviction
// order. Expired entries are removed on lookup.
type Inventory[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	items   map[string]*list.Element
	now     func() time.Time
}

// New returns an Inventory holding at most maxSize entries; zero means
// unbounded.
func New[V any](maxSize int, ttl time.Duration) (*Inventory[V], error) {
	if maxSize < 0 {
		return nil, ErrNegativeSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Inventory[V]{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}, nil
}

func (c *Inventory[V]) Add(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}

	if c.maxSize > 0 && c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		evicted := c.order.Remove(oldest).(*item[V])
		delete(c.items, evicted.key)
		slog.Debug("Cache full, evicting oldest entry", "key", evicted.key)
	}

	slog.Debug("Caching object", "key", key, "ttl", c.ttl)
	c.items[key] = c.order.PushBack(&item[V]{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Get returns the cached value if present and not expired.
func (c *Inventory[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	it := el.Value.(*item[V])
	if c.now().After(it.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		slog.Debug("Cached object expired", "key", key)
		return zero, false
	}
	return it.value, true
}

func (c *Inventory[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Len counts stored entries, including expired ones not yet looked up.
func (c *Inventory[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
