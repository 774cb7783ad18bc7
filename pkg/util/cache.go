package util

import (
	"container/list"
	"sync"
)

type (
	// Cache is a size-bounded, least-recently-used cache whose values are
	// built on first use
	Cache[K comparable, V any] struct {
		entries map[K]*list.Element
		order   *list.List
		maxSize int
		mu      sync.Mutex
	}

	// Constructor builds the value for a missing cache key
	Constructor[V any] func() (V, error)

	cacheEntry[K comparable, V any] struct {
		key   K
		value V
	}
)

// NewCache creates a cache holding at most maxSize values
func NewCache[K comparable, V any](maxSize int) *Cache[K, V] {
	return &Cache[K, V]{
		entries: map[K]*list.Element{},
		order:   list.New(),
		maxSize: max(maxSize, 1),
	}
}

// Get returns the cached value for key, calling create when it is
// missing. Failed constructions are not cached
func (c *Cache[K, V]) Get(key K, create Constructor[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	value, err := create()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry[K, V]).value, nil
	}
	c.entries[key] = c.order.PushFront(&cacheEntry[K, V]{
		key: key, value: value,
	})
	if c.order.Len() > c.maxSize {
		back := c.order.Back()
		c.order.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry[K, V]).key)
	}
	return value, nil
}

// Len returns the number of cached values
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry[K, V]).value, true
}
