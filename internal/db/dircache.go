package db

import (
	"container/list"
	"sync"
)

const dirCacheSize = 4096

// lru is a fixed-size least-recently-used map.
type lru[K comparable, V any] struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[K]*list.Element
}

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

func newLRU[K comparable, V any](max int) *lru[K, V] {
	return &lru[K, V]{
		max:   max,
		order: list.New(),
		items: make(map[K]*list.Element),
	}
}

func (c *lru[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(lruItem[K, V]).value, true
}

func (c *lru[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value = lruItem[K, V]{key: key, value: value}
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(lruItem[K, V]{key: key, value: value})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(lruItem[K, V]).key)
	}
}

func (c *lru[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// dirCache maps directory paths to row ids.
type dirCache = lru[string, int64]

func newDirCache(max int) *dirCache {
	return newLRU[string, int64](max)
}
