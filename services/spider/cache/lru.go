// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the bounded LRU stores backing per-file
// dependency and symbol-graph results.
//
// Ownership Model:
//
//	Caches are owned by the orchestrating facade and passed by
//	reference to its sub-services. Dependency and symbol results live
//	in two independently sized instances so symbol-graph memory
//	pressure cannot starve dependency-lookup caching.
package cache

import (
	"container/list"
	"sync"
)

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Sets      int64 `json:"sets"`
}

// HitRate returns hits/(hits+misses), or 0 when the cache has never
// been read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[V any] struct {
	key   string
	value V
}

// Cache is a bounded key-value store with least-recently-used
// eviction. Recency is by access, not insertion: Get and Has promote
// the entry, so a hot entry survives a cold one inserted later.
//
// Thread Safety:
//
//	Safe for concurrent use. All operations take an internal mutex.
type Cache[V any] struct {
	mu        sync.Mutex
	maxSize   int
	order     *list.List
	items     map[string]*list.Element
	hits      int64
	misses    int64
	evictions int64
	sets      int64
}

// New creates a Cache holding at most maxSize entries. maxSize <= 0
// means unbounded.
func New[V any](maxSize int) *Cache[V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Cache[V]{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get returns the value for key and promotes it to most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*entry[V]).value, true
}

// Set inserts or replaces the value for key. When the cache is at
// capacity the least-recently-used entry is evicted before insertion.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++
	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[V]).value = value
		c.order.MoveToFront(elem)
		return
	}

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[V]).key)
			c.evictions++
		}
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
}

// Delete removes key. Returns true if the key was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	return true
}

// Has reports whether key is present, promoting it on hit.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if ok {
		c.order.MoveToFront(elem)
	}
	return ok
}

// Clear drops every entry. Counters other than size are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the resident keys in most-recently-used-first order.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[V]).key)
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:      len(c.items),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Sets:      c.sets,
	}
}
