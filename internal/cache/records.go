// Package cache provides an in-memory LRU cache for decoded record
// payloads. Records are immutable once stored, so cached entries never go
// stale; the only concern is bounding memory.
package cache

import (
	"container/list"
	"sync"
)

// RecordCache is a fixed-capacity LRU cache keyed by record hash.
type RecordCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element

	hits   uint64
	misses uint64
}

type entry struct {
	hash  string
	value any
}

// NewRecordCache creates a cache holding at most capacity records.
func NewRecordCache(capacity int) *RecordCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &RecordCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached record for a hash, if present.
func (c *RecordCache) Get(hash string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[hash]
	if !ok {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return elem.Value.(*entry).value, true
}

// Put stores a record under its hash, evicting the least recently used
// entry when at capacity. Storing an existing hash refreshes its position.
func (c *RecordCache) Put(hash string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[hash]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry).value = value
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).hash)
		}
	}
	c.entries[hash] = c.order.PushFront(&entry{hash: hash, value: value})
}

// Len returns the number of cached records.
func (c *RecordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *RecordCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
