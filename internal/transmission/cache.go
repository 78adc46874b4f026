package transmission

import (
	"container/list"
	"sync"
	"time"
)

// cacheItem pairs a cached response map with its insertion time and its position in
// the LRU eviction list.
type cacheItem struct {
	response map[string]string
	addedAt  time.Time
	elem     *list.Element
}

// Cache is a short-TTL, capacity-bounded query-name -> response-map memo that makes
// side-effecting requests (chiefly begin, which mints a new transmission id)
// idempotent across DNS resolver retransmissions of the identical query.
type Cache struct {
	ttl     time.Duration
	maxSize int

	mu    sync.Mutex
	items map[string]cacheItem
	lru   *list.List // list of query-name keys, oldest at Front
}

// NewCache returns a Cache with the given TTL and capacity bound.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		items:   make(map[string]cacheItem),
		lru:     list.New(),
	}
}

// Lookup returns the cached response for qname and true, or (nil, false) if there is
// no unexpired entry.
func (c *Cache) Lookup(qname string) (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ci, ok := c.items[qname]
	if !ok {
		return nil, false
	}
	if time.Since(ci.addedAt) > c.ttl {
		c.lru.Remove(ci.elem)
		delete(c.items, qname)
		return nil, false
	}

	c.lru.MoveToBack(ci.elem)
	return ci.response, true
}

// Insert stores response under qname, overwriting any prior entry, and evicts the
// least-recently-used entries beyond maxSize.
func (c *Cache) Insert(qname string, response map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ci, exists := c.items[qname]
	ci.response = response
	ci.addedAt = time.Now()
	if exists {
		c.lru.MoveToBack(ci.elem)
	} else {
		ci.elem = c.lru.PushBack(qname)
	}
	c.items[qname] = ci

	c.prune()
}

func (c *Cache) prune() {
	for c.maxSize > 0 && len(c.items) > c.maxSize {
		front := c.lru.Front()
		if front == nil {
			return
		}
		key := front.Value.(string)
		delete(c.items, key)
		c.lru.Remove(front)
	}
}

// Len returns the current number of cached entries, for reporting/testing.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
