package store

import (
	"container/list"
	"sync"
)

// CacheMetrics counts cache behavior since the last reset.
type CacheMetrics struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
	Size          int    `json:"size"`
}

// policyCache is a bounded LRU from descriptor key to matched policy id.
// A present entry with a nil id is a remembered miss. A generation counter
// lets lookups detect that a mutation landed between their store query and
// their cache fill, so a stale fill is dropped instead of stored.
type policyCache struct {
	mu      sync.Mutex
	maxSize int
	gen     uint64
	order   *list.List
	entries map[string]*list.Element
	metrics CacheMetrics
}

type cacheEntry struct {
	key      string
	policyID *int64
}

func newPolicyCache(maxSize int) *policyCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &policyCache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// get returns (policyID, present) and the generation observed.
func (c *policyCache) get(key string) (*int64, bool, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.metrics.Misses++
		return nil, false, c.gen
	}
	c.order.MoveToFront(elem)
	c.metrics.Hits++
	return elem.Value.(*cacheEntry).policyID, true, c.gen
}

// put stores a lookup result, unless a mutation invalidated the cache after
// the caller observed gen.
func (c *policyCache) put(key string, policyID *int64, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).policyID = policyID
		c.order.MoveToFront(elem)
		return
	}
	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
			c.metrics.Evictions++
		}
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, policyID: policyID})
}

// invalidate drops every entry and bumps the generation. Called for every
// mutating store operation before the write is acknowledged to the caller.
func (c *policyCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.metrics.Invalidations++
}

func (c *policyCache) snapshot() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.metrics
	m.Size = c.order.Len()
	return m
}

func (c *policyCache) resetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = CacheMetrics{}
}
