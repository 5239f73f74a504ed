package client

import (
	"sync"
	"sync/atomic"
)

// ParseCache keeps server parse results of AQL queries, keyed by query
// fingerprint, with LRU eviction. Statement.Validate consults it so the
// same query text is only sent to /_api/query once.
type ParseCache struct {
	entries     sync.Map // map[uint64]*parseEntry
	accessOrder []uint64
	maxSize     int
	stats       cacheCounters
	mu          sync.Mutex
}

type parseEntry struct {
	query  string
	result map[string]interface{}
}

type cacheCounters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// CacheStats is a snapshot of parse cache performance.
type CacheStats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	CurrentSize int
}

// NewParseCache creates a cache holding at most maxSize parse results.
func NewParseCache(maxSize int) *ParseCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &ParseCache{
		accessOrder: make([]uint64, 0, maxSize),
		maxSize:     maxSize,
	}
}

// Get returns the cached parse result of query. Fingerprint collisions are
// treated as misses.
func (c *ParseCache) Get(fingerprint uint64, query string) (map[string]interface{}, bool) {
	value, ok := c.entries.Load(fingerprint)
	if !ok || value.(*parseEntry).query != query {
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	c.updateAccessOrder(fingerprint)
	return copyResult(value.(*parseEntry).result), true
}

// Add stores a parse result, evicting the least recently used entry if the
// cache is full.
func (c *ParseCache) Add(fingerprint uint64, query string, result map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries.Load(fingerprint); exists {
		c.removeFromAccessOrder(fingerprint)
	} else if len(c.accessOrder) >= c.maxSize {
		c.evictLRU()
	}

	c.entries.Store(fingerprint, &parseEntry{query: query, result: copyResult(result)})
	c.accessOrder = append(c.accessOrder, fingerprint)
}

// Remove drops the entry for fingerprint.
func (c *ParseCache) Remove(fingerprint uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Delete(fingerprint)
	c.removeFromAccessOrder(fingerprint)
}

// Clear removes all entries.
func (c *ParseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
	c.accessOrder = make([]uint64, 0, c.maxSize)
}

// Len returns the number of cached entries.
func (c *ParseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.accessOrder)
}

// Stats returns a copy of the cache statistics.
func (c *ParseCache) Stats() CacheStats {
	return CacheStats{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Evictions:   c.stats.evictions.Load(),
		CurrentSize: c.Len(),
	}
}

// evictLRU evicts the least recently used entry.
// Must be called with c.mu locked.
func (c *ParseCache) evictLRU() {
	if len(c.accessOrder) == 0 {
		return
	}
	lru := c.accessOrder[0]
	c.entries.Delete(lru)
	c.accessOrder = c.accessOrder[1:]
	c.stats.evictions.Add(1)
}

// updateAccessOrder moves an entry to the end (most recently used).
func (c *ParseCache) updateAccessOrder(fingerprint uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.removeFromAccessOrder(fingerprint) {
		c.accessOrder = append(c.accessOrder, fingerprint)
	}
}

// removeFromAccessOrder removes fingerprint from the access order list.
// Must be called with c.mu locked.
func (c *ParseCache) removeFromAccessOrder(fingerprint uint64) bool {
	for i, f := range c.accessOrder {
		if f == fingerprint {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			return true
		}
	}
	return false
}

// copyResult makes a shallow copy so callers cannot change cached results.
func copyResult(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
