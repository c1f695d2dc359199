package cdn

import (
	"sync"
	"time"
)

// Cache defaults.
const (
	DefaultCacheCapacity = 1000
	DefaultCacheTTL      = 5 * time.Minute
)

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// Cache is a fixed-capacity TTL cache for generated URLs. When an insert
// exceeds the capacity the oldest-inserted entry is evicted; expired
// entries are dropped lazily on read. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	order    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache returns a cache holding at most capacity URLs for ttl each.
// Non-positive arguments fall back to DefaultCacheCapacity and
// DefaultCacheTTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries:  make(map[string]cacheEntry, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the cached URL for key, or ok=false when absent or expired.
// Expired entries are removed on read.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		c.remove(key)
		return "", false
	}
	return e.url, true
}

// Put stores url under key. Overwriting an existing key refreshes its TTL
// but keeps its insertion position.
func (c *Cache) Put(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = cacheEntry{url: url, expiresAt: c.now().Add(c.ttl)}
		return
	}
	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = cacheEntry{url: url, expiresAt: c.now().Add(c.ttl)}
	c.order = append(c.order, key)
}

// Len reports the number of stored entries, including not-yet-collected
// expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry, c.capacity)
	c.order = c.order[:0]
}

// Cleanup removes all expired entries and reports how many were dropped.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := c.now()
	for _, key := range append([]string(nil), c.order...) {
		if e, ok := c.entries[key]; ok && now.After(e.expiresAt) {
			c.remove(key)
			n++
		}
	}
	return n
}

// remove deletes key from the map and the insertion order. Callers must
// hold mu.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
