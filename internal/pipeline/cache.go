package pipeline

import (
	"sync"
	"time"
)

// Cache defaults.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

type cacheEntry struct {
	result   *Result
	storedAt time.Time
}

// Cache holds successful command results for replay by command id.
// Entries expire after the TTL; at capacity the oldest entry is
// evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewCache builds a result cache. Zero values pick the defaults.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a live cached result, expiring it when stale.
func (c *Cache) Get(commandID string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[commandID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, commandID)
		return nil, false
	}
	return entry.result, true
}

// Set stores a result, evicting the oldest entry at capacity.
func (c *Cache) Set(commandID string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		var oldestID string
		var oldestAt time.Time
		for id, entry := range c.entries {
			if oldestID == "" || entry.storedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = entry.storedAt
			}
		}
		delete(c.entries, oldestID)
	}
	c.entries[commandID] = cacheEntry{result: result, storedAt: c.now()}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
