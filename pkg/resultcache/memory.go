package resultcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
)

// cacheEntry holds an encoded result with its expiry time.
type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache implements Cache using an in-memory map with TTL. Results are
// stored encoded so callers never share slices with the cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an in-memory result cache. Entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached result. Expired entries are removed and reported as misses.
func (c *MemoryCache) Get(_ context.Context, key string) (*classify.Result, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	r, err := decodeResult(entry.data)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Set stores a result for the cache's TTL
func (c *MemoryCache) Set(_ context.Context, key string, result *classify.Result) error {
	if key == "" {
		return fmt.Errorf("cache key is empty")
	}
	data, err := encodeResult(result)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return nil
}

// Delete removes a cached result
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	return nil
}

// Purge drops expired entries and returns how many were removed
func (c *MemoryCache) Purge() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	return removed
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
