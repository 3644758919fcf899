package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload []byte
	expiry  time.Time
}

// MemoryCache is an in-process cache keyed the same way as Redis. It
// backs tests and single-node deployments where Redis is overkill.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stats   counters
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the payload for key; expired entries count as misses and
// are dropped lazily.
func (c *MemoryCache) Get(ctx context.Context, class Class, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[redisKey(class, key)]
	c.mu.RUnlock()
	if !ok || (!entry.expiry.IsZero() && c.now().After(entry.expiry)) {
		if ok {
			c.mu.Lock()
			delete(c.entries, redisKey(class, key))
			c.mu.Unlock()
		}
		c.stats.miss(class)
		return nil, false, nil
	}
	c.stats.hit(class)
	return entry.payload, true, nil
}

// Put stores payload under key with the given TTL. A zero TTL means no
// expiry.
func (c *MemoryCache) Put(ctx context.Context, class Class, key string, payload []byte, ttl time.Duration) error {
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiry = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[redisKey(class, key)] = entry
	c.mu.Unlock()
	return nil
}

// Invalidate drops every entry of the given class.
func (c *MemoryCache) Invalidate(ctx context.Context, class Class) error {
	prefix := keyPrefix + string(class) + ":"
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// Stats reports hit/miss counters per class since creation.
func (c *MemoryCache) Stats() map[Class]ClassStats {
	return c.stats.snapshot()
}

// Close does nothing and always succeeds.
func (c *MemoryCache) Close() error {
	return nil
}
