package cache

import (
	"context"
	"time"
)

// NoOpCache is a cache implementation that does nothing. Used when
// caching is disabled or Redis is unavailable: all operations succeed
// but every Get is a miss, forcing callers through their regenerate
// paths.
type NoOpCache struct {
	stats counters
}

// NewNoOpCache creates a new no-op cache instance.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always reports a miss.
func (c *NoOpCache) Get(ctx context.Context, class Class, key string) ([]byte, bool, error) {
	c.stats.miss(class)
	return nil, false, nil
}

// Put does nothing and always succeeds.
func (c *NoOpCache) Put(ctx context.Context, class Class, key string, payload []byte, ttl time.Duration) error {
	return nil
}

// Invalidate does nothing and always succeeds.
func (c *NoOpCache) Invalidate(ctx context.Context, class Class) error {
	return nil
}

// Stats reports miss counters only; a no-op cache never hits.
func (c *NoOpCache) Stats() map[Class]ClassStats {
	return c.stats.snapshot()
}

// Close does nothing and always succeeds.
func (c *NoOpCache) Close() error {
	return nil
}
