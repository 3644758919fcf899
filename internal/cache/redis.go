package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "kb:"

// RedisCache stores entries in Redis under kb:<class>:<key>.
type RedisCache struct {
	client *redis.Client
	stats  counters
}

// NewRedisCache creates a new Redis cache client and verifies connectivity.
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func redisKey(class Class, key string) string {
	return keyPrefix + string(class) + ":" + key
}

// Get returns the payload for key, or found=false on miss.
func (c *RedisCache) Get(ctx context.Context, class Class, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, redisKey(class, key)).Bytes()
	if err == redis.Nil {
		c.stats.miss(class)
		return nil, false, nil
	}
	if err != nil {
		c.stats.miss(class)
		return nil, false, err
	}
	c.stats.hit(class)
	return data, true, nil
}

// Put stores payload under key with the given TTL.
func (c *RedisCache) Put(ctx context.Context, class Class, key string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, redisKey(class, key), payload, ttl).Err()
}

// Invalidate drops every entry of the given class using SCAN, so large
// classes are removed without blocking the server.
func (c *RedisCache) Invalidate(ctx context.Context, class Class) error {
	pattern := keyPrefix + string(class) + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if count > 0 {
		_, err := pipe.Exec(ctx)
		return err
	}
	return nil
}

// Stats reports hit/miss counters per class since process start.
func (c *RedisCache) Stats() map[Class]ClassStats {
	return c.stats.snapshot()
}

// Close closes the cache connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
