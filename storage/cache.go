package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache fronts a slow Slot with a redis read-through cache. Redis failures
// never fail an operation; the base slot stays authoritative.
type Cache struct {
	base  Slot
	redis *redis.Client
	ttl   time.Duration
}

// NewCache wraps base. A nil client or zero TTL disables caching.
func NewCache(base Slot, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base slot is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := c.load(ctx, key); ok {
		return data, nil
	}
	data, err := c.base.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, data)
	return data, nil
}

// Put writes through to the base slot and evicts the cached copy only once
// the write succeeded.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	if err := c.base.Put(ctx, key, value); err != nil {
		return err
	}
	c.evict(ctx, key)
	return nil
}

func (c *Cache) load(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the base slot without failing.
			_ = c.redis.Del(ctx, cacheKey(key)).Err()
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) store(ctx context.Context, key string, data []byte) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, cacheKey(key), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, cacheKey(key)).Err()
}

func cacheKey(key string) string {
	return "cache:" + key
}
