package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultReturnURLPrefix = "funnel:return_url"

// RedisReturnURLCache stores return URLs under "<prefix>:<visitor key>".
type RedisReturnURLCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisReturnURLCache builds a cache over client. A ttl <= 0 keeps entries forever.
func NewRedisReturnURLCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisReturnURLCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultReturnURLPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisReturnURLCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisReturnURLCache) key(k string) string {
	return c.prefix + ":" + strings.ToLower(strings.TrimSpace(k))
}

func (c *RedisReturnURLCache) Put(ctx context.Context, key, url string) error {
	if err := c.client.Set(ctx, c.key(key), url, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache return url: %w", err)
	}
	return nil
}

func (c *RedisReturnURLCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read return url: %w", err)
	}
	return val, true, nil
}

func (c *RedisReturnURLCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("clear return url: %w", err)
	}
	return nil
}

// MemoryReturnURLCache is the single-process fallback used when Redis is not configured.
type MemoryReturnURLCache struct {
	mu   sync.Mutex
	urls map[string]string
}

func NewMemoryReturnURLCache() *MemoryReturnURLCache {
	return &MemoryReturnURLCache{urls: make(map[string]string)}
}

func (c *MemoryReturnURLCache) Put(_ context.Context, key, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls[strings.ToLower(strings.TrimSpace(key))] = url
	return nil
}

func (c *MemoryReturnURLCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url, ok := c.urls[strings.ToLower(strings.TrimSpace(key))]
	return url, ok, nil
}

func (c *MemoryReturnURLCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.urls, strings.ToLower(strings.TrimSpace(key)))
	return nil
}
