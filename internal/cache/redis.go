package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"exemplar/internal/platform/applog"
)

const defaultPrefix = "exemplar:context:"

// RedisCache is a ContextCache backed by redis string keys with a TTL.
type RedisCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{redis: rdb, ttl: ttl, prefix: defaultPrefix}
}

// Dial parses a redis:// URL and checks the server is reachable.
func Dial(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisCache(rdb, ttl), nil
}

func (c *RedisCache) Get(ctx context.Context, generation string, k int, query string) ([]string, bool) {
	key := c.key(generation, k, query)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var contexts []string
	if err := json.Unmarshal(data, &contexts); err != nil {
		applog.Warn("[Cache] Failed to unmarshal cached contexts", "key", key, "error", err)
		return nil, false
	}
	applog.Debug("[Cache] Hit", "key", key)
	return contexts, true
}

func (c *RedisCache) Set(ctx context.Context, generation string, k int, query string, contexts []string) {
	key := c.key(generation, k, query)
	data, err := json.Marshal(contexts)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll deletes every key under the cache prefix.
func (c *RedisCache) InvalidateAll(ctx context.Context) {
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.redis.Del(ctx, keys...)
		applog.Info("[Cache] Invalidated", "keys_deleted", len(keys))
	}
}

func (c *RedisCache) Close() error { return c.redis.Close() }

// key = prefix + generation + ":" + hash(k|query)
func (c *RedisCache) key(generation string, k int, query string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", k, query)))
	return fmt.Sprintf("%s%s:%x", c.prefix, generation, hash[:12])
}
