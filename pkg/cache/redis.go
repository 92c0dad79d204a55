package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// KeyCache remembers processed keys for a while. It is a fast path only;
// callers keep the authoritative record elsewhere.
type KeyCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

type redisKeyCache struct {
	client *redis.Client
	prefix string
}

func NewRedisKeyCache(client *redis.Client, prefix string) KeyCache {
	return &redisKeyCache{client: client, prefix: prefix}
}

func (c *redisKeyCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *redisKeyCache) Remember(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// NoopKeyCache never remembers anything.
type NoopKeyCache struct{}

func (NoopKeyCache) Seen(context.Context, string) (bool, error) { return false, nil }

func (NoopKeyCache) Remember(context.Context, string, time.Duration) error { return nil }
