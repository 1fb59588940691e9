package cache

import (
	"QRLinks-Backend/internal/config"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "qrlinks:dest:"

// tombstone marks a freshly invalidated slug. While it lives, a reader that
// loaded the destination before the invalidation cannot put it back.
const (
	tombstone    = "\x00"
	tombstoneTTL = 30 * time.Second
)

// Redis caches slug -> destination mappings with a TTL
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient connects to redis and checks the connection
func NewClient(ctx context.Context, cfg *config.Cache) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 20,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, slug string) (string, bool, error) {
	dest, err := c.client.Get(ctx, keyPrefix+slug).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	if dest == tombstone {
		return "", false, nil
	}
	return dest, true, nil
}

// Set stores destination only if the key is absent, so it never replaces a tombstone
func (c *Redis) Set(ctx context.Context, slug, destination string) error {
	if err := c.client.SetNX(ctx, keyPrefix+slug, destination, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, slugs ...string) error {
	if len(slugs) == 0 {
		return nil
	}
	ttl := tombstoneTTL
	if c.ttl > 0 && c.ttl < ttl {
		ttl = c.ttl
	}
	pipe := c.client.TxPipeline()
	for _, s := range slugs {
		pipe.Set(ctx, keyPrefix+s, tombstone, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}
