package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// newRedisClient connects to Redis from config. Commands touching the shared
// cache or the event queue require it.
func newRedisClient(ctx context.Context) (*redis.Client, error) {
	if cfg == nil || cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis.addr not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}
