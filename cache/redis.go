package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/basket/models"
)

const keyPrefix = "basket:search:"

// RedisStore is a Store shared by every basket instance pointing at the same
// Redis database.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get treats every Redis error as a miss so a cache outage degrades to
// live scraping.
func (r *RedisStore) Get(ctx context.Context, key string) (*models.SearchReport, bool) {
	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache get failed", "error", err)
		}
		return nil, false
	}
	var report models.SearchReport
	if err := json.Unmarshal(raw, &report); err != nil {
		slog.Warn("cache entry corrupt, ignoring", "error", err)
		return nil, false
	}
	return &report, true
}

func (r *RedisStore) Set(ctx context.Context, key string, report *models.SearchReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("cache: marshal report: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
