package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis client methods used by Redis.
// Keeping it as an interface enables mocking in tests.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisConfig holds connection settings for the Redis cache.
type RedisConfig struct {
	Address    string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// Redis stores model replies in Redis so they are shared between replicas.
type Redis struct {
	cfg    RedisConfig
	client RedisClient
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts := &redis.Options{
		Addr: cfg.Address,
		DB:   cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache %s: ping failed: %w", cfg.Address, err)
	}
	return NewRedisWithClient(cfg, client), nil
}

// NewRedisWithClient creates a Redis cache backed by a pre-built client.
func NewRedisWithClient(cfg RedisConfig, client RedisClient) *Redis {
	return &Redis{cfg: cfg, client: client}
}

// Get returns the value for key. A missing key is a miss, not an error.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefixed(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set stores a value with a TTL. A zero duration uses the configured
// default; if the default is also zero the key never expires.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}
	if err := r.client.Set(ctx, r.prefixed(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefixed(key)).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) prefixed(key string) string {
	return r.cfg.Prefix + key
}
