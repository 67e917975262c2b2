package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 500 * time.Millisecond

// RedisCache shares cached values between several web instances.
// Values are stored as JSON under prefix+key with the configured TTL.
// Redis failures are logged and reported as cache misses.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection with PING.
func NewRedisCache[T any](ctx context.Context, addr, prefix string, ttl time.Duration) (*RedisCache[T], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisCacheFromClient[T](rdb, prefix, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client, sharing its connection pool.
func NewRedisCacheFromClient[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache[T]) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

func (r *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := r.opContext()
	defer cancel()

	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Redis get failed", "component", "cache", "key", key, "error", err)
		}
		return zero, false
	}
	var data T
	if err := json.Unmarshal(val, &data); err != nil {
		slog.Warn("Discarding undecodable cache entry", "component", "cache", "key", key, "error", err)
		return zero, false
	}
	return data, true
}

func (r *RedisCache[T]) Set(key string, data T) {
	b, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Cache value not encodable", "component", "cache", "key", key, "error", err)
		return
	}
	ctx, cancel := r.opContext()
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, b, r.ttl).Err(); err != nil {
		slog.Warn("Redis set failed", "component", "cache", "key", key, "error", err)
	}
}

func (r *RedisCache[T]) Delete(key string) {
	ctx, cancel := r.opContext()
	defer cancel()
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		slog.Warn("Redis delete failed", "component", "cache", "key", key, "error", err)
	}
}

func (r *RedisCache[T]) keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (r *RedisCache[T]) DeletePrefix(prefix string) int {
	ctx, cancel := r.opContext()
	defer cancel()

	keys, err := r.keys(ctx, r.prefix+prefix+"*")
	if err != nil {
		slog.Warn("Redis scan failed", "component", "cache", "prefix", prefix, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		slog.Warn("Redis delete failed", "component", "cache", "prefix", prefix, "error", err)
	}
	return int(n)
}

// Size counts the keys under this cache's prefix.
func (r *RedisCache[T]) Size() int {
	ctx, cancel := r.opContext()
	defer cancel()
	keys, err := r.keys(ctx, r.prefix+"*")
	if err != nil {
		return 0
	}
	return len(keys)
}

// CleanExpired is a no-op; Redis expires keys on its own.
func (r *RedisCache[T]) CleanExpired() int { return 0 }

var (
	_ Cache[int] = (*LRUCache[int])(nil)
	_ Cache[int] = (*RedisCache[int])(nil)
)
