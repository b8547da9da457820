package cache

import (
	"context"
	"encoding/json"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient creates a Redis client and performs a health check.
func NewRedisClient(ctx context.Context, url string) (*goRedis.Client, error) {
	opts, err := goRedis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := goRedis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Redis is a JSON-encoded TTL cache shared between service replicas. Cache
// failures are logged and treated as misses; the store stays authoritative.
type Redis[T any] struct {
	client *goRedis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis wraps a client. Keys are stored as prefix+key.
func NewRedis[T any](client *goRedis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Redis[T] {
	if ttl <= 0 {
		ttl = fallbackTTL
	}
	return &Redis[T]{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != goRedis.Nil {
			r.logger.Warn("redis cache: get failed", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		r.logger.Warn("redis cache: decode failed", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return v, true
}

func (r *Redis[T]) Set(ctx context.Context, key string, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("redis cache: encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("redis cache: set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis[T]) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		r.logger.Warn("redis cache: delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
