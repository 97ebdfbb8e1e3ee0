package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL bounds how long an abandoned run's cache survives in Redis.
const DefaultRedisTTL = 24 * time.Hour

// RedisStore keeps a run's responses in a single Redis hash. Writes go
// straight to Redis, so Flush has nothing to do.
type RedisStore struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisStore creates a store for the given run. Each run gets its own
// hash so that concurrent runs never share responses.
func NewRedisStore(redisClient *redis.Client, runID string, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{
		redis: redisClient,
		key:   "wm:cache:" + runID,
		ttl:   ttl,
	}
}

// Key returns the Redis hash holding the run's responses.
func (s *RedisStore) Key() string {
	return s.key
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.HGet(ctx, s.key, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return data, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, body []byte) error {
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.key, key, body)
	pipe.Expire(ctx, s.key, s.ttl)
	size := pipe.HLen(ctx, s.key)

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}

	CacheEntries.WithLabelValues("redis").Set(float64(size.Val()))
	return nil
}

// Flush implements Store.
func (s *RedisStore) Flush(context.Context) error {
	return nil
}

// Destroy implements Store.
func (s *RedisStore) Destroy(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	CacheEntries.WithLabelValues("redis").Set(0)
	return nil
}
