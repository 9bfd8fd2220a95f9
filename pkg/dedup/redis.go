package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLogPrefix = "dedup:redis"

// DefaultKeyPrefix namespaces dedup keys in a shared Redis.
const DefaultKeyPrefix = "assistant:dedup:"

// RedisStore is a Store shared by every replica of the service.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL (redis://[user:pass@]host:port/db).
// An unreachable server is an error so misconfiguration surfaces at startup.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid REDIS_URL: %w", redisLogPrefix, err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s - failed to connect to Redis at %s: %w", redisLogPrefix, opts.Addr, err)
	}
	slog.Info(fmt.Sprintf("%s - Connected to Redis at %s", redisLogPrefix, opts.Addr))
	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: DefaultKeyPrefix, ttl: ttl}
}

// FirstSeen implements Store with SET NX so concurrent replicas agree on one winner.
func (s *RedisStore) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s - SETNX %s: %w", redisLogPrefix, key, err)
	}
	return ok, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
