package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "toto:cache:"

// RedisBackend shares the cache between devices on one redis.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBackend connects to url and pings it. ttl 0 keeps entries forever.
func NewRedisBackend(ctx context.Context, url string, ttl time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisBackendWithClient(client, ttl), nil
}

func NewRedisBackendWithClient(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

func (b *RedisBackend) Store(ctx context.Context, key string, value []byte) error {
	return b.client.Set(ctx, redisKeyPrefix+key, value, b.ttl).Err()
}
