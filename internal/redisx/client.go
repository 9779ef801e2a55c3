package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr})
	_ = r.WithTimeout(2 * time.Second)
	return r
}

// Cache is the thin slice of Redis the service uses: read-through caching
// of stats series and event dedup markers.
type Cache struct{ R *redis.Client }

func (c Cache) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := c.R.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (c Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.R.Set(ctx, key, value, ttl).Err()
}

func (c Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.R.SetNX(ctx, key, value, ttl).Result()
}

func (c Cache) Del(ctx context.Context, keys ...string) error {
	return c.R.Del(ctx, keys...).Err()
}
