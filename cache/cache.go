// Package cache layers a small in-process TinyLFU front over Redis. The
// engine uses it as the fast path for the follower cool-down check, so a
// repeat check inside the warn window resolves locally instead of hitting
// the order store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"

	"github.com/boostgram/boostgram/config"
	"github.com/boostgram/boostgram/internal/redisconn"
)

// Local front sizing, in entries. The working set is one key per username
// inside a cool-down window, so this is generous.
const localCacheEntries = 128000

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, data interface{}) error
	Delete(ctx context.Context, key string) error
}

// NewCache connects to the Redis instance named in the active configuration.
func NewCache() (Cache, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return newRedisCache([]string{fmt.Sprintf("redis://%s", cfg.Redis.Dns)})
}

type RedisCache struct {
	cache *cache.Cache
}

func newRedisCache(addresses []string) (*RedisCache, error) {
	client, err := redisconn.NewRedisClient(addresses)
	if err != nil {
		return nil, err
	}
	return &RedisCache{
		cache: cache.New(&cache.Options{
			Redis:      client.Client(),
			LocalCache: cache.NewTinyLFU(localCacheEntries, time.Minute),
		}),
	}, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

// Get fills data with the cached value. A miss is not an error: data is left
// untouched and the caller distinguishes by its zero value.
func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	err := r.cache.Get(ctx, key, &data)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
