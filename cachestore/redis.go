package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

type RedisCacheStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

// NewRedisCacheStore connects (and pings) the server at redisURL. A small local TinyLFU sits in front of Redis.
func NewRedisCacheStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCacheStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisCacheStore{
		Data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(10_000, min(ttl, time.Minute)),
		}),
		TTL: ttl,
	}, nil
}

func redisKey(ns, key string) string {
	return "magpie/" + ns + "/" + key
}

func (s *RedisCacheStore) Get(ctx context.Context, ns, key string) (string, bool, error) {
	var val string
	err := s.Data.Get(ctx, redisKey(ns, key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, ns, key, val string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisKey(ns, key),
		Value: val,
		TTL:   s.TTL,
	})
}

func (s *RedisCacheStore) Purge(ctx context.Context, ns, key string) error {
	err := s.Data.Delete(ctx, redisKey(ns, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
