package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemCacheStore struct {
	Data *expirable.LRU[string, string]
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int, ttl time.Duration) *MemCacheStore {
	return &MemCacheStore{
		Data: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func memKey(ns, key string) string {
	return ns + "/" + key
}

func (s *MemCacheStore) Get(ctx context.Context, ns, key string) (string, bool, error) {
	v, ok := s.Data.Get(memKey(ns, key))
	return v, ok, nil
}

func (s *MemCacheStore) Set(ctx context.Context, ns, key, val string) error {
	s.Data.Add(memKey(ns, key), val)
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, ns, key string) error {
	s.Data.Remove(memKey(ns, key))
	return nil
}
