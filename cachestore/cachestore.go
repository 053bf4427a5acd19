package cachestore

import (
	"context"
	"encoding/json"
)

type CacheStore interface {
	// A miss is not an error: found is false.
	Get(ctx context.Context, ns, key string) (val string, found bool, err error)
	Set(ctx context.Context, ns, key, val string) error
	Purge(ctx context.Context, ns, key string) error
}

// GetJSON decodes a cached JSON value into out. A value that fails to decode is purged and treated as a miss.
func GetJSON(ctx context.Context, cs CacheStore, ns, key string, out any) (bool, error) {
	raw, found, err := cs.Get(ctx, ns, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, cs.Purge(ctx, ns, key)
	}
	return true, nil
}

func SetJSON(ctx context.Context, cs CacheStore, ns, key string, val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return cs.Set(ctx, ns, key, string(b))
}
