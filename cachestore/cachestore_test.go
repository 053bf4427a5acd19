package cachestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedAccount struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

func testCacheStore(t *testing.T, cs CacheStore) {
	assert := assert.New(t)
	ctx := context.Background()

	_, found, err := cs.Get(ctx, "ident", "alice.example.com")
	assert.NoError(err)
	assert.False(found)

	assert.NoError(cs.Set(ctx, "ident", "alice.example.com", "did:plc:alice"))
	val, found, err := cs.Get(ctx, "ident", "alice.example.com")
	assert.NoError(err)
	assert.True(found)
	assert.Equal("did:plc:alice", val)

	// namespaces are separate
	_, found, err = cs.Get(ctx, "other", "alice.example.com")
	assert.NoError(err)
	assert.False(found)

	assert.NoError(cs.Purge(ctx, "ident", "alice.example.com"))
	_, found, err = cs.Get(ctx, "ident", "alice.example.com")
	assert.NoError(err)
	assert.False(found)
	// purging a missing key is fine
	assert.NoError(cs.Purge(ctx, "ident", "alice.example.com"))

	in := cachedAccount{DID: "did:plc:bob", Handle: "bob.example.com"}
	assert.NoError(SetJSON(ctx, cs, "ident", "did:plc:bob", in))
	var out cachedAccount
	found, err = GetJSON(ctx, cs, "ident", "did:plc:bob", &out)
	assert.NoError(err)
	assert.True(found)
	assert.Equal(in, out)

	// undecodable values are dropped
	assert.NoError(cs.Set(ctx, "ident", "did:plc:bad", "{not json"))
	found, err = GetJSON(ctx, cs, "ident", "did:plc:bad", &out)
	assert.NoError(err)
	assert.False(found)
	_, found, err = cs.Get(ctx, "ident", "did:plc:bad")
	assert.NoError(err)
	assert.False(found)
}

func TestMemCacheStore(t *testing.T) {
	testCacheStore(t, NewMemCacheStore(100, time.Hour))
}

func TestMemCacheStoreExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(100, 10*time.Millisecond)
	assert.NoError(cs.Set(ctx, "ident", "k", "v"))
	assert.Eventually(func() bool {
		_, found, _ := cs.Get(ctx, "ident", "k")
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestRedisCacheStore(t *testing.T) {
	redisURL := os.Getenv("MAGPIE_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("MAGPIE_TEST_REDIS_URL not set")
	}
	cs, err := NewRedisCacheStore(context.Background(), redisURL, time.Minute)
	require.NoError(t, err)
	testCacheStore(t, cs)
}
