package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bluesky-social/magpie/ident"
	"github.com/bluesky-social/magpie/xrpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAppview(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/xrpc/com.atproto.server.createSession" && r.Header.Get("Authorization") != "Bearer access1" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintln(w, `{"error":"AuthenticationRequired"}`)
			return
		}
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "hunter2" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintln(w, `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`)
				return
			}
			fmt.Fprintln(w, `{"did":"did:plc:bot","handle":"bot.example.com","accessJwt":"access1","refreshJwt":"refresh1"}`)
		case "/xrpc/com.atproto.identity.resolveHandle":
			if r.URL.Query().Get("handle") != "alice.example.com" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintln(w, `{"error":"InvalidRequest","message":"Unable to resolve handle"}`)
				return
			}
			fmt.Fprintln(w, `{"did":"did:plc:alice"}`)
		case "/xrpc/app.bsky.actor.getProfile":
			fmt.Fprintln(w, `{"did":"did:plc:alice","handle":"alice.example.com","displayName":"Alice","description":"hello world"}`)
		case "/xrpc/app.bsky.feed.getAuthorFeed":
			assert.Equal(t, "posts_with_replies", r.URL.Query().Get("filter"))
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			fmt.Fprintln(w, `{"feed":[
				{"post":{"uri":"at://did:plc:alice/app.bsky.feed.post/1","cid":"c1","author":{"did":"did:plc:alice","handle":"alice.example.com"},"record":{"$type":"app.bsky.feed.post","text":"first post"}}},
				{"post":{"uri":"at://did:plc:bob/app.bsky.feed.post/2","cid":"c2","author":{"did":"did:plc:bob","handle":"bob.example.com"},"record":{"text":"not mine"}},"reason":{"$type":"app.bsky.feed.defs#reasonRepost"}},
				{"post":{"uri":"at://did:plc:alice/app.bsky.feed.post/3","cid":"c3","author":{"did":"did:plc:alice","handle":"alice.example.com"},"record":{"text":"pinned"}},"reason":{"$type":"app.bsky.feed.defs#reasonPin"}}
			]}`)
		case "/xrpc/app.bsky.graph.getFollows":
			fmt.Fprintln(w, `{"subject":{"did":"did:plc:alice","handle":"alice.example.com"},"follows":[
				{"did":"did:plc:bob","handle":"bob.example.com"},
				{"did":"garbage","handle":"x.example.com"},
				{"did":"did:plc:carol","handle":"handle.invalid"}
			]}`)
		case "/xrpc/app.bsky.graph.getList":
			assert.Equal(t, "at://did:plc:mods/app.bsky.graph.list/3k", r.URL.Query().Get("list"))
			fmt.Fprintln(w, `{"list":{"uri":"at://did:plc:mods/app.bsky.graph.list/3k","name":"mods","purpose":"app.bsky.graph.defs#modlist"},"items":[
				{"uri":"at://did:plc:mods/app.bsky.graph.listitem/1","subject":{"did":"did:plc:dave","handle":"dave.example.com"}}
			]}`)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
}

func TestXRPCNetwork(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := fakeAppview(t)
	defer srv.Close()

	c := xrpc.NewClient(srv.URL)
	err := Login(ctx, c, "bot.example.com", "wrong")
	var xe *xrpc.Error
	require.True(t, errors.As(err, &xe))
	assert.True(xe.IsAuthFailure())

	require.NoError(t, Login(ctx, c, "bot.example.com", "hunter2"))
	assert.Equal("did:plc:bot", c.Auth().Did)

	n := NewXRPCNetwork(c, nil)

	acct, err := n.ResolveHandle(ctx, "alice.example.com")
	require.NoError(t, err)
	assert.Equal(ident.DID("did:plc:alice"), acct.DID)

	_, err = n.ResolveHandle(ctx, "nobody.example.com")
	require.True(t, errors.As(err, &xe))
	assert.True(xe.IsBadRequest())

	p, err := n.GetProfile(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Equal("hello world", p.Bio)
	assert.Equal("Alice", p.DisplayName)
	assert.Equal(ident.Handle("alice.example.com"), p.Account.Handle)

	posts, err := n.GetRecentPosts(ctx, "did:plc:alice")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal("first post", posts[0].Text)
	assert.Equal("pinned", posts[1].Text)

	follows, err := n.GetFollows(ctx, "did:plc:alice")
	require.NoError(t, err)
	require.Len(t, follows, 2)
	assert.Equal(ident.DID("did:plc:bob"), follows[0].DID)
	assert.Equal(ident.DID("did:plc:carol"), follows[1].DID)
	assert.Equal(ident.Handle(""), follows[1].Handle)

	members, err := n.GetCuratedList(ctx, "at://did:plc:mods/app.bsky.graph.list/3k")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(ident.DID("did:plc:dave"), members[0].DID)
}

func TestMemNetworkFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	m := NewMemNetwork()
	m.AddAccount("did:plc:alice", "alice.test", "bio")
	boom := errors.New("boom")
	m.Fail("GetProfile", "did:plc:alice", boom, nil)

	_, err := m.GetProfile(ctx, "did:plc:alice")
	assert.ErrorIs(err, boom)
	p, err := m.GetProfile(ctx, "did:plc:alice")
	assert.NoError(err)
	assert.Equal("bio", p.Bio)
	assert.Equal(2, m.Calls("GetProfile", "did:plc:alice"))

	_, err = m.GetProfile(ctx, "did:plc:nobody")
	var xe *xrpc.Error
	assert.True(errors.As(err, &xe))
	assert.True(xe.IsBadRequest())
}
