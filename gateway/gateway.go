package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/magpie/ident"
	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/retry"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Returned (wrapped, along with the cause) when a profile cannot be fetched.
var ErrProfileUnavailable = errors.New("profile unavailable")

// ProfileGateway fetches profiles. Profiles fetched in the last minute are served from memory, so confirming a DID
// during resolution and then scoring it costs a single request.
type ProfileGateway struct {
	Net    network.Network
	Retry  *retry.Executor
	Logger *slog.Logger

	recent *expirable.LRU[ident.DID, *network.Profile]
}

func NewProfileGateway(net network.Network, ex *retry.Executor, logger *slog.Logger) *ProfileGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileGateway{
		Net:    net,
		Retry:  ex,
		Logger: logger.With("component", "profiles"),
		recent: expirable.NewLRU[ident.DID, *network.Profile](1_000, nil, time.Minute),
	}
}

// Fetch returns the profile, or an error wrapping [ErrProfileUnavailable]. It never returns (nil, nil).
func (g *ProfileGateway) Fetch(ctx context.Context, did ident.DID) (*network.Profile, error) {
	if p, ok := g.recent.Get(did); ok {
		return p, nil
	}
	p, err := retry.Do(ctx, g.Retry, "getProfile", func(ctx context.Context) (*network.Profile, error) {
		return g.Net.GetProfile(ctx, did)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProfileUnavailable, did, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s: empty response", ErrProfileUnavailable, did)
	}
	g.recent.Add(did, p)
	return p, nil
}

type ContentGateway struct {
	Net    network.Network
	Retry  *retry.Executor
	Logger *slog.Logger
}

func NewContentGateway(net network.Network, ex *retry.Executor, logger *slog.Logger) *ContentGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentGateway{
		Net:    net,
		Retry:  ex,
		Logger: logger.With("component", "content"),
	}
}

// RecentPosts returns the account's most recent posts and replies, newest first.
func (g *ContentGateway) RecentPosts(ctx context.Context, did ident.DID) ([]network.Post, error) {
	posts, err := retry.Do(ctx, g.Retry, "getAuthorFeed", func(ctx context.Context) ([]network.Post, error) {
		return g.Net.GetRecentPosts(ctx, did)
	})
	if err != nil {
		return nil, err
	}
	g.Logger.Debug("fetched recent posts", "did", did, "count", len(posts))
	return posts, nil
}

type GraphGateway struct {
	Net      network.Network
	Retry    *retry.Executor
	Resolver *Resolver
	Logger   *slog.Logger
}

func NewGraphGateway(net network.Network, ex *retry.Executor, resolver *Resolver, logger *slog.Logger) *GraphGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphGateway{
		Net:      net,
		Retry:    ex,
		Resolver: resolver,
		Logger:   logger.With("component", "graph"),
	}
}

// Follows returns the accounts did follows (a single page, in API order).
func (g *GraphGateway) Follows(ctx context.Context, did ident.DID) ([]network.Account, error) {
	follows, err := retry.Do(ctx, g.Retry, "getFollows", func(ctx context.Context) ([]network.Account, error) {
		return g.Net.GetFollows(ctx, did)
	})
	if err != nil {
		return nil, err
	}
	g.Logger.Debug("fetched follows", "did", did, "count", len(follows))
	return follows, nil
}

// CuratedList returns the members of a list, given as an AT-URI or a bsky.app list URL. If the list owner is
// named by handle it is resolved first.
func (g *GraphGateway) CuratedList(ctx context.Context, rawRef string) ([]network.Account, error) {
	ref, err := ident.ParseListRef(rawRef)
	if err != nil {
		return nil, retry.Malformed(err)
	}
	owner := ref.Authority.DID
	if !ref.Authority.IsDID() {
		acct, err := g.Resolver.Resolve(ctx, ref.Authority.String())
		if err != nil {
			return nil, fmt.Errorf("list owner: %w", err)
		}
		owner = acct.DID
	}
	uri := ref.ATURI(owner)
	members, err := retry.Do(ctx, g.Retry, "getList", func(ctx context.Context) ([]network.Account, error) {
		return g.Net.GetCuratedList(ctx, uri)
	})
	if err != nil {
		return nil, err
	}
	g.Logger.Info("fetched curated list", "uri", uri, "count", len(members))
	return members, nil
}
