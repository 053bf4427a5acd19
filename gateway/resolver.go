// Package gateway fetches what the crawler needs from the network (identities, profiles, posts, follow edges,
// list members), each call wrapped in the retry discipline from package retry.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/magpie/cachestore"
	"github.com/bluesky-social/magpie/ident"
	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/retry"
)

const identCacheNamespace = "ident"

// ResolutionError means an identifier could not be mapped to an account. The account should be skipped.
type ResolutionError struct {
	Identifier string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q: %s", e.Identifier, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type cachedAccount struct {
	DID    string `json:"did"`
	Handle string `json:"handle,omitempty"`
}

type Resolver struct {
	Net      network.Network
	Retry    *retry.Executor
	Profiles *ProfileGateway
	// optional
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

func NewResolver(net network.Network, ex *retry.Executor, profiles *ProfileGateway, cache cachestore.CacheStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Net:      net,
		Retry:    ex,
		Profiles: profiles,
		Cache:    cache,
		Logger:   logger.With("component", "resolver"),
	}
}

// Resolve maps a handle or DID to an account. A DID is confirmed (and its current handle found) with a profile
// lookup; a handle goes through the directory. Syntax errors fail without touching the network.
func (r *Resolver) Resolve(ctx context.Context, raw string) (network.Account, error) {
	id, err := ident.ParseIdentifier(raw)
	if err != nil {
		return network.Account{}, &ResolutionError{Identifier: raw, Err: retry.Malformed(err)}
	}

	if acct, ok := r.cached(ctx, id); ok {
		return acct, nil
	}

	var acct network.Account
	if id.IsDID() {
		prof, err := r.Profiles.Fetch(ctx, id.DID)
		if err != nil {
			return network.Account{}, &ResolutionError{Identifier: id.String(), Err: err}
		}
		acct = prof.Account
	} else {
		acct, err = retry.Do(ctx, r.Retry, "resolveHandle", func(ctx context.Context) (network.Account, error) {
			return r.Net.ResolveHandle(ctx, id.Handle)
		})
		if err != nil {
			return network.Account{}, &ResolutionError{Identifier: id.String(), Err: err}
		}
		if acct.Handle == "" {
			acct.Handle = id.Handle
		}
	}

	r.Logger.Debug("resolved identifier", "identifier", id.String(), "did", acct.DID, "handle", acct.Handle)
	r.store(ctx, id, acct)
	return acct, nil
}

func (r *Resolver) cached(ctx context.Context, id ident.Identifier) (network.Account, bool) {
	if r.Cache == nil {
		return network.Account{}, false
	}
	var ca cachedAccount
	found, err := cachestore.GetJSON(ctx, r.Cache, identCacheNamespace, id.String(), &ca)
	if err != nil {
		r.Logger.Warn("identity cache read failed", "identifier", id.String(), "err", err)
		return network.Account{}, false
	}
	if !found {
		return network.Account{}, false
	}
	did, err := ident.ParseDID(ca.DID)
	if err != nil {
		return network.Account{}, false
	}
	return network.Account{DID: did, Handle: ident.Handle(ca.Handle)}, true
}

func (r *Resolver) store(ctx context.Context, id ident.Identifier, acct network.Account) {
	if r.Cache == nil {
		return
	}
	ca := cachedAccount{DID: acct.DID.String(), Handle: acct.Handle.String()}
	if err := cachestore.SetJSON(ctx, r.Cache, identCacheNamespace, id.String(), ca); err != nil {
		r.Logger.Warn("identity cache write failed", "identifier", id.String(), "err", err)
	}
}
