// Package network is the boundary to the remote social network.
//
// Everything the crawler knows about the network goes through the [Network] interface, so tests (and dry runs)
// can substitute [MemNetwork] for the authenticated XRPC implementation.
package network

import (
	"context"

	"github.com/bluesky-social/magpie/ident"
)

type Account struct {
	DID ident.DID
	// advisory only; may be empty or stale
	Handle ident.Handle
}

func (a Account) String() string {
	if a.Handle == "" {
		return a.DID.String()
	}
	return a.DID.String() + " (" + a.Handle.String() + ")"
}

type Profile struct {
	Account     Account
	DisplayName string
	Bio         string
}

type Post struct {
	Account Account
	URI     string
	Text    string
}

// Network is the capability set the crawler needs from the remote API. All methods are read-only.
type Network interface {
	// Directory lookup of a handle.
	ResolveHandle(ctx context.Context, handle ident.Handle) (Account, error)
	GetProfile(ctx context.Context, did ident.DID) (*Profile, error)
	// Most-recent-first, bounded by the implementation.
	GetRecentPosts(ctx context.Context, did ident.DID) ([]Post, error)
	// Outbound follow edges. Single page, in API order.
	GetFollows(ctx context.Context, did ident.DID) ([]Account, error)
	// Members of a curated list, given its AT-URI.
	GetCuratedList(ctx context.Context, listURI string) ([]Account, error)
}
