package network

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comatproto "github.com/bluesky-social/magpie/api/atproto"
	appbsky "github.com/bluesky-social/magpie/api/bsky"
	"github.com/bluesky-social/magpie/ident"
	"github.com/bluesky-social/magpie/xrpc"
)

const (
	DefaultFeedLimit    = 50
	DefaultFollowsLimit = 100
	DefaultListLimit    = 100
)

// XRPCNetwork implements [Network] against an (authenticated) XRPC host.
type XRPCNetwork struct {
	Client       *xrpc.Client
	Logger       *slog.Logger
	FeedLimit    int64
	FollowsLimit int64
	ListLimit    int64
}

var _ Network = (*XRPCNetwork)(nil)

func NewXRPCNetwork(c *xrpc.Client, logger *slog.Logger) *XRPCNetwork {
	if logger == nil {
		logger = slog.Default()
	}
	return &XRPCNetwork{
		Client:       c,
		Logger:       logger,
		FeedLimit:    DefaultFeedLimit,
		FollowsLimit: DefaultFollowsLimit,
		ListLimit:    DefaultListLimit,
	}
}

// Login creates a session with an account password. Failure here is fatal for the caller: nothing else works
// without a session.
func Login(ctx context.Context, c *xrpc.Client, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}
	out, err := comatproto.ServerCreateSession(ctx, c, &comatproto.ServerCreateSession_Input{
		Identifier: username,
		Password:   password,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if out.Active != nil && !*out.Active {
		status := ""
		if out.Status != nil {
			status = *out.Status
		}
		return fmt.Errorf("account is disabled: %s", status)
	}
	c.SetAuth(&xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	})
	return nil
}

func (n *XRPCNetwork) ResolveHandle(ctx context.Context, handle ident.Handle) (Account, error) {
	out, err := comatproto.IdentityResolveHandle(ctx, n.Client, handle.String())
	if err != nil {
		return Account{}, err
	}
	did, err := ident.ParseDID(out.Did)
	if err != nil {
		return Account{}, &xrpc.DecodeError{Method: "com.atproto.identity.resolveHandle", Err: err}
	}
	return Account{DID: did, Handle: handle}, nil
}

func (n *XRPCNetwork) GetProfile(ctx context.Context, did ident.DID) (*Profile, error) {
	pv, err := appbsky.ActorGetProfile(ctx, n.Client, did.String())
	if err != nil {
		return nil, err
	}
	acct, err := accountFromView(pv.Did, pv.Handle)
	if err != nil {
		return nil, &xrpc.DecodeError{Method: "app.bsky.actor.getProfile", Err: err}
	}
	p := Profile{Account: acct}
	if pv.Description != nil {
		p.Bio = *pv.Description
	}
	if pv.DisplayName != nil {
		p.DisplayName = *pv.DisplayName
	}
	return &p, nil
}

type feedReason struct {
	Type string `json:"$type"`
}

func (n *XRPCNetwork) GetRecentPosts(ctx context.Context, did ident.DID) ([]Post, error) {
	out, err := appbsky.FeedGetAuthorFeed(ctx, n.Client, did.String(), "", "posts_with_replies", n.FeedLimit)
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(out.Feed))
	for _, item := range out.Feed {
		if item == nil || item.Post == nil {
			continue
		}
		if len(item.Reason) > 0 {
			var r feedReason
			if err := json.Unmarshal(item.Reason, &r); err == nil && r.Type == "app.bsky.feed.defs#reasonRepost" {
				// reposted content was written by someone else
				continue
			}
		}
		fp, err := item.Post.FeedPost()
		if err != nil {
			n.Logger.Debug("skipping undecodable post record", "did", did, "uri", item.Post.Uri, "err", err)
			continue
		}
		var author Account
		if item.Post.Author != nil {
			author, _ = accountFromView(item.Post.Author.Did, item.Post.Author.Handle)
		}
		posts = append(posts, Post{
			Account: author,
			URI:     item.Post.Uri,
			Text:    fp.Text,
		})
	}
	return posts, nil
}

func (n *XRPCNetwork) GetFollows(ctx context.Context, did ident.DID) ([]Account, error) {
	out, err := appbsky.GraphGetFollows(ctx, n.Client, did.String(), "", n.FollowsLimit)
	if err != nil {
		return nil, err
	}
	accts := make([]Account, 0, len(out.Follows))
	for _, f := range out.Follows {
		if f == nil {
			continue
		}
		acct, err := accountFromView(f.Did, f.Handle)
		if err != nil {
			n.Logger.Warn("skipping follow with invalid DID", "did", did, "follow", f.Did, "err", err)
			continue
		}
		accts = append(accts, acct)
	}
	return accts, nil
}

func (n *XRPCNetwork) GetCuratedList(ctx context.Context, listURI string) ([]Account, error) {
	out, err := appbsky.GraphGetList(ctx, n.Client, listURI, "", n.ListLimit)
	if err != nil {
		return nil, err
	}
	accts := make([]Account, 0, len(out.Items))
	for _, item := range out.Items {
		if item == nil || item.Subject == nil {
			continue
		}
		acct, err := accountFromView(item.Subject.Did, item.Subject.Handle)
		if err != nil {
			n.Logger.Warn("skipping list member with invalid DID", "list", listURI, "member", item.Subject.Did, "err", err)
			continue
		}
		accts = append(accts, acct)
	}
	return accts, nil
}

func accountFromView(rawDID, rawHandle string) (Account, error) {
	did, err := ident.ParseDID(rawDID)
	if err != nil {
		return Account{}, err
	}
	// a bad handle is not fatal; it is advisory anyway
	h, err := ident.ParseHandle(rawHandle)
	if err != nil || h.IsInvalid() {
		h = ""
	}
	return Account{DID: did, Handle: h}, nil
}
