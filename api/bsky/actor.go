package bsky

import (
	"context"

	"github.com/bluesky-social/magpie/xrpc"
)

// Subset of app.bsky.actor.defs#profileViewBasic
type ActorDefs_ProfileViewBasic struct {
	Did         string  `json:"did"`
	Handle      string  `json:"handle"`
	DisplayName *string `json:"displayName,omitempty"`
}

// schema: app.bsky.actor.getProfile
//
// Subset of app.bsky.actor.defs#profileViewDetailed
type ActorDefs_ProfileViewDetailed struct {
	Did            string  `json:"did"`
	Handle         string  `json:"handle"`
	DisplayName    *string `json:"displayName,omitempty"`
	Description    *string `json:"description,omitempty"`
	FollowersCount *int64  `json:"followersCount,omitempty"`
	FollowsCount   *int64  `json:"followsCount,omitempty"`
	PostsCount     *int64  `json:"postsCount,omitempty"`
}

func ActorGetProfile(ctx context.Context, c *xrpc.Client, actor string) (*ActorDefs_ProfileViewDetailed, error) {
	var out ActorDefs_ProfileViewDetailed

	params := map[string]any{
		"actor": actor,
	}
	if err := c.Do(ctx, xrpc.Query, "app.bsky.actor.getProfile", params, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
