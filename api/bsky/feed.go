package bsky

import (
	"context"
	"encoding/json"

	"github.com/bluesky-social/magpie/xrpc"
)

// schema: app.bsky.feed.getAuthorFeed

type FeedGetAuthorFeed_Output struct {
	Cursor *string                  `json:"cursor,omitempty"`
	Feed   []*FeedDefs_FeedViewPost `json:"feed"`
}

type FeedDefs_FeedViewPost struct {
	Post *FeedDefs_PostView `json:"post"`
	// set for reposts and pins; the post was not necessarily written by the feed's actor
	Reason json.RawMessage `json:"reason,omitempty"`
}

type FeedDefs_PostView struct {
	Uri    string                      `json:"uri"`
	Cid    string                      `json:"cid"`
	Author *ActorDefs_ProfileViewBasic `json:"author"`
	Record json.RawMessage             `json:"record"`
}

// Subset of the app.bsky.feed.post record.
type FeedPost struct {
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

// Decodes the embedded post record. Unknown record shapes decode to an empty post.
func (pv *FeedDefs_PostView) FeedPost() (*FeedPost, error) {
	var fp FeedPost
	if len(pv.Record) == 0 {
		return &fp, nil
	}
	if err := json.Unmarshal(pv.Record, &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

func FeedGetAuthorFeed(ctx context.Context, c *xrpc.Client, actor string, cursor string, filter string, limit int64) (*FeedGetAuthorFeed_Output, error) {
	var out FeedGetAuthorFeed_Output

	params := map[string]any{
		"actor": actor,
		"limit": limit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}
	if filter != "" {
		params["filter"] = filter
	}
	if err := c.Do(ctx, xrpc.Query, "app.bsky.feed.getAuthorFeed", params, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
