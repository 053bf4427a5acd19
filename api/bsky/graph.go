package bsky

import (
	"context"

	"github.com/bluesky-social/magpie/xrpc"
)

// schema: app.bsky.graph.getFollows

type GraphGetFollows_Output struct {
	Cursor  *string                       `json:"cursor,omitempty"`
	Follows []*ActorDefs_ProfileViewBasic `json:"follows"`
	Subject *ActorDefs_ProfileViewBasic   `json:"subject"`
}

func GraphGetFollows(ctx context.Context, c *xrpc.Client, actor string, cursor string, limit int64) (*GraphGetFollows_Output, error) {
	var out GraphGetFollows_Output

	params := map[string]any{
		"actor": actor,
		"limit": limit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}
	if err := c.Do(ctx, xrpc.Query, "app.bsky.graph.getFollows", params, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// schema: app.bsky.graph.getList

type GraphGetList_Output struct {
	Cursor *string                   `json:"cursor,omitempty"`
	Items  []*GraphDefs_ListItemView `json:"items"`
	List   *GraphDefs_ListView       `json:"list"`
}

type GraphDefs_ListItemView struct {
	Uri     string                      `json:"uri"`
	Subject *ActorDefs_ProfileViewBasic `json:"subject"`
}

type GraphDefs_ListView struct {
	Uri     string `json:"uri"`
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}

func GraphGetList(ctx context.Context, c *xrpc.Client, list string, cursor string, limit int64) (*GraphGetList_Output, error) {
	var out GraphGetList_Output

	params := map[string]any{
		"list":  list,
		"limit": limit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}
	if err := c.Do(ctx, xrpc.Query, "app.bsky.graph.getList", params, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
