package atproto

import (
	"context"

	"github.com/bluesky-social/magpie/xrpc"
)

// schema: com.atproto.server.createSession

type ServerCreateSession_Input struct {
	Identifier      string  `json:"identifier"`
	Password        string  `json:"password"`
	AuthFactorToken *string `json:"authFactorToken,omitempty"`
}

type ServerCreateSession_Output struct {
	AccessJwt  string  `json:"accessJwt"`
	RefreshJwt string  `json:"refreshJwt"`
	Did        string  `json:"did"`
	Handle     string  `json:"handle"`
	Active     *bool   `json:"active,omitempty"`
	Status     *string `json:"status,omitempty"`
}

func ServerCreateSession(ctx context.Context, c *xrpc.Client, input *ServerCreateSession_Input) (*ServerCreateSession_Output, error) {
	var out ServerCreateSession_Output
	if err := c.Do(ctx, xrpc.Procedure, "com.atproto.server.createSession", nil, input, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
