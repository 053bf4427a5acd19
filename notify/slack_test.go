package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bluesky-social/magpie/keyword"
	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body SlackWebhookBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body.Text)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, nil)
	acct := network.Account{DID: "did:plc:abc", Handle: "abc.example.com"}
	res := scoring.Result{
		Score:        12,
		CriticalHits: 2,
		Ledger: &scoring.Ledger{Hits: []scoring.Hit{
			{Term: "hatred", Weight: 6, Category: keyword.Critical, Source: scoring.SourceBio},
			{Term: "hatred", Weight: 6, Category: keyword.Critical, Source: scoring.SourcePost},
			{Term: "kindness", Weight: -2, Category: keyword.Positive, Source: scoring.SourcePost},
		}},
	}

	assert.NoError(n.Classified(ctx, acct, scoring.Moderation, res))
	// only moderation and suspect are reported
	assert.NoError(n.Classified(ctx, acct, scoring.Whitelist, res))
	assert.NoError(n.Classified(ctx, acct, scoring.NoAction, res))

	require.Len(t, got, 1)
	assert.Contains(got[0], "moderation list")
	assert.Contains(got[0], "`did:plc:abc` / `abc.example.com`")
	assert.Contains(got[0], "Score: `12`")
	assert.Contains(got[0], "Terms: `hatred`\n")
}

func TestSlackNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, nil)
	err := n.Classified(context.Background(), network.Account{DID: "did:plc:abc"}, scoring.Suspect, scoring.Result{Score: 6})
	assert.Error(t, err)
}
