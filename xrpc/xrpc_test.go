package xrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMakeParams tests the makeParams function.
func TestMakeParams(t *testing.T) {
	testCases := []struct {
		name     string
		input    map[string]any
		expected string
	}{
		{
			name:     "Empty input",
			input:    map[string]any{},
			expected: "",
		},
		{
			name: "Multiple values",
			input: map[string]any{
				"limit": 50,
				"actor": "did:plc:abc",
			},
			expected: "actor=did%3Aplc%3Aabc&limit=50",
		},
		{
			name: "Slice of strings",
			input: map[string]any{
				"key": []string{"value1", "value2"},
			},
			expected: "key=value1&key=value2",
		},
		{
			name: "Nil value omitted",
			input: map[string]any{
				"cursor": nil,
				"list":   "at://x",
			},
			expected: "list=at%3A%2F%2Fx",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, makeParams(tc.input))
		})
	}
}

func TestErrorClassification(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/xrpc/com.example.throttled":
			w.Header().Set("ratelimit-limit", "3000")
			w.Header().Set("ratelimit-remaining", "0")
			w.Header().Set("ratelimit-reset", "1700000000")
			w.Header().Set("ratelimit-policy", "3000;w=300")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintln(w, `{"error":"RateLimitExceeded","message":"slow down"}`)
		case "/xrpc/com.example.invalid":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, `{"error":"InvalidRequest","message":"Error: actor must be a valid did or a handle"}`)
		case "/xrpc/com.example.broken":
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprintln(w, `upstream down`)
		case "/xrpc/com.example.garbage":
			fmt.Fprintln(w, `{"did": 12`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	var out map[string]any

	err := c.Do(ctx, Query, "com.example.throttled", nil, nil, &out)
	var xe *Error
	require.True(t, errors.As(err, &xe))
	assert.True(xe.IsThrottled())
	assert.False(xe.IsBadRequest())
	require.NotNil(t, xe.Ratelimit)
	assert.Equal(3000, xe.Ratelimit.Limit)
	assert.Equal(0, xe.Ratelimit.Remaining)
	assert.Equal(int64(1700000000), xe.Ratelimit.Reset.Unix())

	err = c.Do(ctx, Query, "com.example.invalid", nil, nil, &out)
	require.True(t, errors.As(err, &xe))
	assert.True(xe.IsBadRequest())
	assert.Equal("InvalidRequest", xe.Name())

	err = c.Do(ctx, Query, "com.example.broken", nil, nil, &out)
	require.True(t, errors.As(err, &xe))
	assert.Equal(http.StatusBadGateway, xe.StatusCode)
	assert.False(xe.IsThrottled())
	assert.False(xe.IsBadRequest())
	assert.Equal("", xe.Name())

	err = c.Do(ctx, Query, "com.example.garbage", nil, nil, &out)
	var de *DecodeError
	assert.True(errors.As(err, &de))
}

func TestExpiredTokenRefresh(t *testing.T) {
	assert := assert.New(t)

	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.refreshSession":
			if r.Header.Get("Authorization") != "Bearer refresh1" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintln(w, `{"error":"InvalidToken"}`)
				return
			}
			refreshes++
			json.NewEncoder(w).Encode(map[string]string{
				"did":        "did:plc:bot",
				"handle":     "bot.example.com",
				"accessJwt":  "access2",
				"refreshJwt": "refresh2",
			})
		case "/xrpc/com.example.get":
			if r.Header.Get("Authorization") != "Bearer access2" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintln(w, `{"error":"ExpiredToken","message":"token has expired"}`)
				return
			}
			fmt.Fprintln(w, `{"status":"success"}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetAuth(&AuthInfo{AccessJwt: "access1", RefreshJwt: "refresh1", Did: "did:plc:bot"})

	var out map[string]string
	assert.NoError(c.Do(context.Background(), Query, "com.example.get", nil, nil, &out))
	assert.Equal("success", out["status"])
	assert.Equal(1, refreshes)
	assert.Equal("access2", c.Auth().AccessJwt)
	assert.Equal("refresh2", c.Auth().RefreshJwt)
}
