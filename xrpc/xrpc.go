package xrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

type Client struct {
	// Client is an HTTP client to use. NewClient sets a go-cleanhttp pooled client with a 20s timeout and OTEL
	// instrumented transport.
	Client    *http.Client
	Host      string
	UserAgent string
	// Limiter, if set, is waited on before every request. It is shared by every caller of this client.
	Limiter *rate.Limiter

	authLk sync.RWMutex
	auth   *AuthInfo
}

type AuthInfo struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	Did        string `json:"did"`
}

func NewClient(host string) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = 20 * time.Second
	hc.Transport = otelhttp.NewTransport(hc.Transport)
	return &Client{
		Client: hc,
		Host:   host,
	}
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return cleanhttp.DefaultClient()
	}
	return c.Client
}

func (c *Client) SetAuth(a *AuthInfo) {
	c.authLk.Lock()
	defer c.authLk.Unlock()
	c.auth = a
}

func (c *Client) Auth() *AuthInfo {
	c.authLk.RLock()
	defer c.authLk.RUnlock()
	return c.auth
}

type XRPCRequestType int

const (
	Query = XRPCRequestType(iota)
	Procedure
)

// makeParams converts a map of parameters into a URL-encoded query string, with keys in sorted order.
// Slices of strings are encoded as repeated keys.
func makeParams(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := url.Values{}
	for _, k := range keys {
		switch v := p[k].(type) {
		case []string:
			for _, s := range v {
				params.Add(k, s)
			}
		case nil:
			// omitted
		default:
			params.Add(k, fmt.Sprint(v))
		}
	}
	return params.Encode()
}

// Do performs a single XRPC call. There is no retry here, other than one session refresh when the access token
// has expired; retry policy belongs to the caller.
func (c *Client) Do(ctx context.Context, kind XRPCRequestType, method string, params map[string]any, bodyobj any, out any) error {
	err := c.do(ctx, kind, method, params, bodyobj, out, true)
	var xe *Error
	if asError(err, &xe) && xe.IsExpiredToken() && c.Auth() != nil && c.Auth().RefreshJwt != "" {
		if rerr := c.RefreshSession(ctx); rerr != nil {
			return fmt.Errorf("refreshing expired session: %w", rerr)
		}
		return c.do(ctx, kind, method, params, bodyobj, out, true)
	}
	return err
}

func (c *Client) do(ctx context.Context, kind XRPCRequestType, method string, params map[string]any, bodyobj any, out any, useAccess bool) error {
	var body io.Reader
	if bodyobj != nil {
		b, err := json.Marshal(bodyobj)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	var m string
	switch kind {
	case Query:
		m = http.MethodGet
	case Procedure:
		m = http.MethodPost
	default:
		return fmt.Errorf("unsupported request kind: %d", kind)
	}

	var paramStr string
	if len(params) > 0 {
		paramStr = "?" + makeParams(params)
	}

	req, err := http.NewRequestWithContext(ctx, m, c.Host+"/xrpc/"+method+paramStr, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if bodyobj != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	} else {
		req.Header.Set("User-Agent", "magpie/"+versioninfo.Short())
	}
	if a := c.Auth(); a != nil {
		tok := a.AccessJwt
		if !useAccess {
			tok = a.RefreshJwt
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := c.getClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var xe XRPCError
		if err := json.NewDecoder(resp.Body).Decode(&xe); err != nil {
			return errorFromHTTPResponse(resp, fmt.Errorf("failed to decode xrpc error message: %w", err))
		}
		return errorFromHTTPResponse(resp, &xe)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &DecodeError{Method: method, Err: err}
		}
	}
	return nil
}

type refreshOutput struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	Did        string `json:"did"`
}

// RefreshSession swaps the refresh token for a new access/refresh pair.
func (c *Client) RefreshSession(ctx context.Context) error {
	prior := c.Auth()
	var out refreshOutput
	if err := c.do(ctx, Procedure, "com.atproto.server.refreshSession", nil, nil, &out, false); err != nil {
		return err
	}

	c.authLk.Lock()
	defer c.authLk.Unlock()
	// another caller already refreshed
	if c.auth != prior {
		return nil
	}
	c.auth = &AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	return nil
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	r := &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
	}
	if resp.Header.Get("ratelimit-limit") != "" {
		r.Ratelimit = &RatelimitInfo{
			Policy: resp.Header.Get("ratelimit-policy"),
		}
		if n, err := strconv.ParseInt(resp.Header.Get("ratelimit-reset"), 10, 64); err == nil {
			r.Ratelimit.Reset = time.Unix(n, 0)
		}
		if n, err := strconv.ParseInt(resp.Header.Get("ratelimit-limit"), 10, 64); err == nil {
			r.Ratelimit.Limit = int(n)
		}
		if n, err := strconv.ParseInt(resp.Header.Get("ratelimit-remaining"), 10, 64); err == nil {
			r.Ratelimit.Remaining = int(n)
		}
	}
	return r
}
