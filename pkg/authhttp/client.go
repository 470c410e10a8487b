// Package authhttp wraps an HTTP client with bearer authentication: it
// injects the current access token, refreshes ahead of expiry and retries a
// request exactly once after a 401 triggered refresh.
package authhttp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

// expiryBuffer is how close to expiry an access token may get before a
// request triggers a pre-flight refresh.
const expiryBuffer = 30 * time.Second

// TokenSource supplies the current bearer token and refreshes it on demand.
type TokenSource interface {
	// Token returns the current access token and its expiry, or ok=false
	// when no user is logged in.
	Token() (accessToken string, expiresAt time.Time, ok bool)

	// Refresh replaces the token set. Implementations coalesce concurrent
	// calls into one upstream refresh.
	Refresh(ctx context.Context) error
}

// Client decorates an http.Client with bearer authentication. Requests made
// while logged out are forwarded untouched.
type Client struct {
	source TokenSource
	base   *http.Client

	// now is replaced in tests.
	now func() time.Time
}

func NewClient(source TokenSource, base *http.Client) *Client {
	if base == nil {
		base = http.DefaultClient
	}

	return &Client{source: source, base: base, now: time.Now}
}

// Do sends the request with the current access token. A token within the
// expiry buffer is refreshed first; a failed pre-flight refresh is logged and
// the stale token tried anyway. On a 401 the token set is refreshed and the
// request replayed exactly once; the retry's response is returned as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, expiresAt, ok := c.source.Token()
	if !ok {
		return c.base.Do(req)
	}

	if c.now().After(expiresAt.Add(-expiryBuffer)) {
		if err := c.source.Refresh(ctx); err != nil {
			slogctx.Warn(ctx, "Pre-flight token refresh failed", "error", err)
		}
		token, _, ok = c.source.Token()
		if !ok {
			return c.base.Do(req)
		}
	}

	resp, err := c.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	slogctx.Info(ctx, "Request was rejected with 401, refreshing tokens", "url", req.URL.String())

	if err := c.source.Refresh(ctx); err != nil {
		return resp, nil
	}
	token, _, ok = c.source.Token()
	if !ok {
		return resp, nil
	}

	retry, err := c.rewind(req)
	if err != nil {
		return resp, nil
	}
	resp.Body.Close()

	return c.send(retry, token)
}

// send dispatches a copy of the request so the caller's request headers stay
// untouched across the retry.
func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	return c.base.Do(r)
}

// rewind rebuilds the request body for a replay. Requests without a body
// replay directly; bodies need GetBody, which net/http sets for the common
// reader types.
func (c *Client) rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed")
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}

	r := req.Clone(req.Context())
	r.Body = body

	return r, nil
}
