// Package oauth implements the authorization-code-with-PKCE wire protocol:
// authorization URL construction and the form-encoded token endpoint calls.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/schibsted/account-sdk-go/pkg/autherr"
)

const scopeDefault = "openid offline_access"

// Config holds the endpoints and client identity for one environment.
type Config struct {
	ClientID              string
	RedirectURI           string
	AuthorizationEndpoint string
	TokenEndpoint         string
}

// AuthorizationRequest is the per-attempt input to the authorization URL.
// It is a pure function of configuration plus these values, so URL
// construction is deterministic and testable without a network.
type AuthorizationRequest struct {
	State         string
	Nonce         string
	CodeChallenge string

	// MFA selects acr_values; when empty the request carries
	// prompt=select_account instead.
	MFA       string
	Assertion string
	XDomainID string
}

// AuthorizationURL builds the URL the web login collaborator navigates to.
func AuthorizationURL(cfg Config, r AuthorizationRequest) (string, error) {
	u, err := url.Parse(cfg.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("parsing authorisation endpoint url: %w", err)
	}

	q := u.Query()
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", scopeDefault)
	q.Set("state", r.State)
	q.Set("nonce", r.Nonce)
	q.Set("code_challenge", r.CodeChallenge)
	q.Set("code_challenge_method", "S256")
	if r.MFA != "" {
		q.Set("acr_values", r.MFA)
	} else {
		q.Set("prompt", "select_account")
	}
	if r.Assertion != "" {
		q.Set("assertion", r.Assertion)
	}
	if r.XDomainID != "" {
		q.Set("x_domain_id", r.XDomainID)
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

// TokenResponse is the token endpoint's JSON body. A refresh response may
// omit id_token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExpiresAt converts the relative expires_in into an absolute instant,
// anchored at issuance time.
func (t TokenResponse) ExpiresAt(issued time.Time) time.Time {
	return issued.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Client talks to the token endpoint. It deliberately bypasses any
// authenticated request wrapper: a 401 from the token endpoint is an ordinary
// error here, never a refresh trigger, to rule out refresh loops against the
// endpoint that performs the refresh.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{cfg: cfg, httpClient: httpClient}
}

func (c *Client) Config() Config { return c.cfg }

// ExchangeCode trades an authorization code plus its PKCE verifier for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", c.cfg.ClientID)
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.RedirectURI)
	data.Set("code_verifier", codeVerifier)

	return c.post(ctx, data)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", c.cfg.ClientID)
	data.Set("refresh_token", refreshToken)

	return c.post(ctx, data)
}

func (c *Client) post(ctx context.Context, data url.Values) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-OIDC", "v1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenResponse{}, c.errorFromResponse(ctx, resp)
	}

	var tokens TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return TokenResponse{}, fmt.Errorf("decoding response: %w", err)
	}

	return tokens, nil
}

// errorFromResponse maps a non-200 token endpoint response. A recognised
// OAuth error body becomes an autherr with the server's code; anything else
// keeps the captured body for diagnostics.
func (c *Client) errorFromResponse(ctx context.Context, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var oauthErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error != "" {
		slogctx.Debug(ctx, "Token endpoint returned an OAuth error", "code", oauthErr.Error)
		return autherr.OAuth(oauthErr.Error, oauthErr.Description)
	}

	return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
}
