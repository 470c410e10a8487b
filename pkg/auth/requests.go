package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/schibsted/account-sdk-go/pkg/autherr"
	"github.com/schibsted/account-sdk-go/pkg/authhttp"
)

// Profile is the subset of the account profile the SDK surfaces. The raw
// envelope payload is kept for callers that need provider-specific fields.
type Profile struct {
	UserID      string `json:"userId"`
	UUID        string `json:"uuid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`

	Raw json.RawMessage `json:"-"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// HTTPClient returns a client that authenticates every request with the
// current user's access token, refreshing transparently ahead of expiry and
// after a 401.
func (a *Authenticator) HTTPClient() *authhttp.Client {
	return a.authed
}

// UserProfile fetches the logged-in user's account profile.
func (a *Authenticator) UserProfile(ctx context.Context) (Profile, error) {
	user, ok := a.CurrentUser()
	if !ok {
		return Profile{}, autherr.ErrNotLoggedIn
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.profileEndpoint(user.UUID()), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("creating request: %w", err)
	}

	data, err := a.doEnveloped(req)
	if err != nil {
		return Profile{}, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	profile.Raw = data

	return profile, nil
}

// OneTimeCode obtains a short-lived code another client can exchange for its
// own session, keyed to that client's id.
func (a *Authenticator) OneTimeCode(ctx context.Context, clientID string) (string, error) {
	return a.sessionExchange(ctx, "code", clientID, "")
}

// WebSessionURL builds a single-use URL that logs the user's browser session
// in on the given web client and then redirects.
func (a *Authenticator) WebSessionURL(ctx context.Context, clientID, redirectURI string) (string, error) {
	code, err := a.sessionExchange(ctx, "session", clientID, redirectURI)
	if err != nil {
		return "", err
	}

	return a.cfg.issuer() + "/session/" + code, nil
}

// FrontendJWT obtains a short-lived JWT scoped for browser frontends acting
// on behalf of the logged-in user.
func (a *Authenticator) FrontendJWT(ctx context.Context) (string, error) {
	if _, ok := a.CurrentUser(); !ok {
		return "", autherr.ErrNotLoggedIn
	}

	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.frontendJWTEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := a.doEnveloped(req)
	if err != nil {
		return "", err
	}

	var payload struct {
		JWT string `json:"jwt"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return payload.JWT, nil
}

func (a *Authenticator) sessionExchange(ctx context.Context, typ, clientID, redirectURI string) (string, error) {
	if _, ok := a.CurrentUser(); !ok {
		return "", autherr.ErrNotLoggedIn
	}

	form := url.Values{}
	form.Set("type", typ)
	form.Set("clientId", clientID)
	if redirectURI != "" {
		form.Set("redirectUri", redirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.sessionExchangeEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := a.doEnveloped(req)
	if err != nil {
		return "", err
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return payload.Code, nil
}

// doEnveloped sends a bearer-authenticated request and unwraps the
// {"data": ...} envelope the account APIs respond with.
func (a *Authenticator) doEnveloped(req *http.Request) (json.RawMessage, error) {
	resp, err := a.authed.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s returned %d: %s", req.URL.Path, resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}

	return env.Data, nil
}
