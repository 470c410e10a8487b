package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/schibsted/account-sdk-go/pkg/auth"
	"github.com/schibsted/account-sdk-go/pkg/pkce"
)

const (
	testClientID    = "my-client-id"
	testRedirectURI = "com.example.app:/login"
	testUserID      = "12345"
	testSubject     = "uuid-1234"
)

// fakeProvider emulates the identity provider: it serves the key set, mints
// real RS256 id tokens and answers token endpoint calls.
type fakeProvider struct {
	t       *testing.T
	server  *httptest.Server
	private *rsa.PrivateKey
	signer  jose.Signer

	mu            sync.Mutex
	api           http.Handler
	nonce         string
	challenge     string
	nonceOverride string
	amr           []string
	exchangeErr   string
	refreshErr    string
	refreshesGate chan struct{}
	exchanges     int
	refreshes     int
}

func startProvider(t *testing.T) *fakeProvider {
	t.Helper()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.RS256,
		Key:       jose.JSONWebKey{Key: private, KeyID: "test-key-1"},
	}, nil)
	require.NoError(t, err)

	p := &fakeProvider{t: t, private: private, signer: signer}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)

	return p
}

func (p *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/oauth/jwks":
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key: &p.private.PublicKey, KeyID: "test-key-1", Algorithm: "RS256", Use: "sig",
		}}})

	case "/oauth/token":
		require.NoError(p.t, r.ParseForm())

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			p.handleExchange(w, r)
		case "refresh_token":
			p.handleRefresh(w)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}

	default:
		p.mu.Lock()
		api := p.api
		p.mu.Unlock()
		if api != nil {
			api.ServeHTTP(w, r)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *fakeProvider) handleExchange(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.exchanges++
	failure := p.exchangeErr
	nonce := p.nonce
	challenge := p.challenge
	if p.nonceOverride != "" {
		nonce = p.nonceOverride
	}
	p.mu.Unlock()

	if failure != "" {
		writeOAuthError(w, failure)
		return
	}

	// The submitted verifier must hash to the challenge sent with the
	// authorization request.
	if challenge != "" {
		require.Equal(p.t, challenge, pkce.Challenge(r.PostForm.Get("code_verifier")))
	}

	p.writeTokens(w, "at-1", "rt-1", p.mintIDToken(nonce))
}

func (p *fakeProvider) handleRefresh(w http.ResponseWriter) {
	p.mu.Lock()
	p.refreshes++
	n := p.refreshes
	failure := p.refreshErr
	gate := p.refreshesGate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failure != "" {
		writeOAuthError(w, failure)
		return
	}

	p.writeTokens(w, fmt.Sprintf("at-refreshed-%d", n), fmt.Sprintf("rt-refreshed-%d", n), "")
}

func (p *fakeProvider) writeTokens(w http.ResponseWriter, access, refresh, idToken string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"id_token":      idToken,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func (p *fakeProvider) mintIDToken(nonce string) string {
	claims := map[string]any{
		"iss":            p.server.URL,
		"sub":            testSubject,
		"legacy_user_id": testUserID,
		"aud":            testClientID,
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	p.mu.Lock()
	amr := p.amr
	p.mu.Unlock()
	if len(amr) > 0 {
		claims["amr"] = amr
	}

	raw, err := jwt.Signed(p.signer).Claims(claims).Serialize()
	require.NoError(p.t, err)

	return raw
}

func (p *fakeProvider) observeAuthorization(q url.Values) {
	p.mu.Lock()
	p.nonce = q.Get("nonce")
	p.challenge = q.Get("code_challenge")
	p.mu.Unlock()
}

func (p *fakeProvider) clientConfig() auth.ClientConfig {
	return auth.ClientConfig{
		Environment: auth.EnvPre,
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
		Issuer:      p.server.URL,
	}
}

// browserLogin emulates the web surface: it captures state and nonce from the
// authorization URL and returns the provider's redirect.
type browserLogin struct {
	provider *fakeProvider

	err      error
	callback func(authURL *url.URL) string
}

func (b browserLogin) Present(_ context.Context, authorizationURL string) (string, error) {
	if b.err != nil {
		return "", b.err
	}

	u, err := url.Parse(authorizationURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	b.provider.observeAuthorization(q)

	if b.callback != nil {
		return b.callback(u), nil
	}

	return testRedirectURI + "?code=code-1&state=" + url.QueryEscape(q.Get("state")), nil
}

// presentFunc adapts a function to the web login collaborator.
type presentFunc func(ctx context.Context, authorizationURL string) (string, error)

func (f presentFunc) Present(ctx context.Context, authorizationURL string) (string, error) {
	return f(ctx, authorizationURL)
}
