// Package auth implements the client-side login lifecycle: the authenticator
// state machine, web-based authorization-code login with PKCE, token refresh
// and session persistence.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/schibsted/account-sdk-go/pkg/autherr"
	"github.com/schibsted/account-sdk-go/pkg/authhttp"
	"github.com/schibsted/account-sdk-go/pkg/idtoken"
	"github.com/schibsted/account-sdk-go/pkg/jwks"
	"github.com/schibsted/account-sdk-go/pkg/oauth"
	"github.com/schibsted/account-sdk-go/pkg/pkce"
	"github.com/schibsted/account-sdk-go/pkg/session"
)

// Authenticator owns the login state for one client. All transitions are
// serialized on the internal mutex; concurrent refreshes collapse into a
// single token endpoint call.
type Authenticator struct {
	cfg        ClientConfig
	oauth      *oauth.Client
	validator  *idtoken.Validator
	storage    *session.Storage
	source     pkce.Source
	httpClient *http.Client
	authed     *authhttp.Client

	mu      sync.Mutex
	state   State
	pending *authState

	refresh singleflight.Group

	// now is replaced in tests.
	now func() time.Time
}

type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the HTTP client used for every outbound call.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New builds an authenticator and resumes a previously persisted session if
// one is stored for the client id. A session that cannot be read or decoded
// leaves the authenticator logged out; resuming is best effort.
func New(ctx context.Context, cfg ClientConfig, store session.Store, opts ...Option) *Authenticator {
	o := options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}

	oauthClient := oauth.NewClient(oauth.Config{
		ClientID:              cfg.ClientID,
		RedirectURI:           cfg.RedirectURI,
		AuthorizationEndpoint: cfg.authorizationEndpoint(),
		TokenEndpoint:         cfg.tokenEndpoint(),
	}, o.httpClient)

	keys := jwks.NewProvider(cfg.jwksEndpoint(), o.httpClient)

	a := &Authenticator{
		cfg:        cfg,
		oauth:      oauthClient,
		validator:  idtoken.NewValidator(cfg.issuer(), cfg.ClientID, keys),
		storage:    session.NewStorage(store),
		httpClient: o.httpClient,
		state:      loggedOut(),
		now:        time.Now,
	}
	a.authed = authhttp.NewClient(tokenSource{a}, o.httpClient)

	sess, ok, err := a.storage.Load(ctx, cfg.ClientID)
	switch {
	case err != nil:
		slogctx.Debug(ctx, "Could not resume persisted session", "client_id", cfg.ClientID, "error", err)
	case ok:
		a.state = loggedIn(a.userFromTokens(sess.UserTokens))
		slogctx.Debug(ctx, "Resumed persisted session", "client_id", cfg.ClientID)
	}

	return a
}

// State returns the current lifecycle position.
func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// CurrentUser returns the logged-in user, or ok=false otherwise.
func (a *Authenticator) CurrentUser() (*User, bool) {
	return a.State().User()
}

// Login runs a full web login round trip: it generates the attempt secrets,
// presents the authorization URL through the collaborator and completes the
// login from the callback URL it returns. Only one attempt may be in flight
// per authenticator.
func (a *Authenticator) Login(ctx context.Context, web WebLoginSession, opts ...LoginOption) (*User, error) {
	o := loginOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	attempt, err := a.beginLogin(o)
	if err != nil {
		return nil, err
	}

	authURL, err := oauth.AuthorizationURL(a.oauth.Config(), oauth.AuthorizationRequest{
		State:         attempt.state,
		Nonce:         attempt.nonce,
		CodeChallenge: pkce.Challenge(attempt.codeVerifier),
		MFA:           o.mfa,
		Assertion:     o.assertion,
		XDomainID:     o.xDomainID,
	})
	if err != nil {
		a.failLogin()
		return nil, autherr.Wrap(autherr.CodeLoginFailed, err)
	}

	slogctx.Info(ctx, "Starting web login", "client_id", a.cfg.ClientID, "attempt_id", attempt.id)

	callbackURL, err := web.Present(ctx, authURL)
	if err != nil {
		a.failLogin()
		if errors.Is(err, autherr.ErrCancelled) || errors.Is(err, context.Canceled) {
			return nil, autherr.ErrCancelled
		}

		return nil, autherr.Wrap(autherr.CodeLoginFailed, err)
	}
	if callbackURL == "" {
		a.failLogin()
		return nil, autherr.ErrMissingURL
	}

	return a.HandleAuthenticationResponse(ctx, callbackURL)
}

// LoginWithCode completes a login from an authorization code obtained out of
// band, together with the PKCE verifier that protected it. The id token is
// validated without a nonce expectation since no attempt state exists.
func (a *Authenticator) LoginWithCode(ctx context.Context, code, codeVerifier string) (*User, error) {
	a.mu.Lock()
	if a.state.kind == StateLoggingIn {
		a.mu.Unlock()
		return nil, autherr.ErrPreviousSessionInProgress
	}
	a.state = loggingIn()
	a.mu.Unlock()

	user, err := a.completeLogin(ctx, code, codeVerifier, idtoken.Expectations{})
	if err != nil {
		a.failLogin()
		return nil, autherr.Wrap(autherr.CodeLoginFailed, err)
	}

	a.settleLogin(user)
	slogctx.Info(ctx, "Logged in from authorization code", "client_id", a.cfg.ClientID, "sdrn", user.SDRN)

	return user, nil
}

// HandleAuthenticationResponse settles the pending login attempt from the
// callback URL the provider redirected to.
func (a *Authenticator) HandleAuthenticationResponse(ctx context.Context, callbackURL string) (*User, error) {
	a.mu.Lock()
	attempt := a.pending
	a.mu.Unlock()
	if attempt == nil {
		return nil, autherr.ErrNoLoginSession
	}

	u, err := url.Parse(callbackURL)
	if err != nil {
		a.failLogin()
		return nil, autherr.Wrap(autherr.CodeLoginFailed, err)
	}
	if !a.matchesRedirectURI(u) {
		a.failLogin()
		return nil, autherr.ErrInvalidRedirectURIScheme
	}
	if strings.Contains(u.Path, "cancel") {
		a.failLogin()
		return nil, autherr.ErrCancelled
	}

	q := u.Query()
	if code := q.Get("error"); code != "" {
		a.failLogin()
		return nil, autherr.OAuth(code, q.Get("error_description"))
	}

	code := q.Get("code")
	if code == "" {
		a.failLogin()
		return nil, autherr.ErrMissingCode
	}
	if q.Get("state") != attempt.state {
		a.failLogin()
		return nil, autherr.ErrUnsolicitedResponse
	}

	user, err := a.completeLogin(ctx, code, attempt.codeVerifier, idtoken.Expectations{
		Nonce: attempt.nonce,
		AMR:   attempt.mfa,
	})
	if err != nil {
		a.failLogin()
		return nil, autherr.Wrap(autherr.CodeLoginFailed, err)
	}

	a.settleLogin(user)
	slogctx.Info(ctx, "Login completed", "client_id", a.cfg.ClientID, "attempt_id", attempt.id, "sdrn", user.SDRN)

	return user, nil
}

// Logout removes the persisted session and transitions to logged out. Removal
// is best effort: a storage failure is logged but never keeps the user
// logged in.
func (a *Authenticator) Logout(ctx context.Context) {
	if err := a.storage.Remove(ctx, a.cfg.ClientID); err != nil {
		slogctx.Warn(ctx, "Could not remove persisted session", "client_id", a.cfg.ClientID, "error", err)
	}

	a.mu.Lock()
	a.state = loggedOut()
	a.pending = nil
	a.mu.Unlock()

	slogctx.Info(ctx, "Logged out", "client_id", a.cfg.ClientID)
}

// RefreshTokens exchanges the refresh token for a new token set, persists it
// and replaces the user's tokens wholesale. Concurrent callers share one
// token endpoint call. A rejected refresh token logs the user out before the
// error is returned.
func (a *Authenticator) RefreshTokens(ctx context.Context) (*User, error) {
	v, err, _ := a.refresh.Do("refresh", func() (any, error) {
		return a.refreshTokens(ctx)
	})
	if err != nil {
		return nil, err
	}

	return v.(*User), nil
}

func (a *Authenticator) refreshTokens(ctx context.Context) (*User, error) {
	a.mu.Lock()
	user, ok := a.state.User()
	a.mu.Unlock()
	if !ok {
		return nil, autherr.ErrUserLoggedOut
	}

	resp, err := a.oauth.Refresh(ctx, user.Tokens.RefreshToken)
	if err != nil {
		if code, ok := autherr.CodeOf(err); ok && code == autherr.CodeInvalidGrant {
			slogctx.Warn(ctx, "Refresh token was rejected, logging out", "client_id", a.cfg.ClientID)
			a.Logout(ctx)
		}

		return nil, err
	}

	tokens := user.Tokens
	tokens.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		tokens.RefreshToken = resp.RefreshToken
	}
	tokens.Expiration = resp.ExpiresAt(a.now())
	if resp.IDToken != "" {
		claims, err := a.validator.Validate(ctx, resp.IDToken, idtoken.Expectations{})
		if err != nil {
			return nil, err
		}
		tokens.IDToken = resp.IDToken
		tokens.IDTokenClaims = claims
	}

	refreshed := a.userFromTokens(tokens)

	if err := a.storage.Save(ctx, session.UserSession{ClientID: a.cfg.ClientID, UserTokens: tokens}); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if current, ok := a.state.User(); ok && current.Equal(refreshed) {
		a.state = loggedIn(refreshed)
	}
	a.mu.Unlock()

	slogctx.Debug(ctx, "Tokens refreshed", "client_id", a.cfg.ClientID, "expiration", tokens.Expiration)

	return refreshed, nil
}

// beginLogin reserves the single login slot. The attempt secrets are generated
// up front so the check for an in-flight attempt and the transition to logging
// in happen in one critical section.
func (a *Authenticator) beginLogin(o loginOptions) (*authState, error) {
	state, err := a.source.State()
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeInvalidAuthState, err)
	}
	nonce, err := a.source.Nonce()
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeInvalidAuthState, err)
	}
	challenge, err := a.source.PKCE()
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeInvalidAuthState, err)
	}

	attempt := &authState{
		id:           uuid.NewString(),
		state:        state,
		nonce:        nonce,
		codeVerifier: challenge.Verifier,
		mfa:          o.mfa,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.kind == StateLoggingIn {
		return nil, autherr.ErrPreviousSessionInProgress
	}
	a.pending = attempt
	a.state = loggingIn()

	return attempt, nil
}

// completeLogin performs the exchange, validation and persistence shared by
// every login variant.
func (a *Authenticator) completeLogin(ctx context.Context, code, codeVerifier string, expected idtoken.Expectations) (*User, error) {
	resp, err := a.oauth.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return nil, err
	}

	claims, err := a.validator.Validate(ctx, resp.IDToken, expected)
	if err != nil {
		return nil, err
	}

	tokens := session.UserTokens{
		AccessToken:   resp.AccessToken,
		RefreshToken:  resp.RefreshToken,
		IDToken:       resp.IDToken,
		IDTokenClaims: claims,
		Expiration:    resp.ExpiresAt(a.now()),
	}

	if err := a.storage.Save(ctx, session.UserSession{ClientID: a.cfg.ClientID, UserTokens: tokens}); err != nil {
		return nil, err
	}

	return a.userFromTokens(tokens), nil
}

func (a *Authenticator) settleLogin(user *User) {
	a.mu.Lock()
	a.state = loggedIn(user)
	a.pending = nil
	a.mu.Unlock()
}

func (a *Authenticator) failLogin() {
	a.mu.Lock()
	a.state = loggedOut()
	a.pending = nil
	a.mu.Unlock()
}

func (a *Authenticator) userFromTokens(tokens session.UserTokens) *User {
	return &User{
		Tokens: tokens,
		SDRN:   a.cfg.SDRN(tokens.IDTokenClaims.UserID),
	}
}

// matchesRedirectURI checks the callback against the configured redirect URI
// on scheme and host. Custom app schemes carry the identifier in the host
// part, https redirects in both.
func (a *Authenticator) matchesRedirectURI(callback *url.URL) bool {
	configured, err := url.Parse(a.cfg.RedirectURI)
	if err != nil {
		return false
	}

	return callback.Scheme == configured.Scheme && callback.Host == configured.Host
}

// tokenSource adapts the authenticator to the authenticated HTTP client.
type tokenSource struct {
	a *Authenticator
}

func (s tokenSource) Token() (string, time.Time, bool) {
	user, ok := s.a.CurrentUser()
	if !ok {
		return "", time.Time{}, false
	}

	return user.Tokens.AccessToken, user.Tokens.Expiration, true
}

func (s tokenSource) Refresh(ctx context.Context) error {
	_, err := s.a.RefreshTokens(ctx)
	return err
}
