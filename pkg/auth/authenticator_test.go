package auth_test

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schibsted/account-sdk-go/pkg/auth"
	"github.com/schibsted/account-sdk-go/pkg/autherr"
	"github.com/schibsted/account-sdk-go/pkg/session"
	"github.com/schibsted/account-sdk-go/pkg/session/inmem"
)

func TestAuthenticator_Login(t *testing.T) {
	provider := startProvider(t)
	store := inmem.NewStore()
	a := auth.New(t.Context(), provider.clientConfig(), store)

	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())

	user, err := a.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)

	assert.Equal(t, auth.StateLoggedIn, a.State().Kind())
	assert.Equal(t, "sdrn:schibsted-pre:user:"+testUserID, user.SDRN)
	assert.Equal(t, testUserID, user.UserID())
	assert.Equal(t, testSubject, user.UUID())
	assert.Equal(t, "at-1", user.Tokens.AccessToken)

	// The session is persisted under the client id.
	persisted, ok, err := session.NewStorage(store).Load(t.Context(), testClientID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "at-1", persisted.UserTokens.AccessToken)
	assert.Equal(t, "rt-1", persisted.UserTokens.RefreshToken)
}

func TestAuthenticator_Login_WithMFA(t *testing.T) {
	provider := startProvider(t)
	provider.mu.Lock()
	provider.amr = []string{"otp"}
	provider.mu.Unlock()
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	user, err := a.Login(t.Context(), browserLogin{provider: provider}, auth.WithMFA("otp"))
	require.NoError(t, err)
	assert.True(t, user.Tokens.IDTokenClaims.HasAMR("otp"))
}

func TestAuthenticator_Login_MFANotSatisfied(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	_, err := a.Login(t.Context(), browserLogin{provider: provider}, auth.WithMFA("otp"))

	assert.ErrorIs(t, err, autherr.ErrMissingAMRValue)
	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
}

func TestAuthenticator_Login_SecondAttemptRejected(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	inner := browserLogin{provider: provider}
	web := presentFunc(func(ctx context.Context, authorizationURL string) (string, error) {
		// A second attempt while this one is in flight must be rejected.
		_, err := a.Login(ctx, browserLogin{provider: provider})
		assert.ErrorIs(t, err, autherr.ErrPreviousSessionInProgress)

		return inner.Present(ctx, authorizationURL)
	})

	_, err := a.Login(t.Context(), web)
	require.NoError(t, err)
	assert.Equal(t, auth.StateLoggedIn, a.State().Kind())
}

func TestAuthenticator_Login_ConcurrentAttempts(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	const attempts = 8

	// The winning attempt parks in the web surface so it holds the login slot
	// while every other goroutine tries to claim it.
	gate := make(chan struct{})
	var presented atomic.Int32
	web := presentFunc(func(context.Context, string) (string, error) {
		presented.Add(1)
		<-gate
		return "", autherr.ErrCancelled
	})

	errs := make(chan error, attempts)
	for range attempts {
		go func() {
			_, err := a.Login(context.Background(), web)
			errs <- err
		}()
	}

	for range attempts - 1 {
		require.ErrorIs(t, <-errs, autherr.ErrPreviousSessionInProgress)
	}
	close(gate)
	assert.ErrorIs(t, <-errs, autherr.ErrCancelled)

	assert.EqualValues(t, 1, presented.Load(), "only one attempt may reach the web surface")
	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
}

func TestAuthenticator_Login_Cancelled(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	_, err := a.Login(t.Context(), browserLogin{provider: provider, err: autherr.ErrCancelled})

	assert.ErrorIs(t, err, autherr.ErrCancelled)
	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())

	// The authenticator accepts a new attempt afterwards.
	_, err = a.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)
}

func TestAuthenticator_Login_CallbackFailures(t *testing.T) {
	tests := []struct {
		name     string
		callback func(authURL *url.URL) string
		wantErr  error
	}{
		{
			name:     "empty callback",
			callback: func(*url.URL) string { return "" },
			wantErr:  autherr.ErrMissingURL,
		},
		{
			name: "wrong scheme",
			callback: func(u *url.URL) string {
				return "com.evil.app:/login?code=code-1&state=" + u.Query().Get("state")
			},
			wantErr: autherr.ErrInvalidRedirectURIScheme,
		},
		{
			name: "cancel path",
			callback: func(*url.URL) string {
				return testRedirectURI + "/cancel"
			},
			wantErr: autherr.ErrCancelled,
		},
		{
			name: "error parameter",
			callback: func(u *url.URL) string {
				return testRedirectURI + "?error=access_denied&state=" + u.Query().Get("state")
			},
			wantErr: autherr.New(autherr.CodeAccessDenied, ""),
		},
		{
			name: "missing code",
			callback: func(u *url.URL) string {
				return testRedirectURI + "?state=" + u.Query().Get("state")
			},
			wantErr: autherr.ErrMissingCode,
		},
		{
			name: "state mismatch",
			callback: func(*url.URL) string {
				return testRedirectURI + "?code=code-1&state=someone-elses-state"
			},
			wantErr: autherr.ErrUnsolicitedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := startProvider(t)
			a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

			_, err := a.Login(t.Context(), browserLogin{provider: provider, callback: tt.callback})

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
		})
	}
}

func TestAuthenticator_Login_ExchangeFailure(t *testing.T) {
	provider := startProvider(t)
	provider.mu.Lock()
	provider.exchangeErr = "invalid_request"
	provider.mu.Unlock()
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	_, err := a.Login(t.Context(), browserLogin{provider: provider})

	code, ok := autherr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, autherr.CodeLoginFailed, code)
	assert.ErrorIs(t, err, autherr.New(autherr.CodeInvalidRequest, ""))
	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
}

func TestAuthenticator_Login_WrongNonce(t *testing.T) {
	provider := startProvider(t)
	provider.mu.Lock()
	provider.nonceOverride = "attacker-controlled"
	provider.mu.Unlock()
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	_, err := a.Login(t.Context(), browserLogin{provider: provider})

	assert.ErrorIs(t, err, autherr.ErrInvalidNonce)
	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
}

func TestAuthenticator_LoginWithCode(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	user, err := a.LoginWithCode(t.Context(), "code-1", "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, auth.StateLoggedIn, a.State().Kind())
	assert.Equal(t, testUserID, user.UserID())
}

func TestAuthenticator_HandleAuthenticationResponse_NoAttempt(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	_, err := a.HandleAuthenticationResponse(t.Context(), testRedirectURI+"?code=code-1&state=s")

	assert.ErrorIs(t, err, autherr.ErrNoLoginSession)
}

func TestAuthenticator_ResumesPersistedSession(t *testing.T) {
	provider := startProvider(t)
	store := inmem.NewStore()

	// A previous process logged in and persisted its session.
	first := auth.New(t.Context(), provider.clientConfig(), store)
	_, err := first.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)

	second := auth.New(t.Context(), provider.clientConfig(), store)

	user, ok := second.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, testUserID, user.UserID())
	assert.Equal(t, "sdrn:schibsted-pre:user:"+testUserID, user.SDRN)
}

func TestAuthenticator_CorruptPersistedSession(t *testing.T) {
	provider := startProvider(t)
	store := inmem.NewStore(inmem.WithValue(testClientID, []byte("{not json")))

	a := auth.New(t.Context(), provider.clientConfig(), store)

	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
}

func TestAuthenticator_RefreshTokens(t *testing.T) {
	provider := startProvider(t)
	store := inmem.NewStore()
	a := auth.New(t.Context(), provider.clientConfig(), store)

	_, err := a.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)

	user, err := a.RefreshTokens(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "at-refreshed-1", user.Tokens.AccessToken)
	assert.Equal(t, "rt-refreshed-1", user.Tokens.RefreshToken)
	// Claims are carried forward when the refresh response has no id token.
	assert.Equal(t, testUserID, user.UserID())

	// The refreshed tokens replace the persisted session.
	persisted, ok, err := session.NewStorage(store).Load(t.Context(), testClientID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "at-refreshed-1", persisted.UserTokens.AccessToken)
}

func TestAuthenticator_RefreshTokens_WhileLoggedOut(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	_, err := a.RefreshTokens(t.Context())

	assert.ErrorIs(t, err, autherr.ErrUserLoggedOut)
}

func TestAuthenticator_RefreshTokens_InvalidGrantLogsOut(t *testing.T) {
	provider := startProvider(t)
	store := inmem.NewStore()
	a := auth.New(t.Context(), provider.clientConfig(), store)

	_, err := a.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)

	provider.mu.Lock()
	provider.refreshErr = "invalid_grant"
	provider.mu.Unlock()

	_, err = a.RefreshTokens(t.Context())

	assert.ErrorIs(t, err, autherr.New(autherr.CodeInvalidGrant, ""))
	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())

	// The persisted session is gone as well.
	_, ok, err := session.NewStorage(store).Load(t.Context(), testClientID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticator_RefreshTokens_Coalesced(t *testing.T) {
	provider := startProvider(t)
	a := auth.New(t.Context(), provider.clientConfig(), inmem.NewStore())

	_, err := a.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)

	gate := make(chan struct{})
	provider.mu.Lock()
	provider.refreshesGate = gate
	provider.mu.Unlock()

	const callers = 5

	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := a.RefreshTokens(context.Background())
			errs[i] = err
			if err == nil {
				tokens[i] = user.Tokens.AccessToken
			}
		}()
	}

	// Give every caller time to join the in-flight refresh, then let the
	// provider answer.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	provider.mu.Lock()
	refreshes := provider.refreshes
	provider.mu.Unlock()
	assert.Equal(t, 1, refreshes, "concurrent refreshes must collapse into one call")

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-refreshed-1", tokens[i])
	}
}

func TestAuthenticator_Logout(t *testing.T) {
	provider := startProvider(t)
	store := inmem.NewStore()
	a := auth.New(t.Context(), provider.clientConfig(), store)

	_, err := a.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)

	a.Logout(t.Context())

	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
	_, ok, err := session.NewStorage(store).Load(t.Context(), testClientID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Logging out again is harmless.
	a.Logout(t.Context())
	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
}

func TestAuthenticator_Logout_StorageFailureStillLogsOut(t *testing.T) {
	provider := startProvider(t)
	store := inmem.NewStore(inmem.WithRemoveError(assert.AnError))
	a := auth.New(t.Context(), provider.clientConfig(), store)

	_, err := a.Login(t.Context(), browserLogin{provider: provider})
	require.NoError(t, err)

	a.Logout(t.Context())

	assert.Equal(t, auth.StateLoggedOut, a.State().Kind())
}
