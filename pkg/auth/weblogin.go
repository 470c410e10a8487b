package auth

import "context"

// WebLoginSession presents an authorization URL to the user, typically in a
// system browser tab, and hands back the callback URL the provider
// redirected to. Implementations return autherr.ErrCancelled when the user
// dismisses the surface without completing login.
type WebLoginSession interface {
	Present(ctx context.Context, authorizationURL string) (callbackURL string, err error)
}

// LoginOption tunes a single login attempt.
type LoginOption func(*loginOptions)

type loginOptions struct {
	mfa       string
	assertion string
	xDomainID string
}

// WithMFA requests a specific authentication method, forwarded as
// acr_values and enforced against the id-token amr claim.
func WithMFA(method string) LoginOption {
	return func(o *loginOptions) { o.mfa = method }
}

// WithAssertion attaches a login hint assertion to the authorization
// request, used for simplified login from an existing session.
func WithAssertion(assertion string) LoginOption {
	return func(o *loginOptions) { o.assertion = assertion }
}

// WithXDomainID correlates the attempt with a cross-domain browser session.
func WithXDomainID(id string) LoginOption {
	return func(o *loginOptions) { o.xDomainID = id }
}
