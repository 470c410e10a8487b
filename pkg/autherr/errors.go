// Package autherr defines the error taxonomy shared by the authenticator,
// the token endpoint client and the ID token validator. Errors carry a stable
// Code so callers can match on the failure class with errors.Is while the
// wrapped cause stays inspectable through errors.Unwrap.
package autherr

import (
	"errors"
	"fmt"
)

// Code identifies a failure class. The RFC 6749 token endpoint codes share the
// namespace with the client-side flow and validation codes.
type Code string

const (
	// RFC6749 token endpoint error codes.
	CodeInvalidRequest       Code = "invalid_request"
	CodeInvalidClient        Code = "invalid_client"
	CodeInvalidGrant         Code = "invalid_grant"
	CodeUnauthorizedClient   Code = "unauthorized_client"
	CodeUnsupportedGrantType Code = "unsupported_grant_type"
	CodeInvalidScope         Code = "invalid_scope"
	CodeAccessDenied         Code = "access_denied"
	CodeServerError          Code = "server_error"

	// Login flow codes.
	CodePreviousSessionInProgress Code = "previous_session_in_progress"
	CodeNoLoginSession            Code = "no_login_session_to_complete"
	CodeUnsolicitedResponse       Code = "unsolicited_response"
	CodeInvalidRedirectURIScheme  Code = "invalid_redirect_uri_scheme"
	CodeInvalidAuthState          Code = "invalid_auth_state"
	CodeMissingURL                Code = "missing_url"
	CodeMissingCode               Code = "missing_code"
	CodeNotLoggedIn               Code = "not_logged_in"
	CodeCancelled                 Code = "cancelled"
	CodeLoginFailed               Code = "login_failed"
	CodeUserLoggedOut             Code = "user_logged_out"

	// ID token validation codes.
	CodeMissingIDToken    Code = "missing_id_token"
	CodeUnknownKeyID      Code = "unknown_key_id"
	CodeInvalidSignature  Code = "invalid_signature"
	CodeTokenExpired      Code = "token_expired"
	CodeInvalidIssuer     Code = "invalid_issuer"
	CodeInvalidAudience   Code = "invalid_audience"
	CodeInvalidNonce      Code = "invalid_nonce"
	CodeMissingAMRValue   Code = "missing_expected_amr_value"
	CodeClaimsDecode      Code = "claims_decode"
	CodeUnsupportedSigAlg Code = "unsupported_signing_algorithm"
)

// Error is the concrete error type for every failure the module raises itself.
type Error struct {
	Err         Code
	Description string
	Cause       error
}

func (e *Error) Error() string {
	switch {
	case e.Description != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Err, e.Description, e.Cause)
	case e.Description != "":
		return fmt.Sprintf("%s: %s", e.Err, e.Description)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Err, e.Cause)
	default:
		return string(e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code, so the predefined values below
// work as targets for errors.Is regardless of description or cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}

	return e.Err == other.Err
}

// New builds an error with a code and a human readable description.
func New(code Code, description string) *Error {
	return &Error{Err: code, Description: description}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, cause error) *Error {
	return &Error{Err: code, Cause: cause}
}

// OAuth builds an error from the error/error_description pair of an OAuth
// authorization or token response.
func OAuth(code, description string) *Error {
	return &Error{Err: Code(code), Description: description}
}

// CodeOf returns the code of err if it is (or wraps) an *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Err, true
	}

	return "", false
}

// Predefined flow errors.
var (
	ErrPreviousSessionInProgress = New(CodePreviousSessionInProgress, "a login session is already in progress")
	ErrNoLoginSession            = New(CodeNoLoginSession, "no login session to complete")
	ErrUnsolicitedResponse       = New(CodeUnsolicitedResponse, "state in callback does not match the pending login attempt")
	ErrInvalidRedirectURIScheme  = New(CodeInvalidRedirectURIScheme, "callback URL does not match the configured redirect URI")
	ErrInvalidAuthState          = New(CodeInvalidAuthState, "could not generate login attempt secrets")
	ErrMissingURL                = New(CodeMissingURL, "no callback URL was produced")
	ErrMissingCode               = New(CodeMissingCode, "callback URL carries no authorization code")
	ErrNotLoggedIn               = New(CodeNotLoggedIn, "no user is logged in")
	ErrCancelled                 = New(CodeCancelled, "login was cancelled")
	ErrUserLoggedOut             = New(CodeUserLoggedOut, "refresh attempted while logged out")
)

// Predefined validation errors.
var (
	ErrMissingIDToken  = New(CodeMissingIDToken, "token response carries no id_token")
	ErrUnknownKeyID    = New(CodeUnknownKeyID, "no signing key matches the token key id")
	ErrTokenExpired    = New(CodeTokenExpired, "id token has expired")
	ErrInvalidIssuer   = New(CodeInvalidIssuer, "id token issuer does not match the configured environment")
	ErrInvalidAudience = New(CodeInvalidAudience, "id token audience does not contain the client id")
	ErrInvalidNonce    = New(CodeInvalidNonce, "id token nonce missing or different from the login attempt nonce")
	ErrMissingAMRValue = New(CodeMissingAMRValue, "id token amr does not contain the expected value")
)
