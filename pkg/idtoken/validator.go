// Package idtoken validates signed ID tokens: RS256 signature against a
// resolved JWKS key plus issuer, audience, expiry, nonce and AMR claims.
package idtoken

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/schibsted/account-sdk-go/pkg/autherr"
)

// KeyProvider resolves a signing key by its key id.
type KeyProvider interface {
	GetKey(ctx context.Context, kid string) (*jose.JSONWebKey, error)
}

// Expectations carries the per-attempt values a token must echo back. Nonce is
// empty for refresh-derived tokens; AMR is set only for multi-factor logins.
type Expectations struct {
	Nonce string
	AMR   string
}

// Validator checks tokens against one configured issuer and client id.
// Validation is a pure function of its inputs: no caching, every call
// re-verifies the signature.
type Validator struct {
	issuer   string
	clientID string
	keys     KeyProvider

	// now is replaced in tests.
	now func() time.Time
}

func NewValidator(issuer, clientID string, keys KeyProvider) *Validator {
	return &Validator{
		issuer:   issuer,
		clientID: clientID,
		keys:     keys,
		now:      time.Now,
	}
}

// Validate verifies the compact JWS string and returns its claims.
func (v *Validator) Validate(ctx context.Context, raw string, expected Expectations) (Claims, error) {
	if raw == "" {
		return Claims{}, autherr.ErrMissingIDToken
	}

	jws, err := jose.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return Claims{}, autherr.Wrap(autherr.CodeUnsupportedSigAlg, err)
	}

	kid := jws.Signatures[0].Header.KeyID

	key, err := v.keys.GetKey(ctx, kid)
	if err != nil {
		return Claims{}, fmt.Errorf("resolving signing key: %w", err)
	}

	payload, err := jws.Verify(key)
	if err != nil {
		return Claims{}, autherr.Wrap(autherr.CodeInvalidSignature, err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, autherr.Wrap(autherr.CodeClaimsDecode, err)
	}

	if claims.Issuer == "" || claims.Subject == "" || claims.Expiry == 0 || len(claims.Audience) == 0 {
		return Claims{}, autherr.New(autherr.CodeClaimsDecode, "id token payload misses a required claim")
	}

	if v.now().After(claims.ExpiresAt()) {
		return Claims{}, autherr.ErrTokenExpired
	}

	if !issuerEquals(claims.Issuer, v.issuer) {
		return Claims{}, autherr.ErrInvalidIssuer
	}

	if !claims.Audience.Contains(v.clientID) {
		return Claims{}, autherr.ErrInvalidAudience
	}

	if expected.Nonce != "" && claims.Nonce != expected.Nonce {
		return Claims{}, autherr.ErrInvalidNonce
	}

	if expected.AMR != "" && !claims.HasAMR(expected.AMR) {
		return Claims{}, autherr.ErrMissingAMRValue
	}

	return claims, nil
}

// issuerEquals compares issuers ignoring a trailing slash on either side.
func issuerEquals(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
