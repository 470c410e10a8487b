// Package pkce generates the per-login-attempt random material: the CSRF
// state, the OIDC nonce and the PKCE verifier/challenge pair.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"math/big"
)

const MethodS256 = "S256"

// PKCE holds a verifier/challenge pair. The challenge is sent with the
// authorization request, the verifier with the token exchange.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

type Source struct{}

func (p Source) randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}

	return b, nil
}

func (p Source) randString(n int) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

	ret := make([]byte, n)
	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		ret[i] = letters[num.Int64()]
	}

	return string(ret), nil
}

// PKCE returns a fresh verifier built from 32 random bytes and its S256
// challenge, both base64url encoded without padding.
func (p Source) PKCE() (PKCE, error) {
	const n = 32

	raw, err := p.randBytes(n)
	if err != nil {
		return PKCE{}, err
	}

	verifierBuf := make([]byte, base64.RawURLEncoding.EncodedLen(n))
	base64.RawURLEncoding.Encode(verifierBuf, raw)

	challengeSHA := sha256.Sum256(verifierBuf)
	challengeBuf := make([]byte, base64.RawURLEncoding.EncodedLen(len(challengeSHA)))
	base64.RawURLEncoding.Encode(challengeBuf, challengeSHA[:])

	return PKCE{
		Verifier:  string(verifierBuf),
		Challenge: string(challengeBuf),
		Method:    MethodS256,
	}, nil
}

// Challenge recomputes the S256 challenge for a verifier obtained elsewhere.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (p Source) State() (string, error) {
	return p.randString(64)
}

func (p Source) Nonce() (string, error) {
	return p.randString(32)
}
