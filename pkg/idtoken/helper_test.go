package idtoken_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/schibsted/account-sdk-go/pkg/autherr"
)

const (
	testIssuer   = "https://issuer.example.com"
	testClientID = "my-client-id"
	testKeyID    = "test-key-1"
)

type testKeys struct {
	private *rsa.PrivateKey
	signer  jose.Signer
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.RS256,
		Key:       jose.JSONWebKey{Key: private, KeyID: testKeyID},
	}, nil)
	require.NoError(t, err)

	return &testKeys{private: private, signer: signer}
}

func (k *testKeys) sign(t *testing.T, claims map[string]any) string {
	t.Helper()

	raw, err := jwt.Signed(k.signer).Claims(claims).Serialize()
	require.NoError(t, err)

	return raw
}

// provider resolves only the test key, any other kid misses.
func (k *testKeys) provider() *staticKeyProvider {
	public := jose.JSONWebKey{Key: &k.private.PublicKey, KeyID: testKeyID, Algorithm: "RS256", Use: "sig"}

	return &staticKeyProvider{keys: map[string]*jose.JSONWebKey{testKeyID: &public}}
}

type staticKeyProvider struct {
	keys map[string]*jose.JSONWebKey
}

func (p *staticKeyProvider) GetKey(_ context.Context, kid string) (*jose.JSONWebKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, autherr.ErrUnknownKeyID
	}

	return key, nil
}
