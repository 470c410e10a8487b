// Package jwks resolves ID token signing keys from the identity provider's
// JSON Web Key Set endpoint.
package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-jose/go-jose/v4"
	gocache "github.com/patrickmn/go-cache"
	slogctx "github.com/veqryn/slog-context"

	"github.com/schibsted/account-sdk-go/pkg/autherr"
)

// Provider caches signing keys by key id. A cache miss triggers exactly one
// refetch of the full key set, which replaces the cache wholesale; a second
// miss for the same lookup is reported as an unknown key id. Keys are never
// expired by age since providers rotate them far less often than tokens.
type Provider struct {
	jwksURI string
	client  *http.Client

	mu   sync.Mutex
	keys *gocache.Cache
}

func NewProvider(jwksURI string, client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}

	return &Provider{
		jwksURI: jwksURI,
		client:  client,
		keys:    gocache.New(gocache.NoExpiration, 0),
	}
}

// GetKey returns the signing key for kid, refetching the key set once if it
// is not cached.
func (p *Provider) GetKey(ctx context.Context, kid string) (*jose.JSONWebKey, error) {
	if k, ok := p.keys.Get(kid); ok {
		//nolint:forcetypeassert
		return k.(*jose.JSONWebKey), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have refetched while this one waited for the lock.
	if k, ok := p.keys.Get(kid); ok {
		//nolint:forcetypeassert
		return k.(*jose.JSONWebKey), nil
	}

	if err := p.refetch(ctx); err != nil {
		return nil, fmt.Errorf("fetching key set: %w", err)
	}

	k, ok := p.keys.Get(kid)
	if !ok {
		slogctx.Warn(ctx, "Key id not present after key set refetch", "kid", kid)
		return nil, autherr.ErrUnknownKeyID
	}

	//nolint:forcetypeassert
	return k.(*jose.JSONWebKey), nil
}

func (p *Provider) refetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jwksURI, nil)
	if err != nil {
		return fmt.Errorf("creating a new HTTP request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing an http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("key set endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var keySet jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		return fmt.Errorf("decoding keyset response: %w", err)
	}

	p.keys.Flush()
	for i := range keySet.Keys {
		k := keySet.Keys[i]
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		p.keys.Set(k.KeyID, &k, gocache.NoExpiration)
	}

	return nil
}
