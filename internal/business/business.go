// Package business wires configuration into a ready authenticator: it builds
// the configured session store and the client identity around it.
package business

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/schibsted/account-sdk-go/internal/config"
	"github.com/schibsted/account-sdk-go/pkg/auth"
	"github.com/schibsted/account-sdk-go/pkg/session"
	"github.com/schibsted/account-sdk-go/pkg/session/inmem"
	sessionpostgres "github.com/schibsted/account-sdk-go/pkg/session/postgres"
	sessionvalkey "github.com/schibsted/account-sdk-go/pkg/session/valkey"
)

// NewAuthenticator builds the authenticator from configuration, resuming any
// persisted session. The returned closeFn releases the store's resources.
func NewAuthenticator(ctx context.Context, cfg *config.Config) (_ *auth.Authenticator, closeFn func(), _ error) {
	store, closeFn, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising the session store: %w", err)
	}

	clientID, err := commoncfg.LoadValueFromSourceRef(cfg.Client.ClientID)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("loading client id: %w", err)
	}

	authenticator := auth.New(ctx, auth.ClientConfig{
		Environment: auth.Environment(cfg.Client.Environment),
		ClientID:    string(clientID),
		RedirectURI: cfg.Client.RedirectURI,
		Issuer:      cfg.Client.Issuer,
	}, store)

	return authenticator, closeFn, nil
}

// NewStore builds the session store the configuration selects.
func NewStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Store.Kind {
	case config.StoreKindMemory, "":
		slogctx.Debug(ctx, "Using in-memory session store")
		return inmem.NewStore(), func() {}, nil

	case config.StoreKindValKey:
		return newValKeyStore(cfg)

	case config.StoreKindPostgres:
		return newPostgresStore(ctx, cfg)

	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

func newValKeyStore(cfg *config.Config) (session.Store, func(), error) {
	host, err := commoncfg.LoadValueFromSourceRef(cfg.Store.ValKey.Host)
	if err != nil {
		return nil, nil, fmt.Errorf("loading valkey host: %w", err)
	}

	username, err := commoncfg.LoadValueFromSourceRef(cfg.Store.ValKey.User)
	if err != nil {
		return nil, nil, fmt.Errorf("loading valkey username: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(cfg.Store.ValKey.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("loading valkey password: %w", err)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{string(host)},
		Username:    string(username),
		Password:    string(password),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialising valkey client: %w", err)
	}

	return sessionvalkey.NewStore(client, cfg.Store.ValKey.Prefix), client.Close, nil
}

func newPostgresStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	connStr, err := cfg.Store.Database.ConnString()
	if err != nil {
		return nil, nil, fmt.Errorf("making dsn from config: %w", err)
	}

	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	store := sessionpostgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensuring session schema: %w", err)
	}

	return store, db.Close, nil
}
