// Package session defines the persisted session model and the secure token
// store port the authenticator persists through.
package session

import "context"

// Store is the secure token store port: opaque byte blobs keyed by an account
// identifier inside one shared namespace.
//
// Required semantics:
//   - SetValue is an upsert: add when absent, replace when present.
//   - GetValue returns (nil, nil) when no value exists; absence is not an
//     error.
//   - RemoveValue of an absent account is a successful no-op.
//   - GetAll enumerates every stored blob in the namespace, in no particular
//     order.
type Store interface {
	SetValue(ctx context.Context, accountID string, value []byte) error
	GetValue(ctx context.Context, accountID string) ([]byte, error)
	GetAll(ctx context.Context) ([][]byte, error)
	RemoveValue(ctx context.Context, accountID string) error
}
