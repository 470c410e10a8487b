// Package sessionvalkey backs the secure token store port with a valkey
// keyspace, for deployments where sessions are held server-side on behalf of
// clients (cross-app "simplified login" discovery included).
package sessionvalkey

import (
	"context"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/schibsted/account-sdk-go/pkg/session"
)

var _ = session.Store(&Store{})

// Store prefixes every account key, keeping one shared namespace per prefix.
type Store struct {
	valkey valkey.Client
	prefix string
}

func NewStore(valkeyClient valkey.Client, prefix string) *Store {
	prefix = strings.TrimSuffix(prefix, ":")

	return &Store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *Store) SetValue(ctx context.Context, accountID string, value []byte) error {
	cmd := s.valkey.B().Set().Key(s.key(accountID)).Value(valkey.BinaryString(value)).Build()
	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *Store) GetValue(ctx context.Context, accountID string) ([]byte, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(accountID)).Build()).AsBytes()
	if err != nil {
		// A nil reply means no value for this account, which is not an error.
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return nil, nil
		}

		return nil, fmt.Errorf("executing get command: %w", err)
	}

	return bytes, nil
}

func (s *Store) GetAll(ctx context.Context) ([][]byte, error) {
	var all [][]byte

	match := s.prefix + ":*"
	var cursor uint64
	for {
		scan, err := s.valkey.Do(ctx, s.valkey.B().Scan().Cursor(cursor).Match(match).Count(100).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("executing scan command: %w", err)
		}

		cursor = scan.Cursor
		for _, key := range scan.Elements {
			bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(key).Build()).AsBytes()
			if err != nil {
				valkeyErr, ok := valkey.IsValkeyErr(err)
				if ok && valkeyErr.IsNil() {
					continue
				}

				return nil, fmt.Errorf("getting an element: %w", err)
			}

			all = append(all, bytes)
		}

		if cursor == 0 {
			return all, nil
		}
	}
}

func (s *Store) RemoveValue(ctx context.Context, accountID string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(accountID)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *Store) key(accountID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, accountID)
}
