// Package sessionpostgres backs the secure token store port with a postgres
// table.
package sessionpostgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schibsted/account-sdk-go/pkg/session"
)

var _ = session.Store(&Store{})

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the backing table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS account_sessions (
	account_id TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return fmt.Errorf("creating account_sessions table: %w", err)
	}

	return nil
}

// SetValue upserts by probing for an existing row first, matching the store
// contract of add-if-absent, else update.
func (s *Store) SetValue(ctx context.Context, accountID string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account_sessions WHERE account_id = $1);`,
		accountID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("probing for an existing session: %w", err)
	}

	if exists {
		_, err = tx.Exec(ctx, `UPDATE account_sessions SET value = $2, updated_at = now() WHERE account_id = $1;`,
			accountID, value)
	} else {
		_, err = tx.Exec(ctx, `INSERT INTO account_sessions (account_id, value) VALUES ($1, $2);`,
			accountID, value)
	}
	if err != nil {
		return fmt.Errorf("writing into account_sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}

func (s *Store) GetValue(ctx context.Context, accountID string) ([]byte, error) {
	var value []byte
	if err := s.db.QueryRow(ctx, `SELECT value FROM account_sessions WHERE account_id = $1;`,
		accountID,
	).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("selecting from account_sessions: %w", err)
	}

	return value, nil
}

func (s *Store) GetAll(ctx context.Context) ([][]byte, error) {
	rows, err := s.db.Query(ctx, `SELECT value FROM account_sessions;`)
	if err != nil {
		return nil, fmt.Errorf("selecting from account_sessions: %w", err)
	}
	defer rows.Close()

	var all [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scanning account_sessions row: %w", err)
		}
		all = append(all, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account_sessions rows: %w", err)
	}

	return all, nil
}

func (s *Store) RemoveValue(ctx context.Context, accountID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM account_sessions WHERE account_id = $1;`, accountID); err != nil {
		return fmt.Errorf("deleting from account_sessions: %w", err)
	}

	return nil
}
