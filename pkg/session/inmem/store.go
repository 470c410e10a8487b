// Package inmem provides an in-memory Store used by tests and as a default
// when no durable backend is configured.
package inmem

import (
	"context"
	"sync"

	"github.com/schibsted/account-sdk-go/pkg/session"
)

var _ = session.Store(&Store{})

type StoreOption func(*Store)

// Store keeps blobs in a map. Error injection options let tests exercise
// storage failure paths.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte

	setErr, getErr, getAllErr, removeErr error
}

func WithValue(accountID string, value []byte) StoreOption {
	return func(s *Store) { s.values[accountID] = append([]byte(nil), value...) }
}

func WithSetError(err error) StoreOption {
	return func(s *Store) { s.setErr = err }
}

func WithGetError(err error) StoreOption {
	return func(s *Store) { s.getErr = err }
}

func WithGetAllError(err error) StoreOption {
	return func(s *Store) { s.getAllErr = err }
}

func WithRemoveError(err error) StoreOption {
	return func(s *Store) { s.removeErr = err }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{values: make(map[string][]byte)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *Store) SetValue(_ context.Context, accountID string, value []byte) error {
	if s.setErr != nil {
		return s.setErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[accountID] = append([]byte(nil), value...)

	return nil
}

func (s *Store) GetValue(_ context.Context, accountID string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[accountID]
	if !ok {
		return nil, nil
	}

	return append([]byte(nil), value...), nil
}

func (s *Store) GetAll(_ context.Context) ([][]byte, error) {
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([][]byte, 0, len(s.values))
	for _, value := range s.values {
		all = append(all, append([]byte(nil), value...))
	}

	return all, nil
}

func (s *Store) RemoveValue(_ context.Context, accountID string) error {
	if s.removeErr != nil {
		return s.removeErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, accountID)

	return nil
}
