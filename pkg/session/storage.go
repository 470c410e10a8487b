package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Storage serializes UserSession records through a Store. One record per
// client id; writing stamps UpdatedAt.
type Storage struct {
	store Store

	// now is replaced in tests.
	now func() time.Time
}

func NewStorage(store Store) *Storage {
	return &Storage{store: store, now: time.Now}
}

// Save upserts the session under its client id, stamping UpdatedAt.
func (s *Storage) Save(ctx context.Context, sess UserSession) error {
	sess.UpdatedAt = s.now()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.store.SetValue(ctx, sess.ClientID, data); err != nil {
		return fmt.Errorf("setting session into storage: %w", err)
	}

	return nil
}

// Load returns the session for clientID; ok is false when none is stored.
func (s *Storage) Load(ctx context.Context, clientID string) (UserSession, bool, error) {
	data, err := s.store.GetValue(ctx, clientID)
	if err != nil {
		return UserSession{}, false, fmt.Errorf("getting session from storage: %w", err)
	}
	if data == nil {
		return UserSession{}, false, nil
	}

	var sess UserSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return UserSession{}, false, fmt.Errorf("unmarshaling session: %w", err)
	}

	return sess, true, nil
}

// All decodes every session in the shared namespace. Blobs that fail to
// decode are skipped so one corrupt record cannot block cross-app discovery.
func (s *Storage) All(ctx context.Context) ([]UserSession, error) {
	blobs, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating storage: %w", err)
	}

	sessions := make([]UserSession, 0, len(blobs))
	for _, data := range blobs {
		var sess UserSession
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// Remove deletes the session for clientID; removing an absent session is a
// no-op.
func (s *Storage) Remove(ctx context.Context, clientID string) error {
	if err := s.store.RemoveValue(ctx, clientID); err != nil {
		return fmt.Errorf("removing session from storage: %w", err)
	}

	return nil
}
