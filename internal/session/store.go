package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edulabs/tutor-gateway/internal/storage"
)

// Store is a generic expiring cache for ephemeral session payloads. Values
// are JSON-encoded; a read after expiry reports absence, not an error.
type Store struct {
	store storage.KV
}

func NewStore(store storage.KV) *Store {
	return &Store{store: store}
}

func key(id string) string {
	return "session:" + id
}

func (s *Store) Set(ctx context.Context, id string, payload any, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode session payload: %w", err)
	}

	if err := s.store.Set(ctx, key(id), string(data), ttl); err != nil {
		return fmt.Errorf("session storage failed: %w", err)
	}

	return nil
}

// Get decodes the session payload into out. Returns (false, nil) when the
// session does not exist or has expired.
func (s *Store) Get(ctx context.Context, id string, out any) (bool, error) {
	data, err := s.store.Get(ctx, key(id))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("corrupt session payload for %s: %w", id, err)
	}

	return true, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.store.Del(ctx, key(id))
}
