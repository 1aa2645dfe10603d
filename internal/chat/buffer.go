package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulabs/tutor-gateway/internal/storage"
)

// Role of a buffered turn, mirroring the completion provider's roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// MaxTurns caps the replay window; the oldest turn is evicted first.
	MaxTurns = 10

	// Abandoned conversations are purged after this long. Every append
	// refreshes the clock so active ones never expire mid-use.
	bufferTTL = 90 * 24 * time.Hour
)

// Buffer holds the recent conversational window per user, replayed into the
// next AI call for context. The durable copy lives in Postgres; this is only
// the hot window.
type Buffer struct {
	store storage.KV
}

func NewBuffer(store storage.KV) *Buffer {
	return &Buffer{store: store}
}

func key(userID string) string {
	return "chat:" + userID
}

// Append pushes a turn to the tail, evicting the head beyond MaxTurns, and
// refreshes the buffer TTL.
func (b *Buffer) Append(ctx context.Context, userID string, turn Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to encode chat turn: %w", err)
	}

	return b.store.PushTrim(ctx, key(userID), string(payload), MaxTurns, bufferTTL)
}

// Recent returns up to limit of the latest turns, oldest first. A user with
// no buffered history gets an empty slice, never an error.
func (b *Buffer) Recent(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 || limit > MaxTurns {
		limit = MaxTurns
	}

	entries, err := b.store.ListRange(ctx, key(userID), int64(-limit), -1)
	if err != nil {
		return nil, err
	}

	turns := make([]Turn, 0, len(entries))
	for _, entry := range entries {
		var turn Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			// Skip entries that predate the current encoding.
			continue
		}
		turns = append(turns, turn)
	}

	return turns, nil
}
