package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/edulabs/tutor-gateway/internal/tier"
)

// BlockedError is returned when a key has spent its point budget or sits in
// an explicit block window.
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

type Limiter interface {
	// Consume spends one point for (feature, user). Returns *BlockedError
	// when the budget is exhausted or the key is blocked.
	Consume(ctx context.Context, feature tier.Feature, userID string, t tier.Tier) error

	// Remaining reports how many points are left in the current window.
	Remaining(ctx context.Context, feature tier.Feature, userID string, t tier.Tier) (int, error)

	// Reset returns the time at which the current window lapses.
	Reset(ctx context.Context, feature tier.Feature, userID string, t tier.Tier) (time.Time, error)
}
