package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/edulabs/tutor-gateway/internal/storage"
	"github.com/edulabs/tutor-gateway/internal/tier"
)

// FixedWindowLimiter counts points in a fixed window per (feature, user).
// Exceeding the budget moves the key into a blocked state that outlives the
// window and is never refreshed by further attempts.
type FixedWindowLimiter struct {
	store  storage.KV
	policy *tier.Policy
}

func NewFixedWindow(store storage.KV, policy *tier.Policy) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:  store,
		policy: policy,
	}
}

func counterKey(feature tier.Feature, userID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", feature, userID)
}

func blockKey(feature tier.Feature, userID string) string {
	return counterKey(feature, userID) + ":block"
}

func (f *FixedWindowLimiter) Consume(ctx context.Context, feature tier.Feature, userID string, t tier.Tier) error {
	limit, err := f.policy.LimitFor(feature, t)
	if err != nil {
		return err
	}

	// A standing block short-circuits before any counting, so retries while
	// blocked never touch the counter.
	bk := blockKey(feature, userID)
	if retryAfter, blocked, err := f.blockRemaining(ctx, bk); err != nil {
		return err
	} else if blocked {
		return &BlockedError{RetryAfter: retryAfter}
	}

	ck := counterKey(feature, userID)
	count, err := f.store.IncrBy(ctx, ck, 1)
	if err != nil {
		return err
	}

	if count == 1 {
		if err := f.store.Expire(ctx, ck, limit.Window); err != nil {
			return err
		}

		// A fresh counter can mean another request just installed a block
		// and reset the window between our block read and the increment.
		// Re-check so that restart never admits past the block.
		if retryAfter, blocked, err := f.blockRemaining(ctx, bk); err != nil {
			return err
		} else if blocked {
			if err := f.store.Del(ctx, ck); err != nil {
				return err
			}
			return &BlockedError{RetryAfter: retryAfter}
		}
	}

	if count <= int64(limit.Points) {
		return nil
	}

	// Budget spent: install the block. SetNX keeps a racing request from
	// extending a block another one just created. The counter goes away with
	// it so the window restarts fresh once the block lapses.
	if _, err := f.store.SetNX(ctx, bk, "1", limit.BlockDuration); err != nil {
		return err
	}
	if err := f.store.Del(ctx, ck); err != nil {
		return err
	}

	retryAfter, blocked, err := f.blockRemaining(ctx, bk)
	if err != nil {
		return err
	}
	if !blocked {
		retryAfter = limit.BlockDuration
	}

	return &BlockedError{RetryAfter: retryAfter}
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, feature tier.Feature, userID string, t tier.Tier) (int, error) {
	limit, err := f.policy.LimitFor(feature, t)
	if err != nil {
		return 0, err
	}

	val, err := f.store.Get(ctx, counterKey(feature, userID))
	if errors.Is(err, storage.ErrNotFound) {
		return limit.Points, nil
	}
	if err != nil {
		return 0, err
	}

	count, _ := strconv.Atoi(val)
	remaining := limit.Points - count

	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

func (f *FixedWindowLimiter) Reset(ctx context.Context, feature tier.Feature, userID string, t tier.Tier) (time.Time, error) {
	limit, err := f.policy.LimitFor(feature, t)
	if err != nil {
		return time.Time{}, err
	}

	ttl, err := f.store.TTL(ctx, counterKey(feature, userID))
	if errors.Is(err, storage.ErrNotFound) {
		return time.Now().Add(limit.Window), nil
	}
	if err != nil {
		return time.Time{}, err
	}

	return time.Now().Add(ttl), nil
}

func (f *FixedWindowLimiter) blockRemaining(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := f.store.TTL(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	if ttl <= 0 {
		return 0, false, nil
	}

	return ttl, true, nil
}
