package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/edulabs/tutor-gateway/internal/storage"
	"github.com/edulabs/tutor-gateway/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*FixedWindowLimiter, *storage.Memory, *time.Time) {
	t.Helper()

	store := storage.NewMemory()
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	return NewFixedWindow(store, tier.DefaultPolicy()), store, &now
}

func TestConsumeWithinBudget(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free), "consumption %d", i+1)
	}
}

func TestConsumeBlocksAfterBudget(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free))
	}

	err := limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, blocked.RetryAfter, 15*time.Minute)
}

func TestBlockedRetriesDoNotExtendBlock(t *testing.T) {
	limiter, _, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 21; i++ {
		limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	}

	*now = now.Add(5 * time.Minute)

	err := limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)

	// 5 minutes in, at most 10 remain of the 15-minute block.
	assert.LessOrEqual(t, blocked.RetryAfter, 10*time.Minute)
}

func TestConsumeSucceedsAfterBlockLapses(t *testing.T) {
	limiter, _, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 21; i++ {
		limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	}

	*now = now.Add(16 * time.Minute)

	assert.NoError(t, limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free))
}

func TestConsumeSucceedsAfterWindowLapses(t *testing.T) {
	limiter, _, now := newTestLimiter(t)
	ctx := context.Background()

	// API feature has a one-minute window.
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Consume(ctx, tier.FeatureAPI, "user-1", tier.Free))
	}

	*now = now.Add(2 * time.Minute)

	assert.NoError(t, limiter.Consume(ctx, tier.FeatureAPI, "user-1", tier.Free))
}

func TestIndependentKeys(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 21; i++ {
		limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	}

	// Another user and another feature are unaffected.
	assert.NoError(t, limiter.Consume(ctx, tier.FeatureTutorChat, "user-2", tier.Free))
	assert.NoError(t, limiter.Consume(ctx, tier.FeatureAPI, "user-1", tier.Free))
}

func TestTierBudgetsDiffer(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 21; i++ {
		limiter.Consume(ctx, tier.FeatureTutorChat, "free-user", tier.Free)
	}

	var blocked *BlockedError
	require.ErrorAs(t, limiter.Consume(ctx, tier.FeatureTutorChat, "free-user", tier.Free), &blocked)

	// The same volume is fine on premium_basic.
	for i := 0; i < 21; i++ {
		require.NoError(t, limiter.Consume(ctx, tier.FeatureTutorChat, "basic-user", tier.PremiumBasic))
	}
}

func TestRemaining(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	require.NoError(t, err)
	assert.Equal(t, 20, remaining)

	require.NoError(t, limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free))

	remaining, err = limiter.Remaining(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	require.NoError(t, err)
	assert.Equal(t, 19, remaining)
}

// blockRacingKV installs a block key on the first increment, standing in
// for a concurrent request that spent the budget between this request's
// block read and its counter increment.
type blockRacingKV struct {
	*storage.Memory
	blockKey string
	ttl      time.Duration
	injected bool
}

func (kv *blockRacingKV) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	if !kv.injected {
		kv.injected = true
		if _, err := kv.Memory.SetNX(ctx, kv.blockKey, "1", kv.ttl); err != nil {
			return 0, err
		}
	}
	return kv.Memory.IncrBy(ctx, key, n)
}

func TestBlockInstalledDuringIncrementIsHonored(t *testing.T) {
	mem := storage.NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	store := &blockRacingKV{
		Memory:   mem,
		blockKey: blockKey(tier.FeatureTutorChat, "user-1"),
		ttl:      15 * time.Minute,
	}
	limiter := NewFixedWindow(store, tier.DefaultPolicy())
	ctx := context.Background()

	err := limiter.Consume(ctx, tier.FeatureTutorChat, "user-1", tier.Free)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))

	// The freshly restarted counter must not survive into the post-block
	// window.
	_, err = mem.Get(ctx, counterKey(tier.FeatureTutorChat, "user-1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConsumeInvalidFeature(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)

	err := limiter.Consume(context.Background(), tier.Feature("export"), "user-1", tier.Free)
	assert.Error(t, err)
}
