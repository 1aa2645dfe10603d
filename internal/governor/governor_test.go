package governor

import (
	"context"
	"testing"
	"time"

	"github.com/edulabs/tutor-gateway/internal/chat"
	"github.com/edulabs/tutor-gateway/internal/quota"
	"github.com/edulabs/tutor-gateway/internal/ratelimit"
	"github.com/edulabs/tutor-gateway/internal/storage"
	"github.com/edulabs/tutor-gateway/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGovernor(store storage.KV) *Governor {
	policy := tier.DefaultPolicy()
	ledger := quota.NewLedger(store, policy)
	buffer := chat.NewBuffer(store)
	limiter := ratelimit.NewFixedWindow(store, policy)

	return New(ledger, buffer,
		NewRateCheck(limiter, tier.FeatureTutorChat),
		NewBudgetCheck(ledger),
	)
}

func TestBeginAdmitsFreshUser(t *testing.T) {
	gov := newTestGovernor(storage.NewMemory())
	ctx := context.Background()

	adm, err := gov.Begin(ctx, Identity{UserID: "user-1", Tier: tier.Free})
	require.NoError(t, err)
	assert.Equal(t, 0, adm.TokensUsed)
	assert.Equal(t, 2000, adm.TokenBudget)
	assert.Empty(t, adm.History)
}

func TestBeginRejectsWhenRateLimited(t *testing.T) {
	gov := newTestGovernor(storage.NewMemory())
	ctx := context.Background()
	id := Identity{UserID: "user-1", Tier: tier.Free}

	for i := 0; i < 20; i++ {
		_, err := gov.Begin(ctx, id)
		require.NoError(t, err, "request %d", i+1)
	}

	_, err := gov.Begin(ctx, id)
	var blocked *ratelimit.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))
}

func TestBeginRejectsWhenBudgetSpent(t *testing.T) {
	store := storage.NewMemory()
	gov := newTestGovernor(store)
	ctx := context.Background()
	id := Identity{UserID: "user-1", Tier: tier.Free}

	adm, err := gov.Begin(ctx, id)
	require.NoError(t, err)
	gov.Record(ctx, id, adm, Outcome{Message: "q", Response: "a", Tokens: 2000})

	_, err = gov.Begin(ctx, id)
	var exceeded *quota.BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2000, exceeded.Limit)
	assert.Equal(t, 2000, exceeded.Used)
}

func TestRecordUpdatesLedgerAndHistory(t *testing.T) {
	gov := newTestGovernor(storage.NewMemory())
	ctx := context.Background()
	id := Identity{UserID: "user-1", Tier: tier.PremiumBasic}

	adm, err := gov.Begin(ctx, id)
	require.NoError(t, err)

	total := gov.Record(ctx, id, adm, Outcome{
		Message:  "Explain derivatives",
		Response: "A derivative measures the rate of change.",
		Tokens:   320,
	})
	assert.Equal(t, 320, total)

	adm, err = gov.Begin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 320, adm.TokensUsed)
	require.Len(t, adm.History, 2)
	assert.Equal(t, chat.RoleUser, adm.History[0].Role)
	assert.Equal(t, "Explain derivatives", adm.History[0].Content)
	assert.Equal(t, chat.RoleAssistant, adm.History[1].Role)
	assert.Equal(t, 320, adm.History[1].Tokens)
}

// flakyKV fails ledger increments while leaving everything else working, to
// exercise the fail-open recording path.
type flakyKV struct {
	*storage.Memory
	failIncr bool
}

func (f *flakyKV) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	if f.failIncr {
		return 0, storage.ErrUnavailable
	}

	return f.Memory.IncrBy(ctx, key, n)
}

func TestRecordFailsOpen(t *testing.T) {
	kv := &flakyKV{Memory: storage.NewMemory()}
	gov := newTestGovernor(kv)
	ctx := context.Background()
	id := Identity{UserID: "user-1", Tier: tier.Free}

	adm, err := gov.Begin(ctx, id)
	require.NoError(t, err)

	kv.failIncr = true

	// Recording failure must not lose the answer; the best-known total
	// still comes back for the response payload.
	total := gov.Record(ctx, id, adm, Outcome{Message: "q", Response: "a", Tokens: 150})
	assert.Equal(t, 150, total)

	// The buffer append still happened even though the ledger write failed.
	kv.failIncr = false
	adm, err = gov.Begin(ctx, id)
	require.NoError(t, err)
	assert.Len(t, adm.History, 2)
}

func TestCheckFailureFailsClosed(t *testing.T) {
	kv := &flakyKV{Memory: storage.NewMemory(), failIncr: true}
	gov := newTestGovernor(kv)

	// The rate check consumes via IncrBy; a store outage during admission
	// rejects the request.
	_, err := gov.Begin(context.Background(), Identity{UserID: "user-1", Tier: tier.Free})
	require.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestFreeTierScenario(t *testing.T) {
	gov := newTestGovernor(storage.NewMemory())
	ctx := context.Background()
	id := Identity{UserID: "student-7", Tier: tier.Free}

	// 20 requests at 50 tokens each stay under both the request and token
	// budgets.
	for i := 0; i < 20; i++ {
		adm, err := gov.Begin(ctx, id)
		require.NoError(t, err, "request %d", i+1)
		gov.Record(ctx, id, adm, Outcome{Message: "q", Response: "a", Tokens: 50})
	}

	// Request 21 hits the rate limit with a usable retry hint.
	_, err := gov.Begin(ctx, id)
	var blocked *ratelimit.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Greater(t, blocked.RetryAfter.Seconds(), 0.0)
}
