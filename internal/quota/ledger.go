package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/edulabs/tutor-gateway/internal/storage"
	"github.com/edulabs/tutor-gateway/internal/tier"
)

// BudgetExceededError is returned when a user's daily token spend has
// reached their tier budget.
type BudgetExceededError struct {
	Limit int
	Used  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily token limit exceeded (%d/%d)", e.Used, e.Limit)
}

// Retention on daily usage keys, independent of the daily reset (which
// falls out of keying on the date).
const retention = 30 * 24 * time.Hour

// Ledger accumulates AI token usage per user per UTC calendar day. Usage
// resets at day boundaries because a new day reads a new key.
type Ledger struct {
	store  storage.KV
	policy *tier.Policy
	now    func() time.Time
}

func NewLedger(store storage.KV, policy *tier.Policy) *Ledger {
	return &Ledger{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

func (l *Ledger) key(userID string) string {
	return fmt.Sprintf("tokens:%s:%s", userID, l.now().UTC().Format("2006-01-02"))
}

// Increment adds tokens to today's usage and returns the new total. The
// store-side increment is atomic, so concurrent chat turns never lose
// updates.
func (l *Ledger) Increment(ctx context.Context, userID string, tokens int) (int, error) {
	key := l.key(userID)

	total, err := l.store.IncrBy(ctx, key, int64(tokens))
	if err != nil {
		return 0, err
	}

	if err := l.store.Expire(ctx, key, retention); err != nil {
		return int(total), err
	}

	return int(total), nil
}

// Usage returns tokens spent today. A fresh day reads zero.
func (l *Ledger) Usage(ctx context.Context, userID string) (int, error) {
	val, err := l.store.Get(ctx, l.key(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	used, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt token counter for %s: %w", userID, err)
	}

	return used, nil
}

// BudgetFor returns the tier's daily token budget.
func (l *Ledger) BudgetFor(t tier.Tier) (int, error) {
	return l.policy.BudgetFor(t)
}

// CheckBudget returns a *BudgetExceededError when the user has spent their
// daily budget, along with the current usage and budget for reporting.
func (l *Ledger) CheckBudget(ctx context.Context, userID string, t tier.Tier) (used, budget int, err error) {
	budget, err = l.policy.BudgetFor(t)
	if err != nil {
		return 0, 0, err
	}

	used, err = l.Usage(ctx, userID)
	if err != nil {
		return 0, budget, err
	}

	if used >= budget {
		return used, budget, &BudgetExceededError{Limit: budget, Used: used}
	}

	return used, budget, nil
}
