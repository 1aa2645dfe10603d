package governor

import (
	"context"

	"github.com/edulabs/tutor-gateway/internal/quota"
	"github.com/edulabs/tutor-gateway/internal/ratelimit"
	"github.com/edulabs/tutor-gateway/internal/tier"
)

// Identity is the resolved caller: who they are and what they pay for.
// Resolution (token validation, tier lookup, expiry downgrade) happens
// upstream; the governor trusts what it is handed.
type Identity struct {
	UserID string
	Tier   tier.Tier
}

// Check is one admission gate in the governor's pipeline. Admit returns nil
// to let the request through and may record findings on the admission. A
// non-nil error rejects with no side effects beyond the check itself.
type Check interface {
	Admit(ctx context.Context, id Identity, adm *Admission) error
}

// RateCheck spends one rate-limit point for the configured feature.
type RateCheck struct {
	limiter ratelimit.Limiter
	feature tier.Feature
}

func NewRateCheck(limiter ratelimit.Limiter, feature tier.Feature) *RateCheck {
	return &RateCheck{limiter: limiter, feature: feature}
}

func (c *RateCheck) Admit(ctx context.Context, id Identity, adm *Admission) error {
	return c.limiter.Consume(ctx, c.feature, id.UserID, id.Tier)
}

// BudgetCheck rejects once the user's daily token spend reaches their tier
// budget, and records the current usage for the response payload.
type BudgetCheck struct {
	ledger *quota.Ledger
}

func NewBudgetCheck(ledger *quota.Ledger) *BudgetCheck {
	return &BudgetCheck{ledger: ledger}
}

func (c *BudgetCheck) Admit(ctx context.Context, id Identity, adm *Admission) error {
	used, budget, err := c.ledger.CheckBudget(ctx, id.UserID, id.Tier)
	adm.TokensUsed = used
	adm.TokenBudget = budget

	return err
}
