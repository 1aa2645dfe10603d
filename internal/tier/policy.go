package tier

import (
	"fmt"
	"time"
)

// Feature identifies an independently rate-limited capability.
type Feature string

const (
	FeatureTutorChat Feature = "tutor_chat"
	FeatureAPI       Feature = "api"
)

// Limit is the rate-limit budget for one (feature, tier) pair.
type Limit struct {
	Points        int           // Requests allowed per window
	Window        time.Duration // Window duration
	BlockDuration time.Duration // How long to block after the budget is spent
}

// Policy holds the static per-tier limits and daily token budgets.
type Policy struct {
	limits  map[Feature]map[Tier]Limit
	budgets map[Tier]int
}

const defaultBlockDuration = 15 * time.Minute

// DefaultPolicy returns the production policy table.
func DefaultPolicy() *Policy {
	day := 24 * time.Hour

	chat := map[Tier]Limit{
		Free:         {Points: 20, Window: day, BlockDuration: defaultBlockDuration},
		PremiumBasic: {Points: 100, Window: day, BlockDuration: defaultBlockDuration},
		PremiumPlus:  {Points: 300, Window: day, BlockDuration: defaultBlockDuration},
		B2B:          {Points: 1000, Window: day, BlockDuration: defaultBlockDuration},
	}

	// General API endpoints share one budget across tiers.
	api := make(map[Tier]Limit, len(All()))
	for _, t := range All() {
		api[t] = Limit{Points: 100, Window: time.Minute, BlockDuration: defaultBlockDuration}
	}

	return &Policy{
		limits: map[Feature]map[Tier]Limit{
			FeatureTutorChat: chat,
			FeatureAPI:       api,
		},
		budgets: map[Tier]int{
			Free:         2000,
			PremiumBasic: 10000,
			PremiumPlus:  50000,
			B2B:          100000,
		},
	}
}

// LimitFor returns the rate-limit budget for a feature and tier.
func (p *Policy) LimitFor(feature Feature, t Tier) (Limit, error) {
	tiers, ok := p.limits[feature]
	if !ok {
		return Limit{}, fmt.Errorf("no limits configured for feature %q", feature)
	}

	limit, ok := tiers[t]
	if !ok {
		return Limit{}, fmt.Errorf("%w: %s for feature %q", ErrInvalidTier, t, feature)
	}

	return limit, nil
}

// BudgetFor returns the daily AI-token budget for a tier.
func (p *Policy) BudgetFor(t Tier) (int, error) {
	budget, ok := p.budgets[t]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTier, t)
	}

	return budget, nil
}
