package tier

import (
	"errors"
	"fmt"
)

// ErrInvalidTier indicates a tier name that is not part of the policy table.
// Seeing it in production means the caller and the policy are out of sync.
var ErrInvalidTier = errors.New("invalid subscription tier")

// Tier is an ordered subscription level. Higher values include everything
// the lower ones do.
type Tier int

const (
	Free Tier = iota
	PremiumBasic
	PremiumPlus
	B2B
)

func (t Tier) String() string {
	switch t {
	case Free:
		return "free"
	case PremiumBasic:
		return "premium_basic"
	case PremiumPlus:
		return "premium_plus"
	case B2B:
		return "b2b"
	default:
		return "unknown"
	}
}

// Parse maps a stored tier name to its Tier value.
func Parse(name string) (Tier, error) {
	switch name {
	case "free":
		return Free, nil
	case "premium_basic":
		return PremiumBasic, nil
	case "premium_plus":
		return PremiumPlus, nil
	case "b2b":
		return B2B, nil
	default:
		return Free, fmt.Errorf("%w: %q", ErrInvalidTier, name)
	}
}

// AtLeast reports whether t grants at least the level of required.
func (t Tier) AtLeast(required Tier) bool {
	return t >= required
}

// All returns every tier in ascending order.
func All() []Tier {
	return []Tier{Free, PremiumBasic, PremiumPlus, B2B}
}
