package domain

import (
	"fmt"
	"strings"
)

// Tier is an account's billing/entitlement class.
type Tier string

const (
	TierFree     Tier = "FREE"
	TierFreemium Tier = "FREEMIUM"
	TierPremium  Tier = "PREMIUM"
)

// AllTiers lists every known tier. Adding a tier here makes the usage
// limiter refuse to start until a policy for it exists.
var AllTiers = []Tier{TierFree, TierFreemium, TierPremium}

// Valid reports whether the tier is one of AllTiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierFreemium, TierPremium:
		return true
	}
	return false
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}
