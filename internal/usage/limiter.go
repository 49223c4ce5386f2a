// Package usage decides tier-based access to metered sessions and records
// metered session completions.
package usage

import (
	"context"
	"fmt"
	"math"

	"github.com/xiaot623/improv/internal/domain"
)

// Unlimited is the remaining-quota sentinel reported for exempt tiers. It is
// not a countable quota.
const Unlimited = math.MaxInt32

// TierPolicy configures metering for one tier.
type TierPolicy struct {
	// Exempt tiers bypass counting entirely.
	Exempt bool `yaml:"exempt"`
	// SessionLimit is the lifetime metered session cap for new accounts.
	SessionLimit int `yaml:"session_limit"`
}

// DefaultPolicies returns the built-in policy for every tier.
func DefaultPolicies() map[domain.Tier]TierPolicy {
	return map[domain.Tier]TierPolicy{
		domain.TierFree:     {SessionLimit: 0},
		domain.TierFreemium: {SessionLimit: 2},
		domain.TierPremium:  {Exempt: true, SessionLimit: domain.UnlimitedSessions},
	}
}

// Verdict is the result of an access check.
type Verdict struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Exempt    bool `json:"exempt"`
}

// AccountIncrementer is the part of the account store RecordUsage needs.
type AccountIncrementer interface {
	IncrementUsage(ctx context.Context, accountID string) error
}

// Limiter maps tiers and lifetime counters to access verdicts.
type Limiter struct {
	policies map[domain.Tier]TierPolicy
}

// NewLimiter creates a limiter. Every tier in domain.AllTiers must have a
// policy.
func NewLimiter(policies map[domain.Tier]TierPolicy) (*Limiter, error) {
	copied := make(map[domain.Tier]TierPolicy, len(policies))
	for _, tier := range domain.AllTiers {
		p, ok := policies[tier]
		if !ok {
			return nil, fmt.Errorf("no usage policy configured for tier %s", tier)
		}
		if !p.Exempt && p.SessionLimit < 0 {
			return nil, fmt.Errorf("tier %s: session_limit must be >= 0 for metered tiers", tier)
		}
		copied[tier] = p
	}
	for tier := range policies {
		if !tier.Valid() {
			return nil, fmt.Errorf("usage policy for unknown tier %q", tier)
		}
	}
	return &Limiter{policies: copied}, nil
}

// Policy returns the policy for a tier. Unknown tiers get the most
// restrictive policy.
func (l *Limiter) Policy(tier domain.Tier) TierPolicy {
	if p, ok := l.policies[tier]; ok {
		return p
	}
	return TierPolicy{SessionLimit: 0}
}

// IsExempt reports whether a tier bypasses metering.
func (l *Limiter) IsExempt(tier domain.Tier) bool {
	return l.Policy(tier).Exempt
}

// DefaultLimit is the metered_sessions_limit a new account on tier starts with.
func (l *Limiter) DefaultLimit(tier domain.Tier) int {
	p := l.Policy(tier)
	if p.Exempt {
		return domain.UnlimitedSessions
	}
	return p.SessionLimit
}

// CheckAccess decides access from a tier and its counters. It performs no
// I/O and mutates nothing.
func (l *Limiter) CheckAccess(tier domain.Tier, sessionsUsed, sessionsLimit int) Verdict {
	if l.IsExempt(tier) {
		return Verdict{Allowed: true, Remaining: Unlimited, Exempt: true}
	}
	if sessionsUsed < 0 {
		sessionsUsed = 0
	}
	if sessionsLimit < 0 {
		sessionsLimit = 0
	}
	remaining := sessionsLimit - sessionsUsed
	if remaining < 0 {
		remaining = 0
	}
	return Verdict{Allowed: remaining > 0, Remaining: remaining}
}

// RecordUsage counts one completed metered session against an account. It
// is a no-op for exempt tiers. Callers guarantee at most one call per
// physical session completion.
func (l *Limiter) RecordUsage(ctx context.Context, accounts AccountIncrementer, tier domain.Tier, accountID string) (bool, error) {
	if l.IsExempt(tier) {
		return false, nil
	}
	if err := accounts.IncrementUsage(ctx, accountID); err != nil {
		return false, err
	}
	return true, nil
}
