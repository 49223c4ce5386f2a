package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/improv/internal/domain"
)

type fakeAccounts struct {
	counts map[string]int
}

func (f *fakeAccounts) IncrementUsage(_ context.Context, accountID string) error {
	if _, ok := f.counts[accountID]; !ok {
		return domain.E(domain.CodeAccountNotFound, "account %s not found", accountID)
	}
	f.counts[accountID]++
	return nil
}

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	l, err := NewLimiter(DefaultPolicies())
	require.NoError(t, err)
	return l
}

func TestCheckAccess(t *testing.T) {
	l := newTestLimiter(t)

	tests := []struct {
		name      string
		tier      domain.Tier
		used      int
		limit     int
		allowed   bool
		remaining int
	}{
		{"premium ignores counters", domain.TierPremium, 999, 0, true, Unlimited},
		{"freemium at limit", domain.TierFreemium, 2, 2, false, 0},
		{"freemium over limit clamps", domain.TierFreemium, 3, 2, false, 0},
		{"negative usage clamps to zero", domain.TierFreemium, -1, 2, true, 2},
		{"zero limit denies", domain.TierFreemium, 0, 0, false, 0},
		{"free zero limit denies", domain.TierFree, 0, 0, false, 0},
		{"freemium with quota", domain.TierFreemium, 1, 2, true, 1},
		{"negative limit on metered tier denies", domain.TierFreemium, 0, domain.UnlimitedSessions, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := l.CheckAccess(tt.tier, tt.used, tt.limit)
			assert.Equal(t, tt.allowed, v.Allowed)
			assert.Equal(t, tt.remaining, v.Remaining)
		})
	}
}

func TestNewLimiterRequiresEveryTier(t *testing.T) {
	policies := DefaultPolicies()
	delete(policies, domain.TierFree)
	_, err := NewLimiter(policies)
	assert.Error(t, err)

	policies = DefaultPolicies()
	policies[domain.Tier("GOLD")] = TierPolicy{Exempt: true}
	_, err = NewLimiter(policies)
	assert.Error(t, err)
}

func TestConfiguredExemptTier(t *testing.T) {
	policies := DefaultPolicies()
	policies[domain.TierFreemium] = TierPolicy{Exempt: true}
	l, err := NewLimiter(policies)
	require.NoError(t, err)

	v := l.CheckAccess(domain.TierFreemium, 50, 2)
	assert.True(t, v.Allowed)
	assert.True(t, v.Exempt)
	assert.Equal(t, domain.UnlimitedSessions, l.DefaultLimit(domain.TierFreemium))
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t)
	accounts := &fakeAccounts{counts: map[string]int{"acc_1": 0}}

	counted, err := l.RecordUsage(ctx, accounts, domain.TierFreemium, "acc_1")
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, 1, accounts.counts["acc_1"])

	counted, err = l.RecordUsage(ctx, accounts, domain.TierPremium, "acc_1")
	require.NoError(t, err)
	assert.False(t, counted)
	assert.Equal(t, 1, accounts.counts["acc_1"])

	_, err = l.RecordUsage(ctx, accounts, domain.TierFreemium, "missing")
	assert.True(t, domain.IsCode(err, domain.CodeAccountNotFound))
	assert.Len(t, accounts.counts, 1)
}
