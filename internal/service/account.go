package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
	"github.com/xiaot623/improv/internal/repository"
	"github.com/xiaot623/improv/internal/usage"
)

// CreateAccount registers a usage record for an account on a tier.
func (s *Service) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	tier, err := domain.ParseTier(string(req.Tier))
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidArgument, err, "invalid tier")
	}
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		accountID = "acc_" + uuid.New().String()[:8]
	}

	now := s.now()
	account := &domain.Account{
		AccountID:            accountID,
		Tier:                 tier,
		MeteredSessionsLimit: s.limiter.DefaultLimit(tier),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	err = s.store.InTx(storeCtx, func(tx repository.Store) error {
		existing, err := tx.GetAccount(storeCtx, accountID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.E(domain.CodeInvalidArgument, "account %s already exists", accountID)
		}
		return tx.CreateAccount(storeCtx, account)
	})
	if err != nil {
		if domain.CodeOf(err) == domain.CodeUnknown {
			return nil, domain.Wrap(domain.CodePersistence, err, "failed to create account")
		}
		return nil, err
	}

	logging.LoggerFromContext(ctx).Info("account created", "account_id", accountID, "tier", tier, "limit", account.MeteredSessionsLimit)
	return account, nil
}

// GetAccount returns an account usage record.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	account, err := s.store.GetAccount(storeCtx, accountID)
	if err != nil {
		return nil, domain.Wrap(domain.CodePersistence, err, "failed to load account %s", accountID)
	}
	if account == nil {
		return nil, domain.E(domain.CodeAccountNotFound, "account %s not found", accountID)
	}
	return account, nil
}

// CheckAccess reports whether an account may start a session of the given
// action. It reads the counters and mutates nothing.
func (s *Service) CheckAccess(ctx context.Context, accountID string, action domain.AccessAction) (*domain.AccessDecision, error) {
	switch action {
	case domain.AccessActionAudio, domain.AccessActionText:
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "unknown action %q", action)
	}
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	metered, err := s.policyEngine.Metered(ctx, action, account.Tier)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	decision := &domain.AccessDecision{
		AccountID: account.AccountID,
		Action:    action,
		Tier:      account.Tier,
		Allowed:   true,
		Remaining: usage.Unlimited,
	}
	if !metered {
		return decision, nil
	}
	verdict := s.limiter.CheckAccess(account.Tier, account.MeteredSessionsUsed, account.MeteredSessionsLimit)
	decision.Metered = !verdict.Exempt
	decision.Allowed = verdict.Allowed
	decision.Remaining = verdict.Remaining
	if !verdict.Allowed {
		decision.Reason = "metered session limit reached for tier " + string(account.Tier)
	}
	return decision, nil
}

// CheckAudioAccess is CheckAccess for audio sessions.
func (s *Service) CheckAudioAccess(ctx context.Context, accountID string) (*domain.AccessDecision, error) {
	return s.CheckAccess(ctx, accountID, domain.AccessActionAudio)
}
