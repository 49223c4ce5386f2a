package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
	"github.com/xiaot623/improv/internal/repository"
)

// CreateSession opens a new scene for an account. The metered flag is fixed
// here from the policy decision and never changes afterwards.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "account_id is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.SessionModeText
	}
	if !mode.Valid() {
		return nil, domain.E(domain.CodeInvalidArgument, "unknown mode %q", mode)
	}

	maxTurns := req.MaxTurns
	if maxTurns == 0 {
		maxTurns = s.config.MaxTurns
	}
	if maxTurns <= 0 {
		return nil, domain.E(domain.CodeInvalidArgument, "max_turns must be positive, got %d", maxTurns)
	}
	boundaries := req.PhaseBoundaries
	if boundaries == nil {
		for _, b := range s.config.PhaseBoundaries {
			if b < maxTurns {
				boundaries = append(boundaries, b)
			}
		}
	}
	if err := domain.ValidatePhaseBoundaries(boundaries, maxTurns); err != nil {
		return nil, domain.Wrap(domain.CodeInvalidArgument, err, "invalid phase boundaries")
	}

	agents, err := s.resolveRoster(ctx, req.Agents)
	if err != nil {
		return nil, err
	}

	account, err := s.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	metered, err := s.policyEngine.Metered(ctx, actionFor(mode), account.Tier)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	if metered {
		verdict := s.limiter.CheckAccess(account.Tier, account.MeteredSessionsUsed, account.MeteredSessionsLimit)
		if !verdict.Allowed {
			return nil, domain.E(domain.CodeAccessDenied, "account %s has no %s sessions remaining", account.AccountID, mode)
		}
		metered = !verdict.Exempt
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}
	now := s.now()
	session := &domain.Session{
		SessionID:       sessionID,
		OwnerAccountID:  account.AccountID,
		Status:          domain.SessionStatusInitialized,
		Mode:            mode,
		Metered:         metered,
		MaxTurns:        maxTurns,
		Phase:           domain.PhaseFor(0, boundaries),
		PhaseBoundaries: boundaries,
		Agents:          agents,
		Premise:         req.Premise,
		History:         []domain.TurnRecord{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	err = s.store.InTx(storeCtx, func(tx repository.Store) error {
		existing, err := tx.GetSession(storeCtx, sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.E(domain.CodeInvalidArgument, "session %s already exists", sessionID)
		}
		return tx.CreateSession(storeCtx, session)
	})
	if err != nil {
		if domain.CodeOf(err) == domain.CodeUnknown {
			return nil, domain.Wrap(domain.CodePersistence, err, "failed to create session")
		}
		return nil, err
	}

	ctx = logging.WithSessionID(ctx, sessionID)
	logging.LoggerFromContext(ctx).Info("session created", "account_id", account.AccountID, "mode", mode, "metered", metered, "max_turns", maxTurns)
	s.emit(ctx, sessionID, 0, domain.EventTypeSessionCreated, domain.SessionCreatedPayload{
		AccountID: account.AccountID,
		Mode:      mode,
		Metered:   metered,
		MaxTurns:  maxTurns,
		Agents:    agents,
	})
	return session, nil
}

// resolveRoster checks every requested agent exists. An empty roster falls
// back to the default narrator.
func (s *Service) resolveRoster(ctx context.Context, agentIDs []string) ([]string, error) {
	if len(agentIDs) == 0 {
		agent, err := s.EnsureDefaultAgent(ctx)
		if err != nil {
			return nil, err
		}
		return []string{agent.AgentID}, nil
	}
	roster := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		agent, err := s.GetAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		roster = append(roster, agent.AgentID)
	}
	return roster, nil
}

// GetSession returns the current state of a session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.loadSession(ctx, sessionID)
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	session, err := s.store.GetSession(storeCtx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx.Err(), "session %s was not loaded", sessionID)
		}
		return nil, domain.Wrap(domain.CodePersistence, err, "failed to load session %s", sessionID)
	}
	if session == nil {
		return nil, domain.E(domain.CodeSessionNotFound, "session %s not found", sessionID)
	}
	return session, nil
}

// RecordSessionUsage counts a completed metered session that was not
// counted at commit time. Calling it again is a no-op.
func (s *Service) RecordSessionUsage(ctx context.Context, sessionID string) (*domain.Session, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, canceled(err, "usage for session %s was not recorded", sessionID)
	}
	defer release()

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusComplete {
		return nil, domain.E(domain.CodeInvalidArgument, "session %s is %s, usage is recorded on completion", sessionID, session.Status)
	}
	if !session.Metered || session.UsageRecorded {
		return session, nil
	}

	next := session.Clone()
	next.UsageRecorded = true
	next.UpdatedAt = s.now()

	var account *domain.Account
	var counted bool
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	err = s.store.InTx(storeCtx, func(tx repository.Store) error {
		var err error
		account, err = tx.GetAccount(storeCtx, next.OwnerAccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.E(domain.CodeAccountNotFound, "account %s not found", next.OwnerAccountID)
		}
		if err := tx.SaveSession(storeCtx, next, session.Version); err != nil {
			return err
		}
		counted, err = s.limiter.RecordUsage(storeCtx, tx, account.Tier, account.AccountID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) || domain.CodeOf(err) != domain.CodeUnknown {
			return nil, err
		}
		return nil, domain.Wrap(domain.CodePersistence, err, "failed to record usage")
	}

	logging.LoggerFromContext(ctx).Info("session usage recorded", "account_id", account.AccountID, "counted", counted)
	s.emit(ctx, sessionID, next.CurrentTurn-1, domain.EventTypeUsageRecorded, domain.UsageRecordedPayload{
		AccountID: account.AccountID,
		Tier:      account.Tier,
		Exempt:    !counted,
	})
	return next, nil
}

func actionFor(mode domain.SessionMode) domain.AccessAction {
	if mode == domain.SessionModeAudio {
		return domain.AccessActionAudio
	}
	return domain.AccessActionText
}
