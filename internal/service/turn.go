package service

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
	"github.com/xiaot623/improv/internal/repository"
	"github.com/xiaot623/improv/internal/scene"
)

// SubmitTurn validates, generates, and atomically commits one turn. Nothing
// is persisted unless the returned error is nil.
func (s *Service) SubmitTurn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	if req.SessionID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "session_id is required")
	}
	ctx = logging.WithSessionID(ctx, req.SessionID)
	logger := logging.LoggerFromContext(ctx)

	release, err := s.locks.acquire(ctx, req.SessionID)
	if err != nil {
		return nil, canceled(err, "turn %d was not submitted", req.ExpectedTurnIndex)
	}
	defer release()

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedTurnIndex != session.CurrentTurn {
		return nil, domain.E(domain.CodeOutOfSequenceTurn,
			"expected turn %d, session is at turn %d", req.ExpectedTurnIndex, session.CurrentTurn)
	}
	if session.Status.IsTerminal() {
		return nil, domain.E(domain.CodeSessionTerminated, "session %s is %s", session.SessionID, session.Status)
	}

	turnIndex := session.CurrentTurn
	agent, capability, err := s.resolveSpeaker(ctx, session, turnIndex)
	if err != nil {
		return nil, err
	}

	actx := s.builder.Build(session)
	actx.Input = req.Input

	s.emit(ctx, session.SessionID, turnIndex, domain.EventTypeTurnStarted, domain.TurnStartedPayload{
		RequestID: req.RequestID,
		Input:     req.Input,
		Phase:     session.Phase,
	})

	parsed, err := s.generateTurn(ctx, capability, agent, actx)
	if err != nil {
		logger.Warn("turn generation failed", "turn_index", turnIndex, "agent_id", agent.AgentID, "code", domain.CodeOf(err), "error", err)
		return nil, err
	}

	now := s.now()
	record := domain.TurnRecord{
		TurnIndex:   turnIndex,
		Role:        domain.TurnRoleAgent,
		Speaker:     firstNonEmpty(parsed.Speaker, agent.Name, agent.AgentID),
		Content:     parsed.Line,
		Input:       req.Input,
		PhaseAtTime: session.Phase,
		CreatedAt:   now,
	}

	next := session.Clone()
	next.History = append(next.History, record)
	next.CurrentTurn++
	next.Phase = domain.PhaseFor(next.CurrentTurn, next.PhaseBoundaries)
	next.Status = domain.StatusFor(next.CurrentTurn, next.MaxTurns)
	next.UpdatedAt = now
	if next.Status == domain.SessionStatusComplete {
		next.Feedback = coachingFeedback(parsed, next.History, turnIndex, now)
	}
	if err := next.CheckInvariants(); err != nil {
		return nil, domain.Wrap(domain.CodePersistence, err, "refusing to persist inconsistent session")
	}

	usageRecorded, account, err := s.commitTurn(ctx, next, session.Version)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, s.classifyConflict(ctx, req, err)
		}
		switch {
		case ctx.Err() != nil:
			err = canceled(ctx.Err(), "turn %d was not committed", turnIndex)
		case domain.CodeOf(err) == domain.CodeUnknown:
			err = domain.Wrap(domain.CodePersistence, err, "failed to persist turn %d", turnIndex)
		}
		logger.Error("turn commit failed", "turn_index", turnIndex, "error", err)
		return nil, err
	}

	logger.Info("turn committed", "turn_index", turnIndex, "phase", next.Phase.Name(), "status", next.Status, "version", next.Version)
	s.emit(ctx, next.SessionID, turnIndex, domain.EventTypeTurnCommitted, domain.TurnCommittedPayload{
		Input:       record.Input,
		Speaker:     record.Speaker,
		Content:     record.Content,
		CurrentTurn: next.CurrentTurn,
		Phase:       next.Phase,
		Status:      next.Status,
		Version:     next.Version,
	})

	result := &domain.TurnResult{Session: next, Turn: &record}
	if next.Status == domain.SessionStatusComplete {
		result.Feedback = next.Feedback
		s.emit(ctx, next.SessionID, turnIndex, domain.EventTypeSessionCompleted, domain.SessionCompletedPayload{
			Feedback:      next.Feedback,
			UsageRecorded: next.UsageRecorded,
		})
		if account != nil {
			s.emit(ctx, next.SessionID, turnIndex, domain.EventTypeUsageRecorded, domain.UsageRecordedPayload{
				AccountID: account.AccountID,
				Tier:      account.Tier,
				Exempt:    !usageRecorded,
			})
		}
	}
	return result, nil
}

// commitTurn persists next with a version check. When next completes a
// metered session the usage counter moves in the same transaction.
func (s *Service) commitTurn(ctx context.Context, next *domain.Session, expectedVersion int64) (bool, *domain.Account, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	var (
		counted bool
		account *domain.Account
	)
	err := s.store.InTx(storeCtx, func(tx repository.Store) error {
		if next.Status == domain.SessionStatusComplete && next.Metered && !next.UsageRecorded {
			var err error
			account, err = tx.GetAccount(storeCtx, next.OwnerAccountID)
			if err != nil {
				return err
			}
			if account == nil {
				return domain.E(domain.CodeAccountNotFound, "account %s not found", next.OwnerAccountID)
			}
			next.UsageRecorded = true
		}
		if err := tx.SaveSession(storeCtx, next, expectedVersion); err != nil {
			return err
		}
		if account != nil {
			var err error
			counted, err = s.limiter.RecordUsage(storeCtx, tx, account.Tier, account.AccountID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		next.UsageRecorded = false
		return false, nil, err
	}
	return counted, account, nil
}

// classifyConflict reports a lost race as out-of-sequence when another
// submission already took this turn.
func (s *Service) classifyConflict(ctx context.Context, req domain.TurnRequest, cause error) error {
	current, err := s.loadSession(ctx, req.SessionID)
	if err == nil && current.CurrentTurn != req.ExpectedTurnIndex {
		return domain.E(domain.CodeOutOfSequenceTurn,
			"turn %d was taken by a concurrent submission, session is at turn %d", req.ExpectedTurnIndex, current.CurrentTurn)
	}
	return domain.Wrap(domain.CodeVersionConflict, cause, "session was modified concurrently")
}

// resolveSpeaker finds the roster agent for a turn and its capability.
func (s *Service) resolveSpeaker(ctx context.Context, session *domain.Session, turnIndex int) (*domain.Agent, domain.AgentCapability, error) {
	agentID := session.SpeakerFor(turnIndex)
	if agentID == "" {
		return nil, nil, domain.E(domain.CodeAgentNotFound, "session %s has no agents", session.SessionID)
	}
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	capability, ok := s.capabilities[agent.Kind]
	if !ok {
		return nil, nil, domain.E(domain.CodeAgentUnavailable, "no capability for agent kind %s", agent.Kind)
	}
	return agent, capability, nil
}

// generateTurn invokes the agent and parses its output, tracing both.
func (s *Service) generateTurn(ctx context.Context, capability domain.AgentCapability, agent *domain.Agent, actx domain.AgentContext) (*parsedTurn, error) {
	payload := domain.AgentInvokePayload{
		AgentID:  agent.AgentID,
		Kind:     agent.Kind,
		Coaching: actx.IncludeCoaching,
	}
	s.emit(ctx, actx.SessionID, actx.TurnIndex, domain.EventTypeAgentInvokeStarted, payload)

	start := time.Now()
	out, err := s.invokeAgent(ctx, capability, agent, actx)
	var parsed *parsedTurn
	if err == nil {
		payload.Usage = out.Usage
		parsed, err = parseAgentOutput(out.Text)
	}
	payload.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		payload.Code = domain.CodeOf(err)
		payload.Error = err.Error()
		s.emit(ctx, actx.SessionID, actx.TurnIndex, domain.EventTypeAgentInvokeFailed, payload)
		return nil, err
	}
	s.emit(ctx, actx.SessionID, actx.TurnIndex, domain.EventTypeAgentInvokeDone, payload)
	return parsed, nil
}

type agentResult struct {
	out *domain.AgentOutput
	err error
}

// invokeAgent runs the capability under the agent timeout. A result that
// arrives after the deadline is dropped.
func (s *Service) invokeAgent(ctx context.Context, capability domain.AgentCapability, agent *domain.Agent, actx domain.AgentContext) (*domain.AgentOutput, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.AgentTimeout)
	defer cancel()

	results := make(chan agentResult, 1)
	go func() {
		out, err := capability.Generate(callCtx, agent, actx)
		results <- agentResult{out: out, err: err}
	}()

	select {
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, canceled(err, "agent %s call abandoned", agent.AgentID)
		}
		return nil, domain.E(domain.CodeAgentTimeout, "agent %s did not respond within %s", agent.AgentID, s.config.AgentTimeout)
	case r := <-results:
		if r.err != nil {
			if err := ctx.Err(); err != nil {
				return nil, canceled(err, "agent %s call abandoned", agent.AgentID)
			}
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, domain.Wrap(domain.CodeAgentTimeout, r.err, "agent %s did not respond within %s", agent.AgentID, s.config.AgentTimeout)
			}
			if domain.CodeOf(r.err) != domain.CodeUnknown {
				return nil, r.err
			}
			return nil, domain.Wrap(domain.CodeAgentUnavailable, r.err, "agent %s failed", agent.AgentID)
		}
		if r.out == nil {
			return nil, domain.E(domain.CodeAgentResponseInvalid, "agent %s returned no output", agent.AgentID)
		}
		return r.out, nil
	}
}

// canceled reports a caller cancellation or deadline as a retryable error.
func canceled(err error, format string, args ...any) error {
	if domain.CodeOf(err) != domain.CodeUnknown {
		return err
	}
	return domain.Wrap(domain.CodeCanceled, err, format, args...)
}

// coachingFeedback prefers the agent's own feedback and otherwise derives it
// from the whole scene.
func coachingFeedback(parsed *parsedTurn, history []domain.TurnRecord, turnIndex int, now time.Time) *domain.Feedback {
	if fb := parsed.Feedback; fb != nil {
		return &domain.Feedback{
			TurnIndex:   turnIndex,
			Role:        domain.TurnRoleCoach,
			Summary:     fb.Summary,
			Strengths:   fb.Strengths,
			Suggestions: fb.Suggestions,
			Source:      domain.FeedbackSourceAgent,
			CreatedAt:   now,
		}
	}
	return scene.DeriveFeedback(history, turnIndex, now)
}
