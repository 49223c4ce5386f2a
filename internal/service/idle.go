package service

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
	"github.com/xiaot623/improv/internal/repository"
)

const (
	idleSweepBatch    = 100
	maxIdleSweepEvery = 30 * time.Second
	idleFailureReason = "idle_timeout"
)

// RunIdleSessionMonitor fails sessions that have not advanced within the
// configured idle timeout. It returns when ctx is done. A zero timeout
// disables it.
func (s *Service) RunIdleSessionMonitor(ctx context.Context) {
	timeout := s.config.SessionIdleTimeout
	if timeout <= 0 {
		return
	}
	interval := timeout / 2
	if interval > maxIdleSweepEvery {
		interval = maxIdleSweepEvery
	}
	if interval <= 0 {
		interval = time.Second
	}

	logger := logging.WithFields("component", "idle_monitor", "idle_timeout", s.config.SessionIdleTimeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.sweepIdleSessions(ctx); err != nil {
				logger.Warn("idle session sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("idle sessions failed", "count", n)
			}
		}
	}
}

// sweepIdleSessions moves idle sessions to FAILED and returns how many it
// moved. Sessions with a turn in flight are skipped.
func (s *Service) sweepIdleSessions(ctx context.Context) (int, error) {
	idleSince := s.now().Add(-s.config.SessionIdleTimeout)
	storeCtx, cancel := s.storeCtx(ctx)
	candidates, err := s.store.ListIdleSessions(storeCtx, idleSince, idleSweepBatch)
	cancel()
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, candidate := range candidates {
		ok, err := s.failIdleSession(ctx, candidate.SessionID, idleSince)
		if err != nil {
			logging.Logger().Warn("failed to expire idle session", "session_id", candidate.SessionID, "error", err)
			continue
		}
		if ok {
			failed++
		}
	}
	return failed, nil
}

func (s *Service) failIdleSession(ctx context.Context, sessionID string, idleSince time.Time) (bool, error) {
	release, ok := s.locks.tryAcquire(sessionID)
	if !ok {
		return false, nil
	}
	defer release()

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.Status.IsTerminal() || session.UpdatedAt.After(idleSince) {
		return false, nil
	}

	next := session.Clone()
	next.Status = domain.SessionStatusFailed
	next.FailureReason = idleFailureReason
	next.UpdatedAt = s.now()

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.SaveSession(storeCtx, next, session.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return false, nil
		}
		return false, err
	}

	ctx = logging.WithSessionID(ctx, sessionID)
	logging.LoggerFromContext(ctx).Info("session failed after idle timeout", "current_turn", next.CurrentTurn)
	s.emit(ctx, sessionID, next.CurrentTurn, domain.EventTypeSessionFailed, domain.SessionFailedPayload{Reason: idleFailureReason})
	return true, nil
}
