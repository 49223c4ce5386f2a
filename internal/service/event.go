package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
	"github.com/xiaot623/improv/internal/repository"
)

const pushQueueSize = 256

// recordEvent records an event to the store and queues it for ingress.
func (s *Service) recordEvent(ctx context.Context, sessionID string, turnIndex int, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: sessionID,
		TurnIndex: turnIndex,
		Ts:        s.now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.CreateEvent(storeCtx, event); err != nil {
		return err
	}
	s.enqueuePush(ctx, event)
	return nil
}

// emit records an event and logs instead of failing the caller.
func (s *Service) emit(ctx context.Context, sessionID string, turnIndex int, eventType domain.EventType, payload interface{}) {
	if err := s.recordEvent(ctx, sessionID, turnIndex, eventType, payload); err != nil {
		logging.LoggerFromContext(ctx).Warn("failed to record event", "type", eventType, "turn_index", turnIndex, "error", err)
	}
}

func (s *Service) enqueuePush(ctx context.Context, event *domain.Event) {
	if s.pushQueue == nil {
		return
	}
	select {
	case s.pushQueue <- event:
	default:
		logging.LoggerFromContext(ctx).Warn("ingress push queue full, dropping event", "type", event.Type, "event_id", event.EventID)
	}
}

// RunEventPusher forwards recorded events to ingress in order until ctx is done.
func (s *Service) RunEventPusher(ctx context.Context) {
	if s.pushQueue == nil {
		return
	}
	logger := logging.WithFields("component", "event_pusher")
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.pushQueue:
			pushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			delivered, err := s.ingressClient.PushEvent(pushCtx, event)
			cancel()
			if err != nil {
				logger.Warn("failed to push event to ingress", "session_id", event.SessionID, "type", event.Type, "error", err)
				continue
			}
			logger.Debug("event pushed", "session_id", event.SessionID, "type", event.Type, "delivered", delivered)
		}
	}
}

// GetSessionEvents returns the trace events of a session.
func (s *Service) GetSessionEvents(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	if _, err := s.GetSession(ctx, filter.SessionID); err != nil {
		return nil, err
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	events, err := s.store.GetEvents(storeCtx, filter)
	if err != nil {
		return nil, domain.Wrap(domain.CodePersistence, err, "failed to load events")
	}
	return events, nil
}
