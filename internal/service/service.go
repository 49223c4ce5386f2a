// Package service implements the turn orchestrator and the session, account
// and agent operations around it.
package service

import (
	"context"
	"time"

	"github.com/xiaot623/improv/internal/config"
	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/repository"
	"github.com/xiaot623/improv/internal/scene"
	"github.com/xiaot623/improv/internal/usage"
)

// AccessPolicy decides whether an action is metered for a tier.
type AccessPolicy interface {
	Metered(ctx context.Context, action domain.AccessAction, tier domain.Tier) (bool, error)
}

// EventPusher delivers session events to connected clients.
type EventPusher interface {
	PushEvent(ctx context.Context, event *domain.Event) (bool, error)
}

type Service struct {
	store         repository.Store
	capabilities  map[domain.AgentKind]domain.AgentCapability
	ingressClient EventPusher
	config        *config.Config
	policyEngine  AccessPolicy
	limiter       *usage.Limiter
	builder       *scene.Builder
	locks         *sessionLocks
	pushQueue     chan *domain.Event
	now           func() time.Time
}

// New wires the service. ingressClient may be nil to disable pushes.
func New(
	store repository.Store,
	capabilities map[domain.AgentKind]domain.AgentCapability,
	ingressClient EventPusher,
	cfg *config.Config,
	policyEngine AccessPolicy,
	limiter *usage.Limiter,
) *Service {
	s := &Service{
		store:         store,
		capabilities:  capabilities,
		ingressClient: ingressClient,
		config:        cfg,
		policyEngine:  policyEngine,
		limiter:       limiter,
		builder:       scene.NewBuilder(cfg.ContextWindow),
		locks:         newSessionLocks(),
		now:           time.Now,
	}
	if ingressClient != nil {
		s.pushQueue = make(chan *domain.Event, pushQueueSize)
	}
	return s
}

// storeCtx bounds a store call by the configured store timeout.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}
