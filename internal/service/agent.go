package service

import (
	"context"
	"strings"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
)

// DefaultAgentID is the agent used when a session is created without a roster.
const DefaultAgentID = "narrator"

// RegisterAgent registers or updates an agent.
func (s *Service) RegisterAgent(ctx context.Context, req domain.RegisterAgentRequest) (*domain.Agent, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "agent_id is required")
	}
	kind := req.Kind
	if kind == "" {
		kind = domain.AgentKindHTTP
	}
	if !kind.Valid() {
		return nil, domain.E(domain.CodeInvalidArgument, "unknown agent kind %q", kind)
	}
	if kind == domain.AgentKindHTTP && strings.TrimSpace(req.Endpoint) == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "endpoint is required for http agents")
	}
	name := req.Name
	if name == "" {
		name = agentID
	}

	agent := &domain.Agent{
		AgentID:   agentID,
		Name:      name,
		Kind:      kind,
		Endpoint:  req.Endpoint,
		Model:     req.Model,
		Persona:   req.Persona,
		Status:    "healthy",
		CreatedAt: s.now(),
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.RegisterAgent(storeCtx, agent); err != nil {
		return nil, domain.Wrap(domain.CodePersistence, err, "failed to register agent %s", agentID)
	}
	logging.LoggerFromContext(ctx).Info("agent registered", "agent_id", agentID, "kind", kind)
	return agent, nil
}

// GetAgent returns an agent by ID.
func (s *Service) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	agent, err := s.store.GetAgent(storeCtx, agentID)
	if err != nil {
		return nil, domain.Wrap(domain.CodePersistence, err, "failed to load agent %s", agentID)
	}
	if agent == nil {
		return nil, domain.E(domain.CodeAgentNotFound, "agent %s not found", agentID)
	}
	return agent, nil
}

// ListAgents returns all registered agents.
func (s *Service) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	agents, err := s.store.ListAgents(storeCtx)
	if err != nil {
		return nil, domain.Wrap(domain.CodePersistence, err, "failed to list agents")
	}
	return agents, nil
}

// EnsureDefaultAgent registers the LLM-backed narrator if it is missing.
func (s *Service) EnsureDefaultAgent(ctx context.Context) (*domain.Agent, error) {
	agent, err := s.GetAgent(ctx, DefaultAgentID)
	if err == nil {
		return agent, nil
	}
	if !domain.IsCode(err, domain.CodeAgentNotFound) {
		return nil, err
	}
	return s.RegisterAgent(ctx, domain.RegisterAgentRequest{
		AgentID: DefaultAgentID,
		Name:    "Narrator",
		Kind:    domain.AgentKindLLM,
		Model:   s.config.LLMModel,
		Persona: "a warm, quick-witted scene partner who always builds on the last offer",
	})
}
