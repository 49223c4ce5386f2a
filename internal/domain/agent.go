package domain

import (
	"context"
	"time"
)

// Agent represents a registered improv agent.
type Agent struct {
	AgentID       string     `json:"agent_id"`
	Name          string     `json:"name"`
	Kind          AgentKind  `json:"kind"`
	Endpoint      string     `json:"endpoint,omitempty"`
	Model         string     `json:"model,omitempty"`
	Persona       string     `json:"persona,omitempty"`
	Status        string     `json:"status"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AgentContext is everything an agent sees when generating a turn.
type AgentContext struct {
	SessionID            string       `json:"session_id"`
	TurnIndex            int          `json:"turn_index"`
	MaxTurns             int          `json:"max_turns"`
	Phase                Phase        `json:"phase"`
	PhaseName            string       `json:"phase_name"`
	Instructions         string       `json:"instructions"`
	Premise              string       `json:"premise,omitempty"`
	Speaker              string       `json:"speaker,omitempty"`
	History              []TurnRecord `json:"history"`
	IncludeCoaching      bool         `json:"include_coaching"`
	CoachingInstructions string       `json:"coaching_instructions,omitempty"`
	Input                string       `json:"input,omitempty"`
}

// AgentOutput is the raw output of an agent capability before parsing.
type AgentOutput struct {
	Text  string     `json:"text"`
	Usage *UsageData `json:"usage,omitempty"`
}

// AgentCapability is the opaque, possibly slow generation back-end. The
// orchestrator only relies on Generate honouring ctx cancellation.
type AgentCapability interface {
	Generate(ctx context.Context, agent *Agent, actx AgentContext) (*AgentOutput, error)
}
