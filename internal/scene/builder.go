// Package scene derives the bounded agent context for the next turn of a
// session and the coaching feedback for a finished one.
package scene

import "github.com/xiaot623/improv/internal/domain"

// DefaultWindow is the number of prior turns handed to an agent.
const DefaultWindow = 3

// Builder composes agent contexts. It holds no mutable state.
type Builder struct {
	window int
}

// NewBuilder creates a builder that keeps the last window turns.
func NewBuilder(window int) *Builder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Builder{window: window}
}

// Window returns the configured history window.
func (b *Builder) Window() int {
	return b.window
}

// Build returns the context for the session's next turn. The session is not
// modified and the returned history does not alias it.
func (b *Builder) Build(s *domain.Session) domain.AgentContext {
	actx := domain.AgentContext{
		SessionID:    s.SessionID,
		TurnIndex:    s.CurrentTurn,
		MaxTurns:     s.MaxTurns,
		Phase:        s.Phase,
		PhaseName:    s.Phase.Name(),
		Instructions: InstructionsFor(s.Phase),
		Premise:      s.Premise,
		Speaker:      s.SpeakerFor(s.CurrentTurn),
		History:      recent(s.History, b.window),
	}
	if s.IsFinalTurn() {
		actx.IncludeCoaching = true
		actx.CoachingInstructions = CoachingInstructions()
	}
	return actx
}

func recent(history []domain.TurnRecord, n int) []domain.TurnRecord {
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.TurnRecord, len(history)-start)
	copy(out, history[start:])
	return out
}
