package domain

import (
	"fmt"
	"time"
)

// Session is the unit of orchestration: one improv scene with a fixed turn
// budget. It is mutated only by the turn orchestrator, one turn at a time.
type Session struct {
	SessionID       string        `json:"session_id"`
	OwnerAccountID  string        `json:"owner_account_id"`
	Status          SessionStatus `json:"status"`
	Mode            SessionMode   `json:"mode"`
	Metered         bool          `json:"metered"`
	CurrentTurn     int           `json:"current_turn"`
	MaxTurns        int           `json:"max_turns"`
	Phase           Phase         `json:"phase"`
	PhaseBoundaries []int         `json:"phase_boundaries"`
	Agents          []string      `json:"agents,omitempty"`
	Premise         string        `json:"premise,omitempty"`
	History         []TurnRecord  `json:"history"`
	Feedback        *Feedback     `json:"feedback,omitempty"`
	UsageRecorded   bool          `json:"usage_recorded"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TurnRecord is one accepted turn. Records are never modified once appended.
type TurnRecord struct {
	TurnIndex   int       `json:"turn_index"`
	Role        TurnRole  `json:"role"`
	Speaker     string    `json:"speaker"`
	Content     string    `json:"content"`
	Input       string    `json:"input,omitempty"`
	PhaseAtTime Phase     `json:"phase_at_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// Feedback is the coaching record attached when a session completes.
type Feedback struct {
	TurnIndex   int            `json:"turn_index"`
	Role        TurnRole       `json:"role"`
	Summary     string         `json:"summary"`
	Strengths   []string       `json:"strengths,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Source      FeedbackSource `json:"source"`
	CreatedAt   time.Time      `json:"created_at"`
}

// StatusFor derives the non-failed status from turn counters.
func StatusFor(currentTurn, maxTurns int) SessionStatus {
	switch {
	case currentTurn <= 0:
		return SessionStatusInitialized
	case currentTurn >= maxTurns:
		return SessionStatusComplete
	default:
		return SessionStatusActive
	}
}

// IsFinalTurn reports whether the next accepted turn ends the session.
func (s *Session) IsFinalTurn() bool {
	return s.CurrentTurn+1 == s.MaxTurns
}

// SpeakerFor returns the agent roster entry for a turn index, or "" when the
// session has no roster.
func (s *Session) SpeakerFor(turnIndex int) string {
	if len(s.Agents) == 0 {
		return ""
	}
	return s.Agents[turnIndex%len(s.Agents)]
}

// Clone returns a deep copy so that a candidate next state can be computed
// without touching the loaded snapshot.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.PhaseBoundaries = append([]int(nil), s.PhaseBoundaries...)
	c.Agents = append([]string(nil), s.Agents...)
	c.History = append([]TurnRecord(nil), s.History...)
	if s.Feedback != nil {
		fb := *s.Feedback
		fb.Strengths = append([]string(nil), s.Feedback.Strengths...)
		fb.Suggestions = append([]string(nil), s.Feedback.Suggestions...)
		c.Feedback = &fb
	}
	return &c
}

// CheckInvariants verifies the structural invariants of a session.
func (s *Session) CheckInvariants() error {
	if s.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive, got %d", s.MaxTurns)
	}
	if s.CurrentTurn < 0 || s.CurrentTurn > s.MaxTurns {
		return fmt.Errorf("current_turn %d outside [0, %d]", s.CurrentTurn, s.MaxTurns)
	}
	if len(s.History) != s.CurrentTurn {
		return fmt.Errorf("history length %d does not match current_turn %d", len(s.History), s.CurrentTurn)
	}
	if s.Phase != PhaseFor(s.CurrentTurn, s.PhaseBoundaries) {
		return fmt.Errorf("phase %d does not match current_turn %d", s.Phase, s.CurrentTurn)
	}
	if s.Status != SessionStatusFailed && s.Status != StatusFor(s.CurrentTurn, s.MaxTurns) {
		return fmt.Errorf("status %s does not match current_turn %d of %d", s.Status, s.CurrentTurn, s.MaxTurns)
	}
	return nil
}
