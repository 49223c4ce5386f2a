// Package domain defines the core domain models for the improv orchestrator.
package domain

// SessionStatus represents the lifecycle status of a session.
type SessionStatus string

const (
	SessionStatusInitialized SessionStatus = "INITIALIZED"
	SessionStatusActive      SessionStatus = "ACTIVE"
	SessionStatusComplete    SessionStatus = "COMPLETE"
	SessionStatusFailed      SessionStatus = "FAILED"
)

// IsTerminal reports whether no further turns may be submitted.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusComplete, SessionStatusFailed:
		return true
	}
	return false
}

// SessionMode selects the medium of a session. Audio sessions are the
// metered resource for non-exempt tiers.
type SessionMode string

const (
	SessionModeText  SessionMode = "text"
	SessionModeAudio SessionMode = "audio"
)

// Valid reports whether the mode is known.
func (m SessionMode) Valid() bool {
	switch m {
	case SessionModeText, SessionModeAudio:
		return true
	}
	return false
}

// TurnRole identifies who produced a record.
type TurnRole string

const (
	TurnRoleParticipant TurnRole = "participant"
	TurnRoleAgent       TurnRole = "agent"
	TurnRoleCoach       TurnRole = "coach"
)

// AgentKind selects the capability used to generate a turn.
type AgentKind string

const (
	// AgentKindHTTP agents expose POST /invoke streaming SSE events.
	AgentKindHTTP AgentKind = "http"
	// AgentKindLLM agents are backed by an OpenAI-compatible chat completion API.
	AgentKindLLM AgentKind = "llm"
)

// Valid reports whether the kind is known.
func (k AgentKind) Valid() bool {
	switch k {
	case AgentKindHTTP, AgentKindLLM:
		return true
	}
	return false
}

// FeedbackSource records where the coaching feedback came from.
type FeedbackSource string

const (
	FeedbackSourceAgent   FeedbackSource = "agent"
	FeedbackSourceDerived FeedbackSource = "derived"
)

// EventType represents the type of a session trace event.
type EventType string

const (
	EventTypeSessionCreated     EventType = "session_created"
	EventTypeTurnStarted        EventType = "turn_started"
	EventTypeAgentInvokeStarted EventType = "agent_invoke_started"
	EventTypeAgentInvokeDone    EventType = "agent_invoke_done"
	EventTypeAgentInvokeFailed  EventType = "agent_invoke_failed"
	EventTypeTurnCommitted      EventType = "turn_committed"
	EventTypeSessionCompleted   EventType = "session_completed"
	EventTypeUsageRecorded      EventType = "usage_recorded"
	EventTypeSessionFailed      EventType = "session_failed"
)
