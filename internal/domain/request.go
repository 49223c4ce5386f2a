package domain

// TurnRequest is one turn submission. ExpectedTurnIndex is the turn the
// caller believes it is submitting.
type TurnRequest struct {
	SessionID         string `json:"session_id"`
	ExpectedTurnIndex int    `json:"expected_turn_index"`
	Input             string `json:"input"`
	RequestID         string `json:"request_id,omitempty"`
}

// TurnResult is returned for an accepted turn.
type TurnResult struct {
	Session  *Session    `json:"session"`
	Turn     *TurnRecord `json:"turn"`
	Feedback *Feedback   `json:"feedback,omitempty"`
}

// CreateSessionRequest asks for a new session owned by an account.
type CreateSessionRequest struct {
	SessionID       string      `json:"session_id,omitempty"`
	AccountID       string      `json:"account_id"`
	Mode            SessionMode `json:"mode,omitempty"`
	MaxTurns        int         `json:"max_turns,omitempty"`
	PhaseBoundaries []int       `json:"phase_boundaries,omitempty"`
	Agents          []string    `json:"agents,omitempty"`
	Premise         string      `json:"premise,omitempty"`
}

// CreateAccountRequest registers an account usage record.
type CreateAccountRequest struct {
	AccountID string `json:"account_id,omitempty"`
	Tier      Tier   `json:"tier"`
}

// AgentInvokeRequest is the request body sent to an external HTTP agent.
type AgentInvokeRequest struct {
	AgentID   string       `json:"agent_id"`
	SessionID string       `json:"session_id"`
	TurnIndex int          `json:"turn_index"`
	Persona   string       `json:"persona,omitempty"`
	Context   AgentContext `json:"context"`
}

// RegisterAgentRequest registers or updates an agent.
type RegisterAgentRequest struct {
	AgentID  string    `json:"agent_id"`
	Name     string    `json:"name"`
	Kind     AgentKind `json:"kind,omitempty"`
	Endpoint string    `json:"endpoint,omitempty"`
	Model    string    `json:"model,omitempty"`
	Persona  string    `json:"persona,omitempty"`
}
