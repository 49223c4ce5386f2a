package domain

// SessionCreatedPayload is recorded when a session is created.
type SessionCreatedPayload struct {
	AccountID string      `json:"account_id"`
	Mode      SessionMode `json:"mode"`
	Metered   bool        `json:"metered"`
	MaxTurns  int         `json:"max_turns"`
	Agents    []string    `json:"agents"`
}

// TurnStartedPayload is recorded when a turn passes validation.
type TurnStartedPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Input     string `json:"input,omitempty"`
	Phase     Phase  `json:"phase"`
}

// AgentInvokePayload is recorded around agent invocation.
type AgentInvokePayload struct {
	AgentID   string     `json:"agent_id"`
	Kind      AgentKind  `json:"kind"`
	LatencyMs int64      `json:"latency_ms,omitempty"`
	Usage     *UsageData `json:"usage,omitempty"`
	Code      Code       `json:"code,omitempty"`
	Error     string     `json:"error,omitempty"`
	Coaching  bool       `json:"include_coaching,omitempty"`
}

// TurnCommittedPayload is recorded after the turn is durably persisted.
type TurnCommittedPayload struct {
	Input       string        `json:"input,omitempty"`
	Speaker     string        `json:"speaker"`
	Content     string        `json:"content"`
	CurrentTurn int           `json:"current_turn"`
	Phase       Phase         `json:"phase"`
	Status      SessionStatus `json:"status"`
	Version     int64         `json:"version"`
}

// SessionCompletedPayload is recorded when a session reaches COMPLETE.
type SessionCompletedPayload struct {
	Feedback      *Feedback `json:"feedback"`
	UsageRecorded bool      `json:"usage_recorded"`
}

// UsageRecordedPayload is recorded when a completed session is counted.
type UsageRecordedPayload struct {
	AccountID string `json:"account_id"`
	Tier      Tier   `json:"tier"`
	Exempt    bool   `json:"exempt"`
}

// SessionFailedPayload is recorded when a session is moved to FAILED.
type SessionFailedPayload struct {
	Reason string `json:"reason"`
}
