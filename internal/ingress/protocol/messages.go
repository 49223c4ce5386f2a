// Package protocol defines the WebSocket message protocol between clients and
// ingress, and the JSON-RPC push contract between orchestrator and ingress.
package protocol

import "encoding/json"

// Message types from client to ingress
const (
	TypeHello      = "hello"
	TypeSubmitTurn = "submit_turn"
)

// Message types from ingress to client. Session events pushed by the
// orchestrator keep their own type names (turn_committed, session_completed...).
const (
	TypeHelloAck     = "hello_ack"
	TypeTurnAccepted = "turn_accepted"
	TypeError        = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage is sent by client to bind the connection to a session.
type HelloMessage struct {
	BaseMessage
	APIKey     string            `json:"api_key,omitempty"`
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage is sent by ingress after successful hello.
type HelloAckMessage struct {
	BaseMessage
	CurrentTurn int    `json:"current_turn"`
	MaxTurns    int    `json:"max_turns"`
	Status      string `json:"status"`
}

// SubmitTurnMessage is sent by client to play the next turn.
type SubmitTurnMessage struct {
	BaseMessage
	ExpectedTurnIndex int    `json:"expected_turn_index"`
	Input             string `json:"input"`
}

// TurnAcceptedMessage acknowledges a committed turn to the submitting
// connection. Other connections learn about it from the pushed event.
type TurnAcceptedMessage struct {
	BaseMessage
	TurnIndex   int    `json:"turn_index"`
	CurrentTurn int    `json:"current_turn"`
	Status      string `json:"status"`
}

// ErrorMessage is sent by ingress when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error codes raised by ingress itself. Orchestrator codes are passed through.
const (
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeUnauthorized     = "unauthorized"
	ErrorCodeSessionRequired  = "session_required"
	ErrorCodeOrchestratorFail = "orchestrator_fail"
)

// Event is a session event pushed from the orchestrator to ingress and
// forwarded verbatim to clients.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	TurnIndex int             `json:"turn_index"`
	Ts        int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SendRequest is the JSON-RPC request body for Ingress.PushEvent.
type SendRequest struct {
	SessionID string `json:"session_id"`
	Event     Event  `json:"event"`
}

// SendResponse is the JSON-RPC response for Ingress.PushEvent.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

// PushEventMethod is the JSON-RPC method name served by ingress.
const PushEventMethod = "Ingress.PushEvent"
