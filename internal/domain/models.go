package domain

import "encoding/json"

// Event represents a session trace event for replay.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	TurnIndex int             `json:"turn_index"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
