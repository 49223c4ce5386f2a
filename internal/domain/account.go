package domain

import "time"

// UnlimitedSessions is the metered_sessions_limit sentinel stored for
// accounts on exempt tiers.
const UnlimitedSessions = -1

// Account is the per-account metered state.
type Account struct {
	AccountID            string    `json:"account_id"`
	Tier                 Tier      `json:"tier"`
	MeteredSessionsUsed  int       `json:"metered_sessions_used"`
	MeteredSessionsLimit int       `json:"metered_sessions_limit"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// AccessAction names an action the transport layer asks permission for.
type AccessAction string

const (
	AccessActionAudio AccessAction = "audio"
	AccessActionText  AccessAction = "text"
)

// AccessDecision is the verdict returned to the transport layer before it
// allows a metered action.
type AccessDecision struct {
	AccountID string       `json:"account_id"`
	Action    AccessAction `json:"action"`
	Tier      Tier         `json:"tier"`
	Allowed   bool         `json:"allowed"`
	Metered   bool         `json:"metered"`
	Remaining int          `json:"remaining"`
	Reason    string       `json:"reason,omitempty"`
}
