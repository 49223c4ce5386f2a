package service

import (
	"encoding/json"
	"strings"

	"github.com/xiaot623/improv/internal/domain"
)

// agentReply is the structured output agents are asked to produce.
type agentReply struct {
	Speaker  string         `json:"speaker"`
	Line     string         `json:"line"`
	Content  string         `json:"content"`
	Text     string         `json:"text"`
	Feedback *replyFeedback `json:"feedback"`
}

type replyFeedback struct {
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths"`
	Suggestions []string `json:"suggestions"`
}

// parsedTurn is an agent output that passed validation.
type parsedTurn struct {
	Speaker    string
	Line       string
	Structured bool
	Feedback   *replyFeedback
}

// parseAgentOutput reads structured JSON first and falls back to plain text.
// Output that is empty, or that is JSON but not a usable reply, is invalid.
func parseAgentOutput(text string) (*parsedTurn, error) {
	trimmed := stripCodeFence(strings.TrimSpace(text))
	if trimmed == "" {
		return nil, domain.E(domain.CodeAgentResponseInvalid, "agent returned empty output")
	}

	switch trimmed[0] {
	case '{':
		var reply agentReply
		if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
			return nil, domain.Wrap(domain.CodeAgentResponseInvalid, err, "agent returned malformed JSON")
		}
		return structuredTurn(&reply)
	case '[':
		return nil, domain.E(domain.CodeAgentResponseInvalid, "agent returned a JSON array")
	}

	// Models sometimes wrap the object in prose.
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start > 0 && end > start {
		var reply agentReply
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &reply); err == nil {
			if turn, err := structuredTurn(&reply); err == nil {
				return turn, nil
			}
		}
	}

	return &parsedTurn{Line: trimmed}, nil
}

func structuredTurn(reply *agentReply) (*parsedTurn, error) {
	line := firstNonEmpty(reply.Line, reply.Content, reply.Text)
	if line == "" {
		return nil, domain.E(domain.CodeAgentResponseInvalid, "agent reply has no line")
	}
	turn := &parsedTurn{
		Speaker:    strings.TrimSpace(reply.Speaker),
		Line:       line,
		Structured: true,
	}
	if fb := reply.Feedback; fb != nil && (strings.TrimSpace(fb.Summary) != "" || len(fb.Strengths) > 0 || len(fb.Suggestions) > 0) {
		turn.Feedback = fb
	}
	return turn, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
