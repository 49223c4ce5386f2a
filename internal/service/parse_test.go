package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/improv/internal/domain"
)

func TestParseAgentOutput(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		line       string
		speaker    string
		structured bool
	}{
		{name: "plain text", text: "  Yes, and the boat sank.  ", line: "Yes, and the boat sank."},
		{name: "json line", text: `{"line":"hello","speaker":"Captain"}`, line: "hello", speaker: "Captain", structured: true},
		{name: "json content alias", text: `{"content":"hi there"}`, line: "hi there", structured: true},
		{name: "fenced json", text: "```json\n{\"line\":\"fenced\"}\n```", line: "fenced", structured: true},
		{name: "one-line fence", text: "```just words```", line: "just words"},
		{name: "embedded object", text: `Sure! {"line":"inside"} hope that helps`, line: "inside", structured: true},
		{name: "braces in prose", text: "a {curly} remark", line: "a {curly} remark"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn, err := parseAgentOutput(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.line, turn.Line)
			assert.Equal(t, tt.speaker, turn.Speaker)
			assert.Equal(t, tt.structured, turn.Structured)
		})
	}
}

func TestParseAgentOutputFeedback(t *testing.T) {
	turn, err := parseAgentOutput(`{"line":"bow","feedback":{"summary":"nice","suggestions":["slow down"]}}`)
	require.NoError(t, err)
	require.NotNil(t, turn.Feedback)
	assert.Equal(t, "nice", turn.Feedback.Summary)

	turn, err = parseAgentOutput(`{"line":"bow","feedback":{}}`)
	require.NoError(t, err)
	assert.Nil(t, turn.Feedback)
}

func TestParseAgentOutputInvalid(t *testing.T) {
	for _, text := range []string{"", "   ", `[1,2]`, `{"line":""}`, `{"line":`} {
		_, err := parseAgentOutput(text)
		assert.True(t, domain.IsCode(err, domain.CodeAgentResponseInvalid), "%q: %v", text, err)
	}
}

func TestSessionLocksExclusive(t *testing.T) {
	locks := newSessionLocks()
	release, err := locks.acquire(context.Background(), "s1")
	require.NoError(t, err)

	_, ok := locks.tryAcquire("s1")
	assert.False(t, ok)

	other, ok := locks.tryAcquire("s2")
	require.True(t, ok)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, locks.size())

	again, ok := locks.tryAcquire("s1")
	require.True(t, ok)
	again()
	assert.Equal(t, 0, locks.size())
}
