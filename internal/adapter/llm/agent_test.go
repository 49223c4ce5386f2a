package llm

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/improv/internal/domain"
)

var domainAgent = domain.Agent{
	AgentID: "narrator",
	Name:    "Narrator",
	Kind:    domain.AgentKindLLM,
	Persona: "a dry-witted lighthouse keeper",
}

func sampleContext(coaching bool) domain.AgentContext {
	actx := domain.AgentContext{
		SessionID:    "s1",
		TurnIndex:    2,
		MaxTurns:     3,
		Phase:        domain.PhaseWarmup,
		PhaseName:    "warmup",
		Instructions: "Establish who, what and where.",
		Premise:      "a storm",
		History: []domain.TurnRecord{
			{TurnIndex: 0, Speaker: "Narrator", Input: "Hello there", Content: "Welcome aboard."},
			{TurnIndex: 1, Speaker: "Narrator", Content: "The lamp flickers."},
		},
		Input: "I grab the oil can.",
	}
	if coaching {
		actx.IncludeCoaching = true
		actx.CoachingInstructions = "Give the participant feedback."
	}
	return actx
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages(&domainAgent, sampleContext(false))

	require.Len(t, msgs, 5)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Narrator")
	assert.Contains(t, msgs[0].Content, "lighthouse keeper")
	assert.Contains(t, msgs[0].Content, "turn 3 of 3")
	assert.NotContains(t, msgs[0].Content, `"feedback"`)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "assistant", msgs[3].Role)
	assert.Equal(t, "I grab the oil can.", msgs[4].Content)
}

func TestBuildMessagesEmptyInput(t *testing.T) {
	actx := sampleContext(false)
	actx.Input = "   "
	msgs := BuildMessages(&domainAgent, actx)
	assert.Equal(t, waitingInput, msgs[len(msgs)-1].Content)
}

func TestMockAgentProducesStructuredLines(t *testing.T) {
	agent := NewAgent(NewMockClient(), "mock-improv")

	out, err := agent.Generate(context.Background(), &domainAgent, sampleContext(false))
	require.NoError(t, err)

	var reply map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Text), &reply))
	assert.True(t, strings.HasPrefix(reply["line"].(string), "[MOCK] Yes, and"))
	assert.NotContains(t, reply, FeedbackKey)

	out, err = agent.Generate(context.Background(), &domainAgent, sampleContext(true))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out.Text), &reply))
	assert.Contains(t, reply, FeedbackKey)
}

func TestMockClientHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockClient().CreateChatCompletion(ctx, &ChatCompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFactoryMockMode(t *testing.T) {
	t.Setenv(EnvImprovMode, ModeMock)
	_, ok := NewLLMClient("http://unused", "", 0).(*MockClient)
	assert.True(t, ok)

	t.Setenv(EnvImprovMode, "")
	_, ok = NewLLMClient("http://unused", "", 0).(*Client)
	assert.True(t, ok)
}
