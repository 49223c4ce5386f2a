package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/improv/internal/domain"
)

// FeedbackKey is the JSON key the final-turn prompt asks the model to fill.
const FeedbackKey = "feedback"

const waitingInput = "(The participant pauses and waits for you to continue the scene.)"

// Agent voices an llm-kind scene partner through an LLMClient.
type Agent struct {
	client       LLMClient
	defaultModel string
}

// Ensure Agent implements domain.AgentCapability.
var _ domain.AgentCapability = (*Agent)(nil)

// NewAgent creates an LLM-backed agent capability. defaultModel is used for
// agents registered without a model.
func NewAgent(client LLMClient, defaultModel string) *Agent {
	return &Agent{client: client, defaultModel: defaultModel}
}

// Generate asks the model for the next line of the scene.
func (a *Agent) Generate(ctx context.Context, agent *domain.Agent, actx domain.AgentContext) (*domain.AgentOutput, error) {
	model := agent.Model
	if model == "" {
		model = a.defaultModel
	}
	req := &ChatCompletionRequest{
		Model:          model,
		Messages:       BuildMessages(agent, actx),
		User:           actx.SessionID,
		ResponseFormat: map[string]interface{}{"type": "json_object"},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, domain.E(domain.CodeAgentResponseInvalid, "model %s returned no choices", model)
	}

	out := &domain.AgentOutput{Text: resp.Choices[0].Message.Content}
	if resp.Usage != nil {
		out.Usage = &domain.UsageData{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// BuildMessages renders the agent context as a chat transcript: a system
// prompt followed by the recent turns and the participant's new input.
func BuildMessages(agent *domain.Agent, actx domain.AgentContext) []ChatMessage {
	messages := []ChatMessage{{Role: "system", Content: systemPrompt(agent, actx)}}
	for _, rec := range actx.History {
		if rec.Input != "" {
			messages = append(messages, ChatMessage{Role: "user", Content: rec.Input})
		}
		messages = append(messages, ChatMessage{Role: "assistant", Content: rec.Content, Name: sanitizeName(rec.Speaker)})
	}
	input := strings.TrimSpace(actx.Input)
	if input == "" {
		input = waitingInput
	}
	messages = append(messages, ChatMessage{Role: "user", Content: input})
	return messages
}

func systemPrompt(agent *domain.Agent, actx domain.AgentContext) string {
	var b strings.Builder
	name := agent.Name
	if name == "" {
		name = agent.AgentID
	}
	fmt.Fprintf(&b, "You are %s, an improv scene partner.", name)
	if agent.Persona != "" {
		fmt.Fprintf(&b, " Persona: %s.", agent.Persona)
	}
	fmt.Fprintf(&b, "\nThis is turn %d of %d, phase %q. %s", actx.TurnIndex+1, actx.MaxTurns, actx.PhaseName, actx.Instructions)
	if actx.Premise != "" {
		fmt.Fprintf(&b, "\nScene premise: %s", actx.Premise)
	}
	fmt.Fprintf(&b, "\nReply with a JSON object: {\"speaker\": %q, \"line\": \"<your next line>\"}.", name)
	if actx.IncludeCoaching {
		fmt.Fprintf(&b, "\n%s\nAlso include %q: {\"summary\": \"...\", \"strengths\": [\"...\"], \"suggestions\": [\"...\"]}.",
			actx.CoachingInstructions, FeedbackKey)
	}
	return b.String()
}

// sanitizeName keeps chat message names within the characters OpenAI accepts.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
