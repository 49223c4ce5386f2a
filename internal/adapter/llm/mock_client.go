package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MockClient is a deterministic LLMClient that answers with structured scene
// lines, including coaching feedback when the prompt asks for it.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

type mockReply struct {
	Line     string        `json:"line"`
	Feedback *mockFeedback `json:"feedback,omitempty"`
}

type mockFeedback struct {
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths"`
	Suggestions []string `json:"suggestions"`
}

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	responseContent := m.generateMockResponse(req)

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: &ChatMessage{
					Role:    "assistant",
					Content: responseContent,
				},
				FinishReason: "stop",
			},
		},
		Usage: &Usage{
			PromptTokens:     m.estimateTokens(req),
			CompletionTokens: len(responseContent) / 4,
			TotalTokens:      m.estimateTokens(req) + len(responseContent)/4,
		},
	}, nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{
		{
			ID:      "mock-improv",
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "mock",
		},
	}, nil
}

// generateMockResponse builds a JSON reply that says "yes, and" to the last
// user message.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	var system, lastUserMessage string
	for _, msg := range req.Messages {
		if msg.Role == "system" && system == "" {
			system = msg.Content
		}
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	reply := mockReply{Line: "[MOCK] Yes, and the scene carries on."}
	if lastUserMessage != "" && lastUserMessage != waitingInput {
		reply.Line = fmt.Sprintf("[MOCK] Yes, and %s", truncate(lastUserMessage, 100))
	}
	if strings.Contains(system, fmt.Sprintf("%q", FeedbackKey)) {
		reply.Feedback = &mockFeedback{
			Summary:     "[MOCK] A complete scene with a clear ending.",
			Strengths:   []string{"Accepted offers"},
			Suggestions: []string{"Heighten earlier"},
		}
	}
	data, _ := json.Marshal(reply)
	return string(data)
}

// estimateTokens provides a rough token count estimate.
func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
