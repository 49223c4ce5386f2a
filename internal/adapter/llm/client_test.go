package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientCreateChatCompletion(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", time.Second)
	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "gpt",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion failed: %v", err)
	}
	if resp.Model != "gpt" || len(resp.Choices) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestClientCreateChatCompletionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "gpt",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestClientListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"object":"list","data":[{"id":"m1","object":"model"}]}`)
	}))
	defer server.Close()

	models, err := NewClient(server.URL, "", time.Second).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0].ID != "m1" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestAgentGenerateSendsJSONRequest(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		fmt.Fprint(w, `{"model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"{\"line\":\"ok\"}"}}],"usage":{"total_tokens":9}}`)
	}))
	defer server.Close()

	agent := NewAgent(NewClient(server.URL, "", time.Second), "default-model")
	out, err := agent.Generate(context.Background(), &domainAgent, sampleContext(false))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out.Text != `{"line":"ok"}` || out.Usage == nil || out.Usage.TotalTokens != 9 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if got.Model != "default-model" {
		t.Fatalf("expected default model, got %q", got.Model)
	}
	if got.ResponseFormat["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", got.ResponseFormat)
	}
}

func TestAgentGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model":"gpt","choices":[]}`)
	}))
	defer server.Close()

	agent := NewAgent(NewClient(server.URL, "", time.Second), "gpt")
	if _, err := agent.Generate(context.Background(), &domainAgent, sampleContext(false)); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestCheckModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	if err := CheckModel(context.Background(), client, "gpt-4o-mini"); err != nil {
		t.Fatalf("expected model to be found: %v", err)
	}
	if err := CheckModel(context.Background(), client, "missing"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
	if err := CheckModel(context.Background(), NewMockClient(), "mock-improv"); err != nil {
		t.Fatalf("mock client should serve mock-improv: %v", err)
	}
}
