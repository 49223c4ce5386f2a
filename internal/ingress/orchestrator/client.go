// Package orchestrator provides an HTTP client for the orchestrator API.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an HTTP client for the orchestrator API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new orchestrator client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Session is the part of the orchestrator session the ingress needs.
type Session struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	CurrentTurn int    `json:"current_turn"`
	MaxTurns    int    `json:"max_turns"`
}

// TurnRequest is the body of a turn submission.
type TurnRequest struct {
	ExpectedTurnIndex int    `json:"expected_turn_index"`
	Input             string `json:"input"`
	RequestID         string `json:"request_id,omitempty"`
}

// TurnRecord is the committed turn returned by the orchestrator.
type TurnRecord struct {
	TurnIndex int    `json:"turn_index"`
	Speaker   string `json:"speaker"`
	Content   string `json:"content"`
}

// TurnResponse is returned for an accepted turn.
type TurnResponse struct {
	Session Session    `json:"session"`
	Turn    TurnRecord `json:"turn"`
}

// ErrorResponse represents an error response from the orchestrator.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// APIError is a non-2xx answer from the orchestrator.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orchestrator error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("orchestrator returned status %d: %s", e.Status, e.Message)
}

// GetSession calls GET /v1/sessions/:session_id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SubmitTurn calls POST /v1/sessions/:session_id/turns.
func (c *Client) SubmitTurn(ctx context.Context, sessionID string, req *TurnRequest) (*TurnResponse, error) {
	var resp TurnResponse
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/turns"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode, Message: string(respBody)}
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
			apiErr.Retryable = errResp.Retryable
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode orchestrator response: %w", err)
	}
	return nil
}
