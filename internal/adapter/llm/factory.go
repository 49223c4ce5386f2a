package llm

import (
	"os"
	"time"

	"github.com/xiaot623/improv/internal/logging"
)

const (
	// EnvImprovMode is the environment variable name for mode selection.
	EnvImprovMode = "IMPROV_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates an LLM client based on the IMPROV_MODE environment variable.
// If IMPROV_MODE=MOCK, returns a MockClient; otherwise returns a real Client.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	if os.Getenv(EnvImprovMode) == ModeMock {
		logging.Logger().Info("IMPROV_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
