package llm

import (
	"context"
	"fmt"
)

// CheckModel verifies that model is served by the LLM backend.
func CheckModel(ctx context.Context, client LLMClient, model string) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	for _, m := range models {
		if m.ID == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not served by the LLM backend (%d models available)", model, len(models))
}
