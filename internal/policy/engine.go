package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/improv/internal/domain"
)

// Engine is the OPA policy engine deciding which actions are metered.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document the access policy is evaluated against.
type Input struct {
	Action domain.AccessAction `json:"action"`
	Tier   domain.Tier         `json:"tier"`
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.access_policy.metered"),
		rego.Module("access_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Metered reports whether the action counts against the tier's session quota.
func (e *Engine) Metered(ctx context.Context, action domain.AccessAction, tier domain.Tier) (bool, error) {
	input := map[string]interface{}{
		"action": string(action),
		"tier":   string(tier),
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined result means the policy has no default; treat as unmetered.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	metered, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy returned %T, expected bool", results[0].Expressions[0].Value)
	}
	return metered, nil
}

// DefaultPolicy meters audio sessions for every tier. Exemption is decided
// by the usage limiter, not here.
const DefaultPolicy = `
package access_policy

default metered = false

metered = true {
	input.action == "audio"
}
`
