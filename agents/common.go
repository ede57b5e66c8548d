// Package agents implements the five phase agents: pure functions of
// (prompt registry, previous phases' raw results, optional feedback,
// optional catalog) to a typed result, each backed by one LLM completion
// routed through the JSON output guard.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/guard"
	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/promptregistry"
)

// decode round-trips a guard-extracted object into a typed result.
func decode(obj map[string]any, target any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("agents: remarshal guard output: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("agents: decode guard output: %w", err)
	}
	return nil
}

// emptyCriticalResult builds the error a phase raises when its one
// required list is empty after auto-unwrap.
func emptyCriticalResult(phase, field string) error {
	return apperr.New(apperr.KindEmptyCriticalResult, "EmptyCriticalResult",
		fmt.Sprintf("%s: %s must not be empty", phase, field))
}

func systemPrompt(reg *promptregistry.Registry, projectID, key string) (string, error) {
	return reg.Resolve(projectID, key)
}

// runExtraction sends system+user at a fixed low temperature (phase agents
// want reproducible structure, not creative variation) and auto-unwraps
// the guarded JSON result against expectedKeys.
func runExtraction(ctx context.Context, client *llmclient.Client, tier llmclient.Tier, system, user string, expectedKeys []string) (map[string]any, error) {
	messages := []llmclient.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	obj, err := client.Extract(ctx, tier, messages, 0.2)
	if err != nil {
		return nil, err
	}
	return guard.AutoUnwrap(obj, expectedKeys), nil
}

func marshalOrWrap(v any, what string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("agents: marshal %s: %w", what, err)
	}
	return raw, nil
}
