package agents_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/planforge/finmodel/llmclient"
	_ "github.com/planforge/finmodel/llmclient/providers"
	"github.com/planforge/finmodel/model"
	"github.com/planforge/finmodel/promptregistry"
)

// newFixedClient returns a client whose single configured endpoint always
// replies with content as the assistant message, plus the prompt registry
// every phase resolves its built-in prompts from.
func newFixedClient(t *testing.T, content string) (*llmclient.Client, *promptregistry.Registry) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"message": map[string]string{"content": content},
			"done":    true,
		})
	}))
	t.Cleanup(server.Close)

	registry := model.NewRegistry(
		map[model.Tier]*model.TierConfig{
			model.Standard: {Description: "test tier", Preferred: []string{"test-endpoint"}},
		},
		map[string]*model.EndpointConfig{
			"test-endpoint": {Provider: "ollama", URL: server.URL, Model: "test-model"},
		},
		"test-endpoint",
	)

	client := llmclient.NewClient(registry)

	prompts := promptregistry.NewRegistry()
	promptregistry.RegisterDefaults(prompts)

	return client, prompts
}
