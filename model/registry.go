// Package model holds the static provider/model catalog and per-endpoint
// circuit-breaker health tracking the provider adapter layer consults
// before issuing a call.
package model

import (
	"encoding/json"
	"sync"
)

// Registry maps tiers to preferred endpoints with fallback chains, and
// endpoint names to the provider/model details needed to call them.
type Registry struct {
	mu        sync.RWMutex
	tiers     map[Tier]*TierConfig
	endpoints map[string]*EndpointConfig
	defaults  *DefaultsConfig
	health    *healthState
}

// TierConfig defines endpoint preferences for a tier.
type TierConfig struct {
	Description string   `json:"description"`
	Preferred   []string `json:"preferred"`
	Fallback    []string `json:"fallback"`
}

// EndpointConfig describes one callable (provider, model) pair.
type EndpointConfig struct {
	// Provider is the adapter name: anthropic, openai, or ollama.
	Provider string `json:"provider"`
	// URL overrides the provider's default base URL (used for ollama).
	URL string `json:"url,omitempty"`
	// Model is the model identifier sent to the provider.
	Model string `json:"model"`
	// MaxTokens is the endpoint's context window, used to size truncation
	// and streaming-progress budgets.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// DefaultsConfig holds the fallback-of-last-resort endpoint name.
type DefaultsConfig struct {
	Endpoint string `json:"endpoint"`
}

// NewRegistry builds a Registry from explicit tier/endpoint maps.
func NewRegistry(tiers map[Tier]*TierConfig, endpoints map[string]*EndpointConfig, defaultEndpoint string) *Registry {
	return &Registry{
		tiers:     tiers,
		endpoints: endpoints,
		defaults:  &DefaultsConfig{Endpoint: defaultEndpoint},
	}
}

// NewDefaultRegistry returns the catalog used when no configuration file
// overrides it: one tier ("standard") with Anthropic preferred and
// OpenAI/Ollama as fallbacks, matching the three backends the provider
// adapter layer supports.
func NewDefaultRegistry() *Registry {
	return &Registry{
		tiers: map[Tier]*TierConfig{
			Standard: {
				Description: "Default tier used by all phase agents.",
				Preferred:   []string{"anthropic-standard"},
				Fallback:    []string{"openai-standard", "ollama-standard"},
			},
		},
		endpoints: map[string]*EndpointConfig{
			"anthropic-standard": {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 200000,
			},
			"openai-standard": {
				Provider:  "openai",
				Model:     "gpt-4o",
				MaxTokens: 128000,
			},
			"ollama-standard": {
				Provider:  "ollama",
				URL:       "http://localhost:11434",
				Model:     "qwen2.5:14b",
				MaxTokens: 32000,
			},
		},
		defaults: &DefaultsConfig{Endpoint: "anthropic-standard"},
	}
}

// Resolve returns the first preferred endpoint name for a tier, or the
// registry's default endpoint if the tier is unconfigured.
func (r *Registry) Resolve(tier Tier) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.tiers[tier]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Endpoint
}

// GetFallbackChain returns every endpoint name configured for a tier, in
// preferred-then-fallback order, for the adapter to walk on failure.
func (r *Registry) GetFallbackChain(tier Tier) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.tiers[tier]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Endpoint}
}

// GetEndpoint returns the endpoint configuration for a name, or nil if
// unconfigured.
func (r *Registry) GetEndpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// SetTier adds or replaces a tier's configuration.
func (r *Registry) SetTier(tier Tier, cfg *TierConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tiers == nil {
		r.tiers = make(map[Tier]*TierConfig)
	}
	r.tiers[tier] = cfg
}

// SetEndpoint adds or replaces an endpoint's configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	r.endpoints[name] = cfg
}

// ListEndpoints returns every configured endpoint name.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}

// MarshalJSON implements json.Marshaler so the registry can be surfaced by
// an admin/debug endpoint.
func (r *Registry) MarshalJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return json.Marshal(struct {
		Tiers     map[Tier]*TierConfig       `json:"tiers"`
		Endpoints map[string]*EndpointConfig `json:"endpoints"`
		Defaults  *DefaultsConfig            `json:"defaults,omitempty"`
	}{
		Tiers:     r.tiers,
		Endpoints: r.endpoints,
		Defaults:  r.defaults,
	})
}
