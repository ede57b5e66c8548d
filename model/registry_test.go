package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_ResolveStandardTier(t *testing.T) {
	r := NewDefaultRegistry()
	require.Equal(t, "anthropic-standard", r.Resolve(Standard))
}

func TestDefaultRegistry_FallbackChainIncludesAllThreeProviders(t *testing.T) {
	r := NewDefaultRegistry()
	chain := r.GetFallbackChain(Standard)
	require.Equal(t, []string{"anthropic-standard", "openai-standard", "ollama-standard"}, chain)

	providers := make(map[string]bool)
	for _, name := range chain {
		ep := r.GetEndpoint(name)
		require.NotNil(t, ep)
		providers[ep.Provider] = true
	}
	require.True(t, providers["anthropic"])
	require.True(t, providers["openai"])
	require.True(t, providers["ollama"])
}

func TestRegistry_UnknownTierFallsBackToDefault(t *testing.T) {
	r := NewDefaultRegistry()
	require.Equal(t, "anthropic-standard", r.Resolve(Tier("nonexistent")))
}

func TestRegistry_SetEndpointOverridesModel(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetEndpoint("anthropic-standard", &EndpointConfig{Provider: "anthropic", Model: "claude-haiku-3-5"})
	require.Equal(t, "claude-haiku-3-5", r.GetEndpoint("anthropic-standard").Model)
}
