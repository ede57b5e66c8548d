package llmclient

import (
	"net/http"
	"sync"
)

// Provider adapts one backend's wire format to the common Message/Response
// shapes. extract() in the phase agents never talks HTTP directly — it goes
// through a Provider registered here.
type Provider interface {
	// Name is the adapter identifier ("anthropic", "openai", "ollama").
	Name() string

	// BuildURL constructs the completion endpoint, given the endpoint's
	// configured base URL override (empty string selects the provider's
	// public default).
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific auth/version headers.
	SetHeaders(req *http.Request)

	// BuildRequestBody encodes the chat request in the provider's format.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse decodes the provider's response into the common shape.
	ParseResponse(body []byte, model string) (*Response, error)

	// Available reports whether the adapter has what it needs to run (an
	// API key in the environment, for providers that require one).
	Available() bool
}

// StreamingProvider is implemented by adapters that can emit incremental
// text deltas instead of waiting for the full response body.
type StreamingProvider interface {
	Provider

	// StreamRequestBody encodes the chat request with streaming enabled.
	StreamRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseStreamLine decodes one line of the provider's stream framing
	// (an SSE data line or an NDJSON record) into a text delta. done is
	// true once the provider signals the stream is finished; a line that
	// carries no text delta (e.g. an SSE event line) returns ("", false, nil).
	ParseStreamLine(line []byte) (delta string, done bool, err error)
}

var (
	registryMu       sync.RWMutex
	providerRegistry = make(map[string]Provider)
)

// RegisterProvider adds a provider under its Name(). Adapters call this
// from an init() func so registering one is a side-effect-free import.
func RegisterProvider(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider looks up a provider by name, or nil if none is registered.
func GetProvider(name string) Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns every registered provider name.
func ListProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	return names
}
