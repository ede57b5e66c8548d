package llmclient

import "github.com/planforge/finmodel/model"

// Tier re-exports model.Tier so callers only import llmclient for the
// request/response shapes they build completion requests from.
type Tier = model.Tier

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Request is a completion request routed by tier rather than by a fixed
// provider/model, so a phase agent never names a specific model directly.
type Request struct {
	Tier Tier

	Messages []Message

	// Temperature is nil to use the endpoint default, or an explicit value.
	Temperature *float64

	// MaxTokens limits the response length; 0 uses the endpoint default.
	MaxTokens int
}

// TokenUsage reports token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a completion request.
type Response struct {
	RequestID string

	Content string

	Model string

	Usage TokenUsage

	// FinishReason mirrors the provider's stop reason ("stop", "max_tokens",
	// "tool_use", ...); the JSON guard uses it to decide whether to attempt
	// truncation repair.
	FinishReason string
}
