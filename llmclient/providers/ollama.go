package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/planforge/finmodel/llmclient"
)

// OllamaProvider implements Ollama's /api/chat endpoint. Ollama has no API
// key: Available() always reports true since the registry's circuit
// breaker, not a missing credential, is what takes a down local instance
// out of the fallback chain.
type OllamaProvider struct{}

func init() {
	llmclient.RegisterProvider(&OllamaProvider{})
}

func (o *OllamaProvider) Name() string { return "ollama" }

func (o *OllamaProvider) Available() bool { return true }

func (o *OllamaProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return strings.TrimSuffix(baseURL, "/") + "/api/chat"
}

func (o *OllamaProvider) SetHeaders(req *http.Request) {}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

func buildOllamaRequest(model string, messages []llmclient.Message, temperature *float64, maxTokens int, stream bool) ollamaRequest {
	apiMessages := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}

	var opts ollamaOptions
	if temperature != nil {
		opts.Temperature = *temperature
	}
	if maxTokens > 0 {
		opts.NumPredict = maxTokens
	}

	return ollamaRequest{
		Model:    model,
		Messages: apiMessages,
		Stream:   stream,
		Options:  opts,
	}
}

func (o *OllamaProvider) BuildRequestBody(model string, messages []llmclient.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(buildOllamaRequest(model, messages, temperature, maxTokens, false))
}

func (o *OllamaProvider) StreamRequestBody(model string, messages []llmclient.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(buildOllamaRequest(model, messages, temperature, maxTokens, true))
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	DoneReason      string `json:"done_reason"`
}

func (o *OllamaProvider) ParseResponse(body []byte, _ string) (*llmclient.Response, error) {
	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse ollama response: %w", err)
	}

	total := resp.PromptEvalCount + resp.EvalCount
	finish := resp.DoneReason
	if finish == "" && resp.Done {
		finish = "stop"
	}
	return &llmclient.Response{
		Content: resp.Message.Content,
		Model:   resp.Model,
		Usage: llmclient.TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      total,
		},
		FinishReason: finish,
	}, nil
}

// ParseStreamLine decodes one NDJSON line from Ollama's streaming response
// — unlike Anthropic/OpenAI there is no "data:" prefix, each line is a bare
// JSON object.
func (o *OllamaProvider) ParseStreamLine(line []byte) (string, bool, error) {
	line = []byte(strings.TrimSpace(string(line)))
	if len(line) == 0 {
		return "", false, nil
	}

	var chunk ollamaResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		return "", false, fmt.Errorf("parse ollama stream chunk: %w", err)
	}
	return chunk.Message.Content, chunk.Done, nil
}
