package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/planforge/finmodel/llmclient"
)

// OpenAIProvider implements the OpenAI chat completions API. It reuses
// go-openai's request/response structs for correct wire-format fidelity,
// but drives the HTTP call itself through the client's own transport so a
// single retry/fallback/circuit-breaker path covers every provider equally
// rather than each adapter owning its own HTTP client and timeout policy.
type OpenAIProvider struct{}

func init() {
	llmclient.RegisterProvider(&OpenAIProvider{})
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Available() bool {
	return os.Getenv("OPENAI_API_KEY") != ""
}

func (o *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return strings.TrimSuffix(baseURL, "/") + "/v1/chat/completions"
}

func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

func buildOpenAIRequest(model string, messages []llmclient.Message, temperature *float64, maxTokens int, stream bool) openai.ChatCompletionRequest {
	apiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: apiMessages,
		Stream:   stream,
	}
	if temperature != nil {
		req.Temperature = float32(*temperature)
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	return req
}

func (o *OpenAIProvider) BuildRequestBody(model string, messages []llmclient.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(buildOpenAIRequest(model, messages, temperature, maxTokens, false))
}

func (o *OpenAIProvider) StreamRequestBody(model string, messages []llmclient.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(buildOpenAIRequest(model, messages, temperature, maxTokens, true))
}

func (o *OpenAIProvider) ParseResponse(body []byte, _ string) (*llmclient.Response, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	choice := resp.Choices[0]
	return &llmclient.Response{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage: llmclient.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
	}, nil
}

func (o *OpenAIProvider) ParseStreamLine(line []byte) (string, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
		return "", false, nil
	}
	payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(payload) == 0 {
		return "", false, nil
	}
	if string(payload) == "[DONE]" {
		return "", true, nil
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, fmt.Errorf("parse openai stream chunk: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}

	delta := chunk.Choices[0].Delta.Content
	done := chunk.Choices[0].FinishReason != ""
	return delta, done, nil
}
