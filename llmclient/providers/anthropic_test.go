package providers_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/llmclient/providers"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &providers.AnthropicProvider{}
	require.Equal(t, "https://api.anthropic.com/v1/messages", p.BuildURL(""))
	require.Equal(t, "https://proxy.example.com/v1/messages", p.BuildURL("https://proxy.example.com/"))
}

func TestAnthropicProvider_Available(t *testing.T) {
	p := &providers.AnthropicProvider{}
	os.Unsetenv("ANTHROPIC_API_KEY")
	require.False(t, p.Available())
	os.Setenv("ANTHROPIC_API_KEY", "sk-test")
	defer os.Unsetenv("ANTHROPIC_API_KEY")
	require.True(t, p.Available())
}

func TestAnthropicProvider_BuildRequestBody_SeparatesSystemMessage(t *testing.T) {
	p := &providers.AnthropicProvider{}
	body, err := p.BuildRequestBody("claude-sonnet-4-20250514", []llmclient.Message{
		{Role: "system", Content: "You are a financial analyst."},
		{Role: "user", Content: "Summarize this document."},
	}, nil, 1000)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, "You are a financial analyst.", decoded["system"])
	messages := decoded["messages"].([]any)
	require.Len(t, messages, 1)
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	p := &providers.AnthropicProvider{}
	body := []byte(`{
		"content": [{"type": "text", "text": "hello"}],
		"model": "claude-sonnet-4-20250514",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 5, "output_tokens": 3}
	}`)

	resp, err := p.ParseResponse(body, "claude-sonnet-4-20250514")
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Content)
	require.Equal(t, 8, resp.Usage.TotalTokens)
	require.Equal(t, "end_turn", resp.FinishReason)
}

func TestAnthropicProvider_ParseStreamLine(t *testing.T) {
	p := &providers.AnthropicProvider{}

	delta, done, err := p.ParseStreamLine([]byte(`data: {"type":"content_block_delta","delta":{"text":"hi"}}`))
	require.NoError(t, err)
	require.Equal(t, "hi", delta)
	require.False(t, done)

	_, done, err = p.ParseStreamLine([]byte(`data: {"type":"message_stop"}`))
	require.NoError(t, err)
	require.True(t, done)

	delta, done, err = p.ParseStreamLine([]byte(``))
	require.NoError(t, err)
	require.Empty(t, delta)
	require.False(t, done)
}
