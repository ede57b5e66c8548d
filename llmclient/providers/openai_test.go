package providers_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/llmclient/providers"
)

func TestOpenAIProvider_BuildURL(t *testing.T) {
	p := &providers.OpenAIProvider{}
	require.Equal(t, "https://api.openai.com/v1/chat/completions", p.BuildURL(""))
}

func TestOpenAIProvider_Available(t *testing.T) {
	p := &providers.OpenAIProvider{}
	os.Unsetenv("OPENAI_API_KEY")
	require.False(t, p.Available())
	os.Setenv("OPENAI_API_KEY", "sk-test")
	defer os.Unsetenv("OPENAI_API_KEY")
	require.True(t, p.Available())
}

func TestOpenAIProvider_BuildRequestBody(t *testing.T) {
	p := &providers.OpenAIProvider{}
	temp := 0.5
	body, err := p.BuildRequestBody("gpt-4o", []llmclient.Message{
		{Role: "user", Content: "hello"},
	}, &temp, 500)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, "gpt-4o", decoded["model"])
	require.Equal(t, float64(500), decoded["max_tokens"])
}

func TestOpenAIProvider_ParseResponse(t *testing.T) {
	p := &providers.OpenAIProvider{}
	body := []byte(`{
		"model": "gpt-4o",
		"choices": [{"message": {"role": "assistant", "content": "hi"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 4, "completion_tokens": 2, "total_tokens": 6}
	}`)

	resp, err := p.ParseResponse(body, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Content)
	require.Equal(t, 6, resp.Usage.TotalTokens)
	require.Equal(t, "stop", resp.FinishReason)
}

func TestOpenAIProvider_ParseStreamLine(t *testing.T) {
	p := &providers.OpenAIProvider{}

	delta, done, err := p.ParseStreamLine([]byte(`data: {"choices":[{"delta":{"content":"hi"},"finish_reason":""}]}`))
	require.NoError(t, err)
	require.Equal(t, "hi", delta)
	require.False(t, done)

	_, done, err = p.ParseStreamLine([]byte(`data: [DONE]`))
	require.NoError(t, err)
	require.True(t, done)
}
