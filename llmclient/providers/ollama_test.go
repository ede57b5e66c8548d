package providers_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/llmclient/providers"
)

func TestOllamaProvider_BuildURL(t *testing.T) {
	p := &providers.OllamaProvider{}
	require.Equal(t, "http://localhost:11434/api/chat", p.BuildURL(""))
	require.Equal(t, "http://gpu-box:11434/api/chat", p.BuildURL("http://gpu-box:11434"))
}

func TestOllamaProvider_AlwaysAvailable(t *testing.T) {
	p := &providers.OllamaProvider{}
	require.True(t, p.Available())
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	p := &providers.OllamaProvider{}
	temp := 0.3
	body, err := p.BuildRequestBody("qwen2.5:14b", []llmclient.Message{
		{Role: "user", Content: "hi"},
	}, &temp, 256)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, "qwen2.5:14b", decoded["model"])
	require.False(t, decoded["stream"].(bool))
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	p := &providers.OllamaProvider{}
	body := []byte(`{
		"model": "qwen2.5:14b",
		"message": {"role": "assistant", "content": "hi"},
		"done": true,
		"prompt_eval_count": 3,
		"eval_count": 2
	}`)

	resp, err := p.ParseResponse(body, "qwen2.5:14b")
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Content)
	require.Equal(t, 5, resp.Usage.TotalTokens)
	require.Equal(t, "stop", resp.FinishReason)
}

func TestOllamaProvider_ParseStreamLine_NDJSON(t *testing.T) {
	p := &providers.OllamaProvider{}

	delta, done, err := p.ParseStreamLine([]byte(`{"model":"qwen2.5:14b","message":{"content":"hi"},"done":false}`))
	require.NoError(t, err)
	require.Equal(t, "hi", delta)
	require.False(t, done)

	_, done, err = p.ParseStreamLine([]byte(`{"model":"qwen2.5:14b","message":{"content":""},"done":true}`))
	require.NoError(t, err)
	require.True(t, done)
}
