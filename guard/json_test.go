package guard

import (
	"testing"

	"github.com/planforge/finmodel/apperr"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	obj, err := ExtractJSON(`{"a":1}`, StopReasonStop)
	require.NoError(t, err)
	require.Equal(t, float64(1), obj["a"])
}

func TestExtractJSON_PrefixedJunk(t *testing.T) {
	obj, err := ExtractJSON(`prefix text {"a":1}`, StopReasonStop)
	require.NoError(t, err)
	require.Equal(t, float64(1), obj["a"])
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	obj, err := ExtractJSON("```json\n{\"goal\":\"test\"}\n```", StopReasonStop)
	require.NoError(t, err)
	require.Equal(t, "test", obj["goal"])
}

func TestExtractJSON_NoBrace(t *testing.T) {
	_, err := ExtractJSON("no json here", StopReasonStop)
	require.Error(t, err)
	require.Equal(t, "NoJSONObject", apperr.CodeOf(err))
}

func TestExtractJSON_TruncatedKeepsDanglingElement(t *testing.T) {
	// The last element has no trailing delimiter recorded by the repair
	// walk, but it is a complete scalar, so the whole tail is kept and the
	// array closes right after it rather than at the last recorded comma.
	obj, err := ExtractJSON(`{"a":1,"b":[1,2,3`, StopReasonMaxTokens)
	require.NoError(t, err)
	require.Equal(t, float64(1), obj["a"])
	require.Equal(t, []any{float64(1), float64(2), float64(3)}, obj["b"])
}

func TestExtractJSON_TruncatedWithTrailingKeyValue(t *testing.T) {
	obj, err := ExtractJSON(`{"a":1, "x": 1`, StopReasonMaxTokens)
	require.NoError(t, err)
	require.Equal(t, float64(1), obj["a"])
	require.Equal(t, float64(1), obj["x"])
}

func TestExtractJSON_TruncatedWithTrailingComma(t *testing.T) {
	obj, err := ExtractJSON(`{"a":1,"b":2,`, StopReasonMaxTokens)
	require.NoError(t, err)
	require.Equal(t, float64(1), obj["a"])
	require.Equal(t, float64(2), obj["b"])
}

func TestExtractJSON_TruncatedInsideStringDoesNotRepair(t *testing.T) {
	_, err := ExtractJSON(`{"a": "this string never clos`, StopReasonMaxTokens)
	require.Error(t, err)
}

func TestExtractJSON_StripsFenceWithoutMaxTokens(t *testing.T) {
	obj, err := ExtractJSON("```\n{\"a\": 1}\n```", StopReasonStop)
	require.NoError(t, err)
	require.Equal(t, float64(1), obj["a"])
}

func TestAutoUnwrap_SingleEnvelopeKey(t *testing.T) {
	obj := map[string]any{"result": map[string]any{"segments": []any{"x"}}}
	unwrapped := AutoUnwrap(obj, []string{"segments"})
	require.Contains(t, unwrapped, "segments")
}

func TestAutoUnwrap_LeavesObjectAloneWhenExpectedKeyPresent(t *testing.T) {
	obj := map[string]any{"segments": []any{"x"}}
	unwrapped := AutoUnwrap(obj, []string{"segments"})
	require.Equal(t, obj, unwrapped)
	require.Contains(t, unwrapped, "segments")
}

func TestRepairTruncated_ClosesNestedArraysAndObjects(t *testing.T) {
	obj, err := RepairTruncated(`{"a":{"b":[1,2,`)
	require.NoError(t, err)
	inner, ok := obj["a"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, inner, "b")
}
