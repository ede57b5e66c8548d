package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyConfidencePenalty_AccumulatesAndClamps(t *testing.T) {
	e := &Extraction{Confidence: 0.9, Warnings: []string{"evidence_missing", "evidence_not_found_in_document"}}
	ApplyConfidencePenalty(e)
	require.InDelta(t, 0.2, e.Confidence, 1e-9)
}

func TestApplyConfidencePenalty_ClampsAtZero(t *testing.T) {
	e := &Extraction{Confidence: 0.3, Warnings: []string{"evidence_missing", "evidence_not_found_in_document", "numeric_label"}}
	ApplyConfidencePenalty(e)
	require.Equal(t, 0.0, e.Confidence)
}

func TestApplyConfidencePenalty_DefaultSourceAppliedOnce(t *testing.T) {
	e := &Extraction{Confidence: 0.5, Source: "default"}
	ApplyConfidencePenalty(e)
	require.InDelta(t, 0.3, e.Confidence, 1e-9)
	require.Len(t, e.Warnings, 1)

	// Re-applying must not double-penalize.
	ApplyConfidencePenalty(e)
	require.InDelta(t, 0.3, e.Confidence, 1e-9)
}

func TestApplyConfidencePenalty_InferredSource(t *testing.T) {
	e := &Extraction{Confidence: 0.6, Source: "inferred"}
	ApplyConfidencePenalty(e)
	require.InDelta(t, 0.5, e.Confidence, 1e-9)
}
