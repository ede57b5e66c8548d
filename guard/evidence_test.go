package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyEvidenceGuard_MissingQuote(t *testing.T) {
	e := &Extraction{Confidence: 0.9}
	ApplyEvidenceGuard(e, "the document text")
	require.LessOrEqual(t, e.Confidence, 0.3)
	require.Contains(t, e.Warnings, "evidence_missing")
}

func TestApplyEvidenceGuard_VerbatimMatch(t *testing.T) {
	e := &Extraction{Confidence: 0.9, Evidence: Evidence{Quote: "revenue grows"}}
	ApplyEvidenceGuard(e, "Our revenue grows steadily each year.")
	require.Equal(t, 0.9, e.Confidence)
	require.Empty(t, e.Warnings)
}

func TestApplyEvidenceGuard_PartialMatchBelowThreshold(t *testing.T) {
	e := &Extraction{Confidence: 0.8, Evidence: Evidence{Quote: "completely unrelated phrase here"}}
	ApplyEvidenceGuard(e, "this document mentions phrase only")
	require.Less(t, e.Confidence, 0.8)
	require.Contains(t, e.Warnings, "evidence_not_found_in_document")
}
