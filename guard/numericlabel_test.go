package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyNumericLabelGuard_ReplacesBareNumber(t *testing.T) {
	e := &Extraction{Concept: "1,234.5万円", Confidence: 0.8}
	ApplyNumericLabelGuard(e)
	require.Equal(t, NeedsReviewSentinel, e.Concept)
	require.LessOrEqual(t, e.Confidence, 0.2)
	require.Contains(t, e.Warnings, "numeric_label")
}

func TestApplyNumericLabelGuard_LeavesRealLabelAlone(t *testing.T) {
	e := &Extraction{Concept: "Monthly Recurring Revenue", Confidence: 0.8}
	ApplyNumericLabelGuard(e)
	require.Equal(t, "Monthly Recurring Revenue", e.Concept)
	require.Equal(t, 0.8, e.Confidence)
}
