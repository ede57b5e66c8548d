package guard

import "strings"

// ellipsisMarker joins the kept spans of a truncated document.
const ellipsisMarker = "\n...[truncated]...\n"

// Phase2MaxChars is the default character budget for the Phase 2
// business-model-analysis truncation policy.
const Phase2MaxChars = 30000

// Phase5MaxChars is the character budget for the Phase 5
// parameter-extraction truncation policy.
const Phase5MaxChars = 10000

// TruncateHeadTail implements the Phase 2 policy: keep the first 70% and
// last 25% of budget characters, joined by an ellipsis marker. A document
// shorter than budget is returned unchanged.
func TruncateHeadTail(doc string, budget int) string {
	if len(doc) <= budget {
		return doc
	}
	head := int(float64(budget) * 0.70)
	tail := int(float64(budget) * 0.25)
	if head+tail > len(doc) {
		return doc
	}
	var b strings.Builder
	b.WriteString(doc[:head])
	b.WriteString(ellipsisMarker)
	b.WriteString(doc[len(doc)-tail:])
	return b.String()
}

// TruncateHead implements the Phase 5 policy: keep only the first
// maxChars characters, appending an ellipsis suffix when truncated.
func TruncateHead(doc string, maxChars int) string {
	if len(doc) <= maxChars {
		return doc
	}
	return doc[:maxChars] + ellipsisMarker
}
