package guard

import "regexp"

// numericLabelPattern matches a concept that is itself a bare number,
// optionally carrying a Japanese magnitude word and/or a currency/percent
// suffix — a sign the model echoed a cell's value back as its label.
var numericLabelPattern = regexp.MustCompile(`^\d[\d,.]*[万億千百]?[円%]?$`)

// NeedsReviewSentinel replaces a numeric-looking concept.
const NeedsReviewSentinel = "NEEDS_REVIEW"

// ApplyNumericLabelGuard replaces e.Concept with the NEEDS_REVIEW sentinel,
// clamps confidence to <= 0.2, and warns numeric_label when the concept
// looks like a bare numeric value rather than a label.
func ApplyNumericLabelGuard(e *Extraction) {
	if !IsNumericLabel(e.Concept) {
		return
	}
	e.Concept = NeedsReviewSentinel
	e.Confidence = minFloat(e.Confidence, 0.2)
	e.addWarning("numeric_label")
}

// IsNumericLabel reports whether s looks like a bare numeric value rather
// than a descriptive label — the same test ApplyNumericLabelGuard applies
// to an extraction's concept, exposed for Phase 4's cell-assignment label
// correction (spec: a numeric-looking label is replaced with the
// catalog's label for that cell).
func IsNumericLabel(s string) bool {
	return numericLabelPattern.MatchString(s)
}
