package guard

import "strings"

// evidenceMatchRatio is the minimum fraction of the quote's whitespace
// tokens that must appear in the document for the quote to be considered
// grounded when it isn't found verbatim.
const evidenceMatchRatio = 0.6

// ApplyEvidenceGuard checks an extraction's evidence quote against the
// source document and adjusts confidence/warnings in place:
//   - no quote at all: clamp confidence to <= 0.3, warn evidence_missing.
//   - quote found verbatim (case-insensitive substring): accepted as-is.
//   - quote not found verbatim: compute the fraction of its whitespace
//     tokens present in the document; below the threshold, halve
//     confidence and warn evidence_not_found_in_document.
func ApplyEvidenceGuard(e *Extraction, document string) {
	ApplyEvidenceGuardWithThreshold(e, document, evidenceMatchRatio)
}

// ApplyEvidenceGuardWithThreshold is ApplyEvidenceGuard with the match
// ratio overridable — Phase 5's strict mode raises it from 0.6 to 0.8.
func ApplyEvidenceGuardWithThreshold(e *Extraction, document string, threshold float64) {
	quote := strings.TrimSpace(e.Evidence.Quote)
	if quote == "" {
		e.Confidence = minFloat(e.Confidence, 0.3)
		e.addWarning("evidence_missing")
		return
	}

	docLower := strings.ToLower(document)
	quoteLower := strings.ToLower(quote)
	if strings.Contains(docLower, quoteLower) {
		return
	}

	tokens := strings.Fields(quoteLower)
	if len(tokens) == 0 {
		e.Confidence = minFloat(e.Confidence, 0.3)
		e.addWarning("evidence_missing")
		return
	}

	found := 0
	for _, tok := range tokens {
		if strings.Contains(docLower, tok) {
			found++
		}
	}
	ratio := float64(found) / float64(len(tokens))
	if ratio < threshold {
		e.Confidence = clamp01(e.Confidence * 0.5)
		e.addWarning("evidence_not_found_in_document")
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
