package guard

// confidencePenalties maps each warning to the fixed penalty subtracted
// from the item's reported confidence.
var confidencePenalties = map[string]float64{
	"evidence_missing":               0.4,
	"evidence_not_found_in_document": 0.3,
	"source_default":                 0.2,
	"source_inferred":                0.1,
	"numeric_label":                  0.15,
}

// ApplyConfidencePenalty starts from the item's already-computed
// confidence and subtracts the fixed penalty for every warning present. If
// source is "default" or "inferred" and the matching warning was not
// already attached by an earlier guard, the penalty is still applied
// exactly once (and the warning recorded, so a second pass is idempotent).
// The result is clamped to [0, 1].
func ApplyConfidencePenalty(e *Extraction) {
	switch e.Source {
	case "default":
		if !e.hasWarning("source_default") {
			e.addWarning("source_default")
		}
	case "inferred":
		if !e.hasWarning("source_inferred") {
			e.addWarning("source_inferred")
		}
	}

	conf := e.Confidence
	for _, w := range e.Warnings {
		if penalty, ok := confidencePenalties[w]; ok {
			conf -= penalty
		}
	}
	e.Confidence = clamp01(conf)
}
