package agents

import (
	"context"

	"github.com/planforge/finmodel/guard"
	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/promptregistry"
)

// phase5DocumentBudget truncates to the document's first 10,000
// characters — source facts the model needs to ground a value tend to sit
// early in a business plan, and truncating head-and-tail the way Phase 2
// does would cut into the middle of that run.
const phase5DocumentBudget = 10000

const (
	normalEvidenceThreshold = 0.6
	strictEvidenceThreshold = 0.8
	normalDefaultFloor      = 0.1
	strictDefaultFloor      = 0.05
)

// ExtractionItem is one grounded (or explicitly ungrounded) parameter
// value Phase 5 produced for a Phase-4 cell assignment.
type ExtractionItem struct {
	Sheet      string   `json:"sheet"`
	Cell       string   `json:"cell"`
	Label      string   `json:"label"`
	Concept    string   `json:"concept"`
	Value      any      `json:"value"`
	Unit       string   `json:"unit,omitempty"`
	Source     string   `json:"source"` // document | inferred | default
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence,omitempty"`
	Segment    string   `json:"segment,omitempty"`
	Period     string   `json:"period,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ExtractionStats summarizes the extraction list by source.
type ExtractionStats struct {
	Total        int `json:"total"`
	FromDocument int `json:"from_document"`
	Inferred     int `json:"inferred"`
	Default      int `json:"default"`
}

// Phase5Result is the parameter extraction output.
type Phase5Result struct {
	Extractions   []ExtractionItem `json:"extractions"`
	UnmappedCells []UnmappedCell   `json:"unmapped_cells,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
	Stats         ExtractionStats  `json:"stats"`
}

// Phase5Extract grounds a concrete value for each Phase-4 cell assignment
// in the source document. After parse, every extraction runs through the
// evidence guard, the numeric-label guard, and the confidence-penalty
// guard in sequence, and labels are corrected from the Phase-4 design the
// same way Phase 4 corrects them from the catalog. An item reported with
// source "default" starts from a fixed confidence floor before the guards
// run. strict raises the evidence-match threshold from 0.6 to 0.8 and
// lowers that floor from 0.1 to 0.05 — spec.md names
// Phase 5 as the only phase whose thresholds vary by mode.
func Phase5Extract(ctx context.Context, client *llmclient.Client, reg *promptregistry.Registry, tier llmclient.Tier, projectID string, phase4Raw map[string]any, cellAssignments []CellAssignment, documentText, feedback string, strict bool) (*Phase5Result, error) {
	system, err := systemPrompt(reg, projectID, promptregistry.KeyPhase5ParamExtract)
	if err != nil {
		return nil, err
	}

	doc := guard.TruncateHead(documentText, phase5DocumentBudget)
	phase4JSON, err := marshalOrWrap(phase4Raw, "phase4 result")
	if err != nil {
		return nil, err
	}

	user := "Cell assignments (Phase 4):\n" + string(phase4JSON) +
		"\n\nDocument (first characters):\n" + doc
	if feedback != "" {
		user += "\n\nReviewer feedback to address:\n" + feedback
	}

	obj, err := runExtraction(ctx, client, tier, system, user, []string{"extractions"})
	if err != nil {
		return nil, err
	}

	var result Phase5Result
	if err := decode(obj, &result); err != nil {
		return nil, err
	}
	if len(result.Extractions) == 0 {
		return nil, emptyCriticalResult("phase5", "extractions")
	}

	threshold := normalEvidenceThreshold
	floor := normalDefaultFloor
	if strict {
		threshold = strictEvidenceThreshold
		floor = strictDefaultFloor
	}

	for i := range result.Extractions {
		item := &result.Extractions[i]

		if ca := findCellAssignment(cellAssignments, item.Sheet, item.Cell); ca != nil {
			if guard.IsNumericLabel(item.Label) {
				item.Label = ca.Label
			}
		}

		if item.Source == "default" {
			item.Confidence = floor
		}

		e := &guard.Extraction{
			Concept:    item.Concept,
			Source:     item.Source,
			Confidence: item.Confidence,
			Evidence:   guard.Evidence{Quote: item.Evidence},
			Warnings:   item.Warnings,
		}
		guard.ApplyEvidenceGuardWithThreshold(e, documentText, threshold)
		guard.ApplyNumericLabelGuard(e)
		guard.ApplyConfidencePenalty(e)

		item.Concept = e.Concept
		item.Confidence = e.Confidence
		item.Warnings = e.Warnings
	}

	result.Stats = computeStats(result.Extractions)

	return &result, nil
}

func findCellAssignment(assignments []CellAssignment, sheet, cell string) *CellAssignment {
	for i := range assignments {
		if assignments[i].Sheet == sheet && assignments[i].Cell == cell {
			return &assignments[i]
		}
	}
	return nil
}

func computeStats(items []ExtractionItem) ExtractionStats {
	stats := ExtractionStats{Total: len(items)}
	for _, item := range items {
		switch item.Source {
		case "document":
			stats.FromDocument++
		case "inferred":
			stats.Inferred++
		case "default":
			stats.Default++
		}
	}
	return stats
}
