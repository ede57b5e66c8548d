package agents

import (
	"context"

	"github.com/planforge/finmodel/guard"
	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/promptregistry"
)

// CellAssignment pairs a template cell with the concept's label and
// category it was designed to hold.
type CellAssignment struct {
	Sheet    string `json:"sheet"`
	Cell     string `json:"cell"`
	Label    string `json:"label"`
	Category string `json:"category"`
	Formula  string `json:"formula,omitempty"`
}

// UnmappedCell is a template cell Phase 4 or Phase 5 could not resolve.
type UnmappedCell struct {
	Sheet  string `json:"sheet"`
	Cell   string `json:"cell"`
	Reason string `json:"reason,omitempty"`
}

// Phase4Result is the model design output. EstimationMode records whether
// this run proceeded without a confirmed Phase-3 mapping, per the
// controller's allow_estimation gate.
type Phase4Result struct {
	CellAssignments []CellAssignment `json:"cell_assignments"`
	UnmappedCells   []UnmappedCell   `json:"unmapped_cells,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	EstimationMode  bool             `json:"estimation_mode,omitempty"`
}

// Phase4Design assigns concrete spreadsheet cells to concepts from the
// confirmed Phase-2/Phase-3 results, then applies two catalog-driven
// corrections to every assignment: a numeric-looking label is replaced
// with the catalog's label for that cell, and an empty category is filled
// from the catalog's block grouping. Phase-3-not-completed / empty-result
// gating happens in the pipeline controller before this function is ever
// called; estimationMode only affects the prompt framing and the result
// flag, not whether the call proceeds.
func Phase4Design(ctx context.Context, client *llmclient.Client, reg *promptregistry.Registry, tier llmclient.Tier, projectID string, phase2Raw, phase3Raw map[string]any, catalog []CatalogItem, feedback string, estimationMode bool) (*Phase4Result, error) {
	system, err := systemPrompt(reg, projectID, promptregistry.KeyPhase4ModelDesign)
	if err != nil {
		return nil, err
	}

	phase2JSON, err := marshalOrWrap(phase2Raw, "phase2 result")
	if err != nil {
		return nil, err
	}
	phase3JSON, err := marshalOrWrap(phase3Raw, "phase3 result")
	if err != nil {
		return nil, err
	}
	catalogJSON, err := marshalOrWrap(catalog, "catalog")
	if err != nil {
		return nil, err
	}

	user := "Confirmed business model (Phase 2):\n" + string(phase2JSON) +
		"\n\nConfirmed template mapping (Phase 3):\n" + string(phase3JSON) +
		"\n\nCatalog:\n" + string(catalogJSON)
	if estimationMode {
		user += "\n\nNote: Phase 3's result was empty or unavailable; design cell assignments from the catalog and business model alone, in estimation mode."
	}
	if feedback != "" {
		user += "\n\nReviewer feedback to address:\n" + feedback
	}

	obj, err := runExtraction(ctx, client, tier, system, user, []string{"cell_assignments"})
	if err != nil {
		return nil, err
	}

	var result Phase4Result
	if err := decode(obj, &result); err != nil {
		return nil, err
	}
	if len(result.CellAssignments) == 0 {
		return nil, emptyCriticalResult("phase4", "cell_assignments")
	}
	result.EstimationMode = estimationMode

	for i := range result.CellAssignments {
		ca := &result.CellAssignments[i]
		item := findCatalogItem(catalog, ca.Sheet, ca.Cell)
		if item == nil {
			continue
		}
		if guard.IsNumericLabel(ca.Label) {
			ca.Label = item.Label
		}
		if ca.Category == "" {
			ca.Category = item.Block
		}
	}

	return &result, nil
}

func findCatalogItem(catalog []CatalogItem, sheet, cell string) *CatalogItem {
	for i := range catalog {
		if catalog[i].Sheet == sheet && catalog[i].Cell == cell {
			return &catalog[i]
		}
	}
	return nil
}
