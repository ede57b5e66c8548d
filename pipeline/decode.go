package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/planforge/finmodel/agents"
)

// rawDecode round-trips a PhaseResult's map[string]any through JSON into a
// typed destination. The store always hands back the map shape produced by
// structToRaw, so this is the inverse of that conversion.
func rawDecode(raw map[string]any, dest any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("pipeline: marshal raw result: %w", err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("pipeline: decode raw result: %w", err)
	}
	return nil
}

func rawToCatalog(raw map[string]any) ([]agents.CatalogItem, error) {
	var result agents.Phase1Result
	if err := rawDecode(raw, &result); err != nil {
		return nil, err
	}
	return result.Catalog, nil
}

func rawToCellAssignments(raw map[string]any) ([]agents.CellAssignment, error) {
	var result agents.Phase4Result
	if err := rawDecode(raw, &result); err != nil {
		return nil, err
	}
	return result.CellAssignments, nil
}

// summarizeBySheet builds the per-sheet summaries Phase 3 needs from a
// Phase-1 catalog: cell count plus up to ten sample labels, sheets kept in
// first-seen order.
func summarizeBySheet(catalog []agents.CatalogItem) []agents.SheetSummary {
	const maxSamples = 10

	var order []string
	counts := make(map[string]int)
	samples := make(map[string][]string)

	for _, item := range catalog {
		if _, seen := counts[item.Sheet]; !seen {
			order = append(order, item.Sheet)
		}
		counts[item.Sheet]++
		if len(samples[item.Sheet]) < maxSamples {
			samples[item.Sheet] = append(samples[item.Sheet], item.Label)
		}
	}

	summaries := make([]agents.SheetSummary, 0, len(order))
	for _, sheet := range order {
		summaries = append(summaries, agents.SheetSummary{
			Sheet:        sheet,
			CellCount:    counts[sheet],
			SampleLabels: samples[sheet],
		})
	}
	return summaries
}
