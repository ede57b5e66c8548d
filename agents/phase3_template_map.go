package agents

import (
	"context"

	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/promptregistry"
)

// validSheetPurposes is the closed set a sheet mapping's purpose must fall
// into; anything else is normalized to "other" rather than rejected
// outright, since the model occasionally paraphrases the enum.
var validSheetPurposes = map[string]bool{
	"revenue_model": true,
	"cost_detail":   true,
	"pl_summary":    true,
	"assumptions":   true,
	"headcount":     true,
	"capex":         true,
	"other":         true,
}

// SheetMapping pairs a template sheet with the segment it represents and
// the purpose it serves.
type SheetMapping struct {
	Sheet   string `json:"sheet"`
	Segment string `json:"segment,omitempty"`
	Purpose string `json:"purpose"`
}

// Phase3Result is the template mapping output.
type Phase3Result struct {
	OverallStructure string         `json:"overall_structure"`
	SheetMappings    []SheetMapping `json:"sheet_mappings"`
	Suggestions      []string       `json:"suggestions,omitempty"`
}

// SheetSummary is the per-sheet view of the catalog Phase 3 maps against:
// a cell count and a handful of sample labels rather than the full
// catalog, keeping the prompt small.
type SheetSummary struct {
	Sheet        string   `json:"sheet"`
	CellCount    int      `json:"cell_count"`
	SampleLabels []string `json:"sample_labels"`
}

// Phase3Map proposes a sheet-to-segment-and-purpose mapping for the chosen
// Phase-2 proposal. selectedProposal may be nil or empty — Phase 3 must
// accept a missing selection and map sheets by purpose alone.
func Phase3Map(ctx context.Context, client *llmclient.Client, reg *promptregistry.Registry, tier llmclient.Tier, projectID string, selectedProposal map[string]any, sheetSummaries []SheetSummary, feedback string) (*Phase3Result, error) {
	system, err := systemPrompt(reg, projectID, promptregistry.KeyPhase3TemplateMap)
	if err != nil {
		return nil, err
	}

	user := "Per-sheet catalog summary:\n"
	summaryJSON, err := marshalOrWrap(sheetSummaries, "sheet summaries")
	if err != nil {
		return nil, err
	}
	user += string(summaryJSON)

	if len(selectedProposal) > 0 {
		proposalJSON, err := marshalOrWrap(selectedProposal, "selected proposal")
		if err != nil {
			return nil, err
		}
		user += "\n\nSelected business-model proposal:\n" + string(proposalJSON)
	} else {
		user += "\n\nNo business-model proposal was selected; map sheets by purpose alone."
	}
	if feedback != "" {
		user += "\n\nReviewer feedback to address:\n" + feedback
	}

	obj, err := runExtraction(ctx, client, tier, system, user, []string{"sheet_mappings"})
	if err != nil {
		return nil, err
	}

	var result Phase3Result
	if err := decode(obj, &result); err != nil {
		return nil, err
	}
	if len(result.SheetMappings) == 0 {
		return nil, emptyCriticalResult("phase3", "sheet_mappings")
	}

	for i := range result.SheetMappings {
		if !validSheetPurposes[result.SheetMappings[i].Purpose] {
			result.SheetMappings[i].Purpose = "other"
		}
	}

	return &result, nil
}
