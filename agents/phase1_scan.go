package agents

import (
	"context"
	"fmt"

	"github.com/planforge/finmodel/guard"
	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/promptregistry"
)

// phase1DocumentBudget is generous relative to Phase 5's 10,000-char
// policy since Phase 1's job is cataloging the document's full shape, not
// grounding individual values.
const phase1DocumentBudget = 20000

// CatalogItem is one writable template cell Phase 1 discovered, carrying
// the candidate label, unit, period, and block grouping later phases
// assign concepts and corrections against.
type CatalogItem struct {
	Sheet  string `json:"sheet,omitempty"`
	Cell   string `json:"cell,omitempty"`
	Label  string `json:"label"`
	Unit   string `json:"unit,omitempty"`
	Period string `json:"period,omitempty"`
	Block  string `json:"block,omitempty"`
}

// Phase1Result is the synchronous scan output: the cell catalog plus a
// short document summary.
type Phase1Result struct {
	Catalog         []CatalogItem `json:"catalog"`
	DocumentSummary string        `json:"document_summary"`
}

// Phase1Scan builds the catalog of writable template cells and a short
// document summary. It runs synchronously; the pipeline controller never
// wraps it in a job. An empty catalog is a legitimate result for a
// document with no financial content — unlike every other phase, Phase 1
// never raises EmptyCriticalResult.
func Phase1Scan(ctx context.Context, client *llmclient.Client, reg *promptregistry.Registry, tier llmclient.Tier, projectID, templateID, documentText string, colors map[string]string) (*Phase1Result, error) {
	system, err := systemPrompt(reg, projectID, promptregistry.KeyPhase1Scan)
	if err != nil {
		return nil, err
	}

	doc := guard.TruncateHeadTail(documentText, phase1DocumentBudget)
	user := fmt.Sprintf("Template ID: %s\n\nDocument:\n%s", templateID, doc)
	if len(colors) > 0 {
		user += fmt.Sprintf("\n\nColor configuration: %v", colors)
	}

	obj, err := runExtraction(ctx, client, tier, system, user, []string{"catalog", "document_summary"})
	if err != nil {
		return nil, err
	}

	var result Phase1Result
	if err := decode(obj, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
