package agents

import (
	"context"

	"github.com/planforge/finmodel/guard"
	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/promptregistry"
)

const phase2DocumentBudget = guard.Phase2MaxChars

// Segment is one customer or product segment a business-model proposal
// names, with the drivers and assumptions behind its revenue.
type Segment struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	RevenueDrivers []string `json:"revenue_drivers,omitempty"`
	KeyAssumptions []string `json:"key_assumptions,omitempty"`
	Source         string   `json:"source,omitempty"` // document | inferred
}

// BusinessModelProposal is one candidate reading of how the business
// makes money.
type BusinessModelProposal struct {
	Industry         string    `json:"industry,omitempty"`
	ModelType        string    `json:"model_type,omitempty"`
	ExecutiveSummary string    `json:"executive_summary,omitempty"`
	Segments         []Segment `json:"segments"`
	SharedCosts      []string  `json:"shared_costs,omitempty"`
	Risks            []string  `json:"risks,omitempty"`
	TimeHorizon      string    `json:"time_horizon,omitempty"`
	Currency         string    `json:"currency,omitempty"`
}

// Phase2Result holds the candidate business-model proposals.
type Phase2Result struct {
	Proposals []BusinessModelProposal `json:"proposals"`
}

// Phase2Analyze derives one or more business-model proposals from the
// source document. Every business has at least one segment; a proposal
// whose segments list comes back empty is a guard violation the agent
// raises rather than papering over with a synthesized segment.
func Phase2Analyze(ctx context.Context, client *llmclient.Client, reg *promptregistry.Registry, tier llmclient.Tier, projectID, documentText, feedback string) (*Phase2Result, error) {
	system, err := systemPrompt(reg, projectID, promptregistry.KeyPhase2BusinessModel)
	if err != nil {
		return nil, err
	}

	doc := guard.TruncateHeadTail(documentText, phase2DocumentBudget)
	user := "Document:\n" + doc
	if feedback != "" {
		user += "\n\nReviewer feedback to address:\n" + feedback
	}

	obj, err := runExtraction(ctx, client, tier, system, user, []string{"proposals", "segments"})
	if err != nil {
		return nil, err
	}

	var result Phase2Result
	if err := decode(obj, &result); err != nil {
		return nil, err
	}

	if len(result.Proposals) == 0 {
		return nil, emptyCriticalResult("phase2", "proposals")
	}
	for _, p := range result.Proposals {
		if len(p.Segments) == 0 {
			return nil, emptyCriticalResult("phase2", "segments")
		}
	}

	return &result, nil
}
