package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/model"
)

const phase5FixtureDoc = "The annual revenue figure is strong this year."

func phase5FixtureResponse() string {
	return `{"extractions":[{"sheet":"Revenue","cell":"B4","label":"MRR","concept":"monthly_recurring_revenue","value":5000,"unit":"USD","source":"document","confidence":0.9,"evidence":"annual revenue figure total amount","segment":"enterprise","period":"FY1"}],"unmapped_cells":[],"warnings":[],"stats":{}}`
}

func TestPhase5Extract_NormalModePassesPartialEvidenceMatch(t *testing.T) {
	client, prompts := newFixedClient(t, phase5FixtureResponse())

	result, err := agents.Phase5Extract(context.Background(), client, prompts, model.Standard, "proj1", nil, nil, phase5FixtureDoc, "", false)
	require.NoError(t, err)
	require.NotContains(t, result.Extractions[0].Warnings, "evidence_not_found_in_document")
	require.Equal(t, 1, result.Stats.Total)
	require.Equal(t, 1, result.Stats.FromDocument)
}

func TestPhase5Extract_StrictModeFlagsSamePartialMatch(t *testing.T) {
	client, prompts := newFixedClient(t, phase5FixtureResponse())

	result, err := agents.Phase5Extract(context.Background(), client, prompts, model.Standard, "proj1", nil, nil, phase5FixtureDoc, "", true)
	require.NoError(t, err)
	require.Contains(t, result.Extractions[0].Warnings, "evidence_not_found_in_document")
	require.Less(t, result.Extractions[0].Confidence, 0.9)
}

func TestPhase5Extract_DefaultSourceGetsSourceDefaultWarning(t *testing.T) {
	resp := `{"extractions":[{"sheet":"Revenue","cell":"B4","concept":"opex_base","value":0,"source":"default","confidence":0.9,"evidence":""}]}`
	client, prompts := newFixedClient(t, resp)

	result, err := agents.Phase5Extract(context.Background(), client, prompts, model.Standard, "proj1", nil, nil, phase5FixtureDoc, "", true)
	require.NoError(t, err)
	require.Contains(t, result.Extractions[0].Warnings, "source_default")
}

func TestPhase5Extract_NumericLabelCorrectedFromCellAssignment(t *testing.T) {
	resp := `{"extractions":[{"sheet":"Revenue","cell":"B4","label":"5000","concept":"monthly_recurring_revenue","value":5000,"source":"document","confidence":0.9,"evidence":"annual revenue figure"}]}`
	client, prompts := newFixedClient(t, resp)
	assignments := []agents.CellAssignment{{Sheet: "Revenue", Cell: "B4", Label: "Monthly Recurring Revenue"}}

	result, err := agents.Phase5Extract(context.Background(), client, prompts, model.Standard, "proj1", nil, assignments, phase5FixtureDoc, "", false)
	require.NoError(t, err)
	require.Equal(t, "Monthly Recurring Revenue", result.Extractions[0].Label)
}

func TestPhase5Extract_EmptyExtractionsRaises(t *testing.T) {
	client, prompts := newFixedClient(t, `{"extractions":[]}`)

	_, err := agents.Phase5Extract(context.Background(), client, prompts, model.Standard, "proj1", nil, nil, phase5FixtureDoc, "", false)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindEmptyCriticalResult))
}
