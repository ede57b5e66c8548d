package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/model"
)

func TestPhase4Design_CorrectsNumericLabelAndEmptyCategory(t *testing.T) {
	client, prompts := newFixedClient(t, `{"cell_assignments":[{"sheet":"Revenue","cell":"B4","label":"42000","category":""}]}`)

	catalog := []agents.CatalogItem{{Sheet: "Revenue", Cell: "B4", Label: "Monthly Recurring Revenue", Block: "revenue"}}

	result, err := agents.Phase4Design(context.Background(), client, prompts, model.Standard, "proj1", nil, nil, catalog, "", false)
	require.NoError(t, err)
	require.Equal(t, "Monthly Recurring Revenue", result.CellAssignments[0].Label)
	require.Equal(t, "revenue", result.CellAssignments[0].Category)
	require.False(t, result.EstimationMode)
}

func TestPhase4Design_EstimationModeFlagIsRecorded(t *testing.T) {
	client, prompts := newFixedClient(t, `{"cell_assignments":[{"sheet":"Revenue","cell":"B4","label":"MRR","category":"revenue"}]}`)

	result, err := agents.Phase4Design(context.Background(), client, prompts, model.Standard, "proj1", nil, nil, nil, "", true)
	require.NoError(t, err)
	require.True(t, result.EstimationMode)
}

func TestPhase4Design_EmptyAssignmentsRaises(t *testing.T) {
	client, prompts := newFixedClient(t, `{"cell_assignments":[]}`)

	_, err := agents.Phase4Design(context.Background(), client, prompts, model.Standard, "proj1", nil, nil, nil, "", false)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindEmptyCriticalResult))
}
