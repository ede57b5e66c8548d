package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/model"
)

func TestPhase2Analyze_ParsesProposals(t *testing.T) {
	client, prompts := newFixedClient(t, `{"proposals":[{"industry":"SaaS","segments":[{"name":"SMB","source":"document"}]}]}`)

	result, err := agents.Phase2Analyze(context.Background(), client, prompts, model.Standard, "proj1", "a document", "")
	require.NoError(t, err)
	require.Len(t, result.Proposals, 1)
	require.Len(t, result.Proposals[0].Segments, 1)
}

func TestPhase2Analyze_EmptySegmentsRaises(t *testing.T) {
	client, prompts := newFixedClient(t, `{"proposals":[{"industry":"SaaS","segments":[]}]}`)

	_, err := agents.Phase2Analyze(context.Background(), client, prompts, model.Standard, "proj1", "a document", "")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindEmptyCriticalResult))
}

func TestPhase2Analyze_NoProposalsRaises(t *testing.T) {
	client, prompts := newFixedClient(t, `{"proposals":[]}`)

	_, err := agents.Phase2Analyze(context.Background(), client, prompts, model.Standard, "proj1", "a document", "")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindEmptyCriticalResult))
}
