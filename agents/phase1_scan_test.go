package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/model"
)

func TestPhase1Scan_ParsesCatalogAndSummary(t *testing.T) {
	client, prompts := newFixedClient(t, `{"catalog":[{"sheet":"Revenue","cell":"B4","label":"MRR","block":"revenue"}],"document_summary":"A SaaS business plan."}`)

	result, err := agents.Phase1Scan(context.Background(), client, prompts, model.Standard, "proj1", "tmpl1", "some document text", nil)
	require.NoError(t, err)
	require.Len(t, result.Catalog, 1)
	require.Equal(t, "MRR", result.Catalog[0].Label)
	require.Equal(t, "A SaaS business plan.", result.DocumentSummary)
}

func TestPhase1Scan_EmptyCatalogIsNotAnError(t *testing.T) {
	client, prompts := newFixedClient(t, `{"catalog":[],"document_summary":"Nothing financial here."}`)

	result, err := agents.Phase1Scan(context.Background(), client, prompts, model.Standard, "proj1", "tmpl1", "irrelevant text", nil)
	require.NoError(t, err)
	require.Empty(t, result.Catalog)
}
