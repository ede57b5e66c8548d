package promptregistry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/promptregistry"
)

func newTestRegistry() *promptregistry.Registry {
	r := promptregistry.NewRegistry()
	promptregistry.RegisterDefaults(r)
	return r
}

func TestResolve_FallsBackToBuiltinDefault(t *testing.T) {
	r := newTestRegistry()

	text, err := r.Resolve("", promptregistry.KeyPhase1Scan)
	require.NoError(t, err)
	require.Contains(t, text, "catalog")
}

func TestResolve_UnknownKeyErrors(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Resolve("", "nonexistent.key")
	require.Error(t, err)
}

func TestResolve_GlobalOverrideBeatsDefault(t *testing.T) {
	r := newTestRegistry()
	r.Activate(&promptregistry.Version{
		ID:        "v1",
		Key:       promptregistry.KeyPhase1Scan,
		Text:      "custom global prompt",
		CreatedAt: time.Now(),
	})

	text, err := r.Resolve("", promptregistry.KeyPhase1Scan)
	require.NoError(t, err)
	require.Equal(t, "custom global prompt", text)

	text, err = r.Resolve("project-a", promptregistry.KeyPhase1Scan)
	require.NoError(t, err)
	require.Equal(t, "custom global prompt", text, "project with no override falls through to global")
}

func TestResolve_ProjectOverrideBeatsGlobal(t *testing.T) {
	r := newTestRegistry()
	r.Activate(&promptregistry.Version{ID: "v1", Key: promptregistry.KeyPhase1Scan, Text: "global override"})
	r.Activate(&promptregistry.Version{ID: "v2", Key: promptregistry.KeyPhase1Scan, ProjectID: "project-a", Text: "project override"})

	text, err := r.Resolve("project-a", promptregistry.KeyPhase1Scan)
	require.NoError(t, err)
	require.Equal(t, "project override", text)

	text, err = r.Resolve("project-b", promptregistry.KeyPhase1Scan)
	require.NoError(t, err)
	require.Equal(t, "global override", text)
}

func TestDeactivate_FallsThroughToNextTier(t *testing.T) {
	r := newTestRegistry()
	r.Activate(&promptregistry.Version{ID: "v1", Key: promptregistry.KeyPhase1Scan, Text: "global override"})

	r.Deactivate("", promptregistry.KeyPhase1Scan)

	text, err := r.Resolve("", promptregistry.KeyPhase1Scan)
	require.NoError(t, err)
	require.Contains(t, text, "catalog", "should fall back to built-in default")
}

func TestActivate_ReplacesPriorActiveVersionInSameScope(t *testing.T) {
	r := newTestRegistry()
	r.Activate(&promptregistry.Version{ID: "v1", Key: promptregistry.KeyPhase1Scan, ProjectID: "p1", Text: "first"})
	r.Activate(&promptregistry.Version{ID: "v2", Key: promptregistry.KeyPhase1Scan, ProjectID: "p1", Text: "second"})

	text, err := r.Resolve("p1", promptregistry.KeyPhase1Scan)
	require.NoError(t, err)
	require.Equal(t, "second", text)
}

func TestListBuiltins_IncludesAllFivePhases(t *testing.T) {
	r := newTestRegistry()
	defs := r.ListBuiltins()
	require.Len(t, defs, 5)
}
