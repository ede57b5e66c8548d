package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/store"
)

// backends returns one instance of each Store implementation so the
// contract tests below run against both the in-memory and SQL backends
// without duplicating test bodies.
func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	sqlStore, err := store.OpenSQL(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]store.Store{
		"mem": store.NewMemStore(),
		"sql": sqlStore,
	}
}

func TestStore_ProjectCRUD(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &store.Project{Name: "Acme Inc"}
			require.NoError(t, s.CreateProject(ctx, p))
			require.NotEmpty(t, p.ID)

			got, err := s.GetProject(ctx, p.ID)
			require.NoError(t, err)
			require.Equal(t, "Acme Inc", got.Name)

			_, err = s.GetProject(ctx, "nonexistent")
			require.ErrorIs(t, err, store.ErrNotFound)

			list, err := s.ListProjects(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
		})
	}
}

func TestStore_PhaseResultUpsert(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &store.Project{Name: "p"}
			require.NoError(t, s.CreateProject(ctx, p))
			r := &store.Run{ProjectID: p.ID}
			require.NoError(t, s.CreateRun(ctx, r))

			pr := &store.PhaseResult{RunID: r.ID, Phase: "phase1", Data: map[string]any{"catalog": []any{}}}
			require.NoError(t, s.SavePhaseResult(ctx, pr))
			firstID := pr.ID

			pr2 := &store.PhaseResult{RunID: r.ID, Phase: "phase1", Data: map[string]any{"catalog": []any{"x"}}}
			require.NoError(t, s.SavePhaseResult(ctx, pr2))

			got, err := s.GetPhaseResult(ctx, r.ID, "phase1")
			require.NoError(t, err)
			require.Equal(t, firstID, got.ID, "second save must upsert, not duplicate")
			require.Equal(t, []any{"x"}, got.Data["catalog"])
		})
	}
}

func TestStore_EditsAscendingOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &store.Project{Name: "p"}
			require.NoError(t, s.CreateProject(ctx, p))

			require.NoError(t, s.SaveEdit(ctx, &store.Edit{ProjectID: p.ID, Sheet: "Revenue", Cell: "B4", NewValue: 1.0}))
			require.NoError(t, s.SaveEdit(ctx, &store.Edit{ProjectID: p.ID, Sheet: "Revenue", Cell: "B5", NewValue: 2.0}))

			edits, err := s.GetEdits(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, edits, 2)
			require.Equal(t, "B4", edits[0].Cell)
			require.Equal(t, "B5", edits[1].Cell)
		})
	}
}

func TestStore_JobRefusesDuplicateInFlight(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &store.Project{Name: "p"}
			require.NoError(t, s.CreateProject(ctx, p))
			r := &store.Run{ProjectID: p.ID}
			require.NoError(t, s.CreateRun(ctx, r))

			j1 := &store.Job{ProjectID: p.ID, RunID: r.ID, Phase: "phase2"}
			require.NoError(t, s.CreateJob(ctx, j1))

			j2 := &store.Job{ProjectID: p.ID, RunID: r.ID, Phase: "phase2"}
			err := s.CreateJob(ctx, j2)
			require.ErrorIs(t, err, store.ErrConflict)
		})
	}
}

func TestStore_JobProgressMustBeMonotone(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &store.Project{Name: "p"}
			require.NoError(t, s.CreateProject(ctx, p))
			r := &store.Run{ProjectID: p.ID}
			require.NoError(t, s.CreateRun(ctx, r))

			j := &store.Job{ProjectID: p.ID, RunID: r.ID, Phase: "phase2", Status: store.JobStatusRunning, Progress: 40}
			require.NoError(t, s.CreateJob(ctx, j))

			j.Progress = 60
			require.NoError(t, s.UpdateJob(ctx, j))

			j.Progress = 10
			err := s.UpdateJob(ctx, j)
			require.ErrorIs(t, err, store.ErrConflict)
		})
	}
}

func TestStore_JobTerminalIsAbsorbing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &store.Project{Name: "p"}
			require.NoError(t, s.CreateProject(ctx, p))
			r := &store.Run{ProjectID: p.ID}
			require.NoError(t, s.CreateRun(ctx, r))

			j := &store.Job{ProjectID: p.ID, RunID: r.ID, Phase: "phase2", Status: store.JobStatusRunning, Progress: 90}
			require.NoError(t, s.CreateJob(ctx, j))

			j.Status = store.JobStatusCompleted
			j.Progress = 100
			require.NoError(t, s.UpdateJob(ctx, j))

			j.Progress = 100
			j.Status = store.JobStatusCompleted
			err := s.UpdateJob(ctx, j)
			require.ErrorIs(t, err, store.ErrConflict, "terminal jobs must reject further writes")
		})
	}
}

func TestStore_PromptVersionActivationPrecedence(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			global := &store.PromptVersion{Key: "phase1.scan.system", Text: "global text"}
			require.NoError(t, s.CreatePromptVersion(ctx, global))
			require.NoError(t, s.ActivatePromptVersion(ctx, global.ID))

			active, err := s.GetActivePrompt(ctx, "", "phase1.scan.system")
			require.NoError(t, err)
			require.Equal(t, "global text", active.Text)

			v2 := &store.PromptVersion{Key: "phase1.scan.system", Text: "replacement"}
			require.NoError(t, s.CreatePromptVersion(ctx, v2))
			require.NoError(t, s.ActivatePromptVersion(ctx, v2.ID))

			active, err = s.GetActivePrompt(ctx, "", "phase1.scan.system")
			require.NoError(t, err)
			require.Equal(t, "replacement", active.Text, "activating a new version deactivates the prior one")
		})
	}
}

func TestStore_ProjectLLMConfigFallsBackToSystemDefault(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SetLLMDefault(ctx, &store.SystemSettings{DefaultLLMProvider: "anthropic", DefaultLLMModel: "standard"}))

			p := &store.Project{Name: "p"}
			require.NoError(t, s.CreateProject(ctx, p))

			provider, model, err := s.GetProjectLLMConfig(ctx, p.ID)
			require.NoError(t, err)
			require.Equal(t, "anthropic", provider)
			require.Equal(t, "standard", model)
		})
	}
}
