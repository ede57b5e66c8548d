package jobrunner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/jobrunner"
	"github.com/planforge/finmodel/store"
)

func newJob(t *testing.T, s store.Store) *store.Job {
	t.Helper()
	ctx := context.Background()
	p := &store.Project{Name: "p"}
	require.NoError(t, s.CreateProject(ctx, p))
	r := &store.Run{ProjectID: p.ID}
	require.NoError(t, s.CreateRun(ctx, r))
	j := &store.Job{ProjectID: p.ID, RunID: r.ID, Phase: "phase2", Status: store.JobStatusQueued}
	require.NoError(t, s.CreateJob(ctx, j))
	return j
}

func TestRunner_Run_CompletesSuccessfully(t *testing.T) {
	s := store.NewMemStore()
	job := newJob(t, s)
	cfg := jobrunner.DefaultConfig()
	cfg.HeartbeatInterval = time.Millisecond
	runner := jobrunner.NewRunner(s, cfg)

	runner.Run(context.Background(), job, func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, true, got.ResultData["ok"])
	require.NotNil(t, got.CompletedAt)
}

func TestRunner_Run_FailsOnTaskError(t *testing.T) {
	s := store.NewMemStore()
	job := newJob(t, s)
	runner := jobrunner.NewRunner(s, jobrunner.DefaultConfig())

	runner.Run(context.Background(), job, func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusFailed, got.Status)
	require.Equal(t, "boom", got.Error)
}

func TestRunner_Run_HardTimeoutYieldsTimeoutNotFailed(t *testing.T) {
	s := store.NewMemStore()
	job := newJob(t, s)
	cfg := jobrunner.DefaultConfig()
	cfg.SoftTimeout = time.Millisecond
	cfg.HardTimeout = 5 * time.Millisecond
	cfg.HeartbeatInterval = time.Millisecond
	runner := jobrunner.NewRunner(s, cfg)

	runner.Run(context.Background(), job, func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusTimeout, got.Status)
}

func TestRunner_Run_CompletesWithStreamingProgressAndHeartbeat(t *testing.T) {
	s := store.NewMemStore()
	job := newJob(t, s)
	cfg := jobrunner.DefaultConfig()
	cfg.HeartbeatInterval = time.Millisecond
	runner := jobrunner.NewRunner(s, cfg)

	runner.Run(context.Background(), job, func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		p.ReportChars(50, 100)
		time.Sleep(10 * time.Millisecond)
		return map[string]any{}, nil
	})

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusCompleted, got.Status)
}
