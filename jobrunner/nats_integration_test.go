//go:build integration

package jobrunner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/planforge/finmodel/jobrunner"
	"github.com/planforge/finmodel/store"
)

// startNATS brings up a disposable JetStream-enabled NATS broker, the same
// round-trip-through-a-real-broker shape the teacher's question_http_test.go
// uses an embedded NATS server for, but via a container so the test exercises
// the actual wire protocol NATSExecutor speaks in production.
func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		Cmd:          []string{"-js"},
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return "nats://" + host + ":" + port.Port()
}

func TestNATSExecutor_SubmitRunsTaskOnceJobDispatched(t *testing.T) {
	natsURL := startNATS(t)

	s := store.NewMemStore()
	cfg := jobrunner.DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	runner := jobrunner.NewRunner(s, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	executor, err := jobrunner.NewNATSExecutor(ctx, natsURL, runner, nil)
	require.NoError(t, err)
	t.Cleanup(func() { executor.Close() })

	p := &store.Project{Name: "p"}
	require.NoError(t, s.CreateProject(ctx, p))
	r := &store.Run{ProjectID: p.ID}
	require.NoError(t, s.CreateRun(ctx, r))
	job := &store.Job{ProjectID: p.ID, RunID: r.ID, Phase: "phase2", Status: store.JobStatusQueued}
	require.NoError(t, s.CreateJob(ctx, job))

	done := make(chan struct{})
	require.NoError(t, executor.Submit(ctx, job, func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		close(done)
		return map[string]any{"ok": true}, nil
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was never dispatched through NATS")
	}

	require.Eventually(t, func() bool {
		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		return got.Status == store.JobStatusCompleted
	}, 5*time.Second, 50*time.Millisecond)
}
