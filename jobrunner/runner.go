// Package jobrunner drives the job finite-state machine: queued -> running
// -> {completed, failed, timeout}, with transitions out of a terminal state
// forbidden. The controller only persists a queued job and dispatches it;
// Runner.Run is what actually walks the FSM once a worker picks the job up.
package jobrunner

import (
	"context"
	"log/slog"
	"time"

	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/store"
)

// Config tunes the heartbeat curve and the soft/hard execution limits a job
// runs under.
type Config struct {
	HeartbeatStart    float64
	HeartbeatCeiling  float64
	HeartbeatTau      time.Duration
	HeartbeatInterval time.Duration
	SoftTimeout       time.Duration
	HardTimeout       time.Duration
}

// DefaultConfig matches the heartbeat defaults: S=25, C=95, tau=120s,
// 4s tick interval. Soft/hard timeouts are not spec-fixed values; 3 and 8
// minutes give an LLM call room to finish without letting a stuck provider
// hold a worker slot indefinitely.
func DefaultConfig() Config {
	return Config{
		HeartbeatStart:    25,
		HeartbeatCeiling:  95,
		HeartbeatTau:      120 * time.Second,
		HeartbeatInterval: 4 * time.Second,
		SoftTimeout:       3 * time.Minute,
		HardTimeout:       8 * time.Minute,
	}
}

// TaskFunc performs one job's phase work. It reports progress through p and
// returns the phase result to persist as ResultData, or an error that fails
// the job.
type TaskFunc func(ctx context.Context, p *Progress) (map[string]any, error)

// Runner walks one job through its FSM: mark running, supervise progress,
// persist the terminal outcome. It holds no per-job state between calls —
// Executors hand it one job at a time.
type Runner struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner builds a Runner over s using cfg's heartbeat and timeout
// parameters.
func NewRunner(s store.Store, cfg Config, opts ...Option) *Runner {
	r := &Runner{store: s, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type taskResult struct {
	data map[string]any
	err  error
}

// Run persists job as running, supervises its heartbeat (or a streaming
// signal, once task reports one through Progress), enforces the soft/hard
// time limits, and persists the terminal state. It blocks until the job
// reaches a terminal status; callers dispatch it on a worker goroutine.
//
// ctx governs store I/O only. The task itself runs under its own
// hard-timeout context, independent of ctx's lifetime, because a job must
// keep running after the HTTP request that queued it has returned.
func (r *Runner) Run(ctx context.Context, job *store.Job, task TaskFunc) {
	job.Status = store.JobStatusRunning
	job.Progress = int(r.cfg.HeartbeatStart)
	r.persist(ctx, job)

	progress := newProgress(job.Progress, func(pct int) {
		job.Progress = pct
		r.persist(ctx, job)
	})

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(hbCtx, progress)
	}()

	hardCtx, cancelHard := context.WithTimeout(context.Background(), r.cfg.HardTimeout)
	defer cancelHard()

	resultCh := make(chan taskResult, 1)
	go func() {
		data, err := task(hardCtx, progress)
		resultCh <- taskResult{data: data, err: err}
	}()

	softTimer := time.NewTimer(r.cfg.SoftTimeout)
	defer softTimer.Stop()

	var res taskResult
	var hardTimedOut bool
waitLoop:
	for {
		select {
		case res = <-resultCh:
			break waitLoop
		case <-softTimer.C:
			r.logger.Warn("job exceeded soft time limit, waiting for hard limit",
				"job_id", job.ID, "phase", job.Phase)
		case <-hardCtx.Done():
			hardTimedOut = true
			break waitLoop
		}
	}

	stopHeartbeat()
	<-hbDone

	now := time.Now()
	job.CompletedAt = &now
	switch {
	case hardTimedOut:
		job.Status = store.JobStatusTimeout
		job.Error = "hard time limit exceeded"
	case res.err != nil:
		job.Status = store.JobStatusFailed
		job.Error = res.err.Error()
	default:
		job.Status = store.JobStatusCompleted
		job.Progress = 100
		job.ResultData = res.data
	}
	r.persist(ctx, job)
}

func (r *Runner) heartbeat(ctx context.Context, p *Progress) {
	start := time.Now()
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.streaming() {
				continue
			}
			pct := llmclient.StreamProgress(r.cfg.HeartbeatStart, r.cfg.HeartbeatCeiling, r.cfg.HeartbeatTau, time.Since(start))
			p.report(int(pct))
		}
	}
}

func (r *Runner) persist(ctx context.Context, job *store.Job) {
	if err := r.store.UpdateJob(ctx, job); err != nil {
		r.logger.Error("persist job update failed",
			"job_id", job.ID, "status", job.Status, "error", err)
	}
}
