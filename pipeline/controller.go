// Package pipeline is the thin coordinator that wires the state store, the
// job runtime, and the phase agents together. It never talks to an LLM
// client directly — only through an agents.PhaseNXxx call inside a
// jobrunner.TaskFunc closure.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/jobrunner"
	"github.com/planforge/finmodel/llmclient"
	"github.com/planforge/finmodel/model"
	"github.com/planforge/finmodel/promptregistry"
	"github.com/planforge/finmodel/store"
)

// Phase names used as store.Job.Phase / store.PhaseResult.Phase values.
const (
	Phase1 = "phase1"
	Phase2 = "phase2"
	Phase3 = "phase3"
	Phase4 = "phase4"
	Phase5 = "phase5"
	Phase6 = "phase6"
)

// DispatchResult is the accepted-async-request shape the HTTP layer turns
// straight into its 202 body.
type DispatchResult struct {
	JobID   string
	Status  store.JobStatus
	Phase   string
	PollURL string
}

// Controller coordinates phase dispatch, gating, and the synchronous
// phase-1/recalc paths.
type Controller struct {
	store    store.Store
	executor jobrunner.Executor
	client   *llmclient.Client
	prompts  *promptregistry.Registry
	tier     model.Tier
	exporter Exporter

	mu      sync.Mutex
	lastJob map[string]string // runID+"|"+phase -> most recently dispatched job ID
}

// NewController wires a Controller. tier is the capability tier every
// phase agent call is made at; callers needing per-request tiers build
// more than one Controller or extend this constructor, neither of which
// the current API surface requires.
func NewController(s store.Store, executor jobrunner.Executor, client *llmclient.Client, prompts *promptregistry.Registry, tier model.Tier) *Controller {
	return &Controller{
		store:    s,
		executor: executor,
		client:   client,
		prompts:  prompts,
		tier:     tier,
		lastJob:  make(map[string]string),
	}
}

func validationErr(msg string) error {
	return apperr.New(apperr.KindValidation, "VALIDATION_ERROR", msg)
}

// activeRun returns the project's latest run, creating one if none exists
// yet. A project's first phase dispatch always lands here.
func (c *Controller) activeRun(ctx context.Context, projectID string) (*store.Run, error) {
	run, err := c.store.GetLatestRun(ctx, projectID)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	run = &store.Run{ID: uuid.New().String(), ProjectID: projectID, CreatedAt: time.Now()}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// structToRaw round-trips a typed phase result through JSON into the
// map[string]any shape PhaseResult.Data and jobrunner's ResultData store.
func structToRaw(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("pipeline: unmarshal result: %w", err)
	}
	return m, nil
}

// guardSingleFlight refuses a dispatch if the most recently dispatched job
// for (runID, phase) has not reached a terminal state yet — the controller
// never lets two non-terminal jobs race on the same (run, phase) pair.
func (c *Controller) guardSingleFlight(ctx context.Context, runID, phase string) error {
	key := runID + "|" + phase
	c.mu.Lock()
	jobID, ok := c.lastJob[key]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !job.Status.Terminal() {
		return apperr.New(apperr.KindConflict, "JOB_IN_PROGRESS", fmt.Sprintf("a %s job is already running for this run", phase))
	}
	return nil
}

func (c *Controller) rememberJob(runID, phase, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastJob[runID+"|"+phase] = jobID
}

// dispatch persists a queued job and submits task to the executor as given.
// Callers wrap a typed agent call with toRawTask or toMapTask before
// passing it in.
func (c *Controller) dispatch(ctx context.Context, projectID, phase string, task jobrunner.TaskFunc) (*DispatchResult, error) {
	if projectID == "" {
		return nil, validationErr("project_id is required")
	}
	run, err := c.activeRun(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := c.guardSingleFlight(ctx, run.ID, phase); err != nil {
		return nil, err
	}

	job := &store.Job{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		RunID:     run.ID,
		Phase:     phase,
		Status:    store.JobStatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := c.executor.Submit(ctx, job, task); err != nil {
		return nil, err
	}
	c.rememberJob(run.ID, phase, job.ID)

	return &DispatchResult{
		JobID:   job.ID,
		Status:  store.JobStatusQueued,
		Phase:   phase,
		PollURL: "/v1/jobs/" + job.ID,
	}, nil
}

// toMapTask wraps a TaskFunc that already returns raw ResultData, saving it
// as that run's PhaseResult before the job is marked complete.
func (c *Controller) toMapTask(runID, phase string, task jobrunner.TaskFunc) jobrunner.TaskFunc {
	return func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		raw, err := task(ctx, p)
		if err != nil {
			return nil, err
		}
		pr := &store.PhaseResult{
			ID:        uuid.New().String(),
			RunID:     runID,
			Phase:     phase,
			Data:      raw,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := c.store.SavePhaseResult(ctx, pr); err != nil {
			return nil, fmt.Errorf("pipeline: save phase result: %w", err)
		}
		return raw, nil
	}
}

// toRawTask adapts a typed-result phase function into a jobrunner.TaskFunc,
// marshaling its return value to raw ResultData and persisting it as that
// run's PhaseResult.
func (c *Controller) toRawTask(runID, phase string, fn func(ctx context.Context, p *jobrunner.Progress) (any, error)) jobrunner.TaskFunc {
	return c.toMapTask(runID, phase, func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		result, err := fn(ctx, p)
		if err != nil {
			return nil, err
		}
		return structToRaw(result)
	})
}

// Exporter renders a run's phase results into a spreadsheet artifact. The
// emitter package's Service implements it; pipeline depends only on this
// interface so it never has to know about template writers.
type Exporter interface {
	Export(ctx context.Context, projectID string, run *store.Run) (map[string]any, error)
}

// SetExporter wires the phase-6 export collaborator. A Controller built
// without one refuses export dispatch with a clear internal error instead
// of panicking on a nil call.
func (c *Controller) SetExporter(e Exporter) {
	c.exporter = e
}

// GetJob returns a job record for the poll endpoint.
func (c *Controller) GetJob(ctx context.Context, id string) (*store.Job, error) {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "JOB_NOT_FOUND", err)
		}
		return nil, err
	}
	return job, nil
}
