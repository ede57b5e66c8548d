package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/jobrunner"
	"github.com/planforge/finmodel/store"
)

// Phase1Scan runs the template scan synchronously — spec.md is explicit
// that Phase 1 never creates a job. The catalog is persisted as phase1's
// PhaseResult so Phase 3's sheet summaries and Phase 4/5's label
// corrections can read it back.
func (c *Controller) Phase1Scan(ctx context.Context, projectID, templateID, documentText string, colors map[string]string) (*agents.Phase1Result, error) {
	if projectID == "" || documentText == "" {
		return nil, validationErr("project_id and document text are required")
	}

	result, err := agents.Phase1Scan(ctx, c.client, c.prompts, c.tier, projectID, templateID, documentText, colors)
	if err != nil {
		return nil, err
	}

	run, err := c.activeRun(ctx, projectID)
	if err != nil {
		return nil, err
	}
	raw, err := structToRaw(result)
	if err != nil {
		return nil, err
	}
	pr := &store.PhaseResult{
		ID:        uuid.New().String(),
		RunID:     run.ID,
		Phase:     Phase1,
		Data:      raw,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := c.store.SavePhaseResult(ctx, pr); err != nil {
		return nil, err
	}
	return result, nil
}

// DispatchPhase2 queues the business-model analysis job.
func (c *Controller) DispatchPhase2(ctx context.Context, projectID, documentText, feedback string) (*DispatchResult, error) {
	if projectID == "" || documentText == "" {
		return nil, validationErr("project_id and document text are required")
	}
	run, err := c.activeRun(ctx, projectID)
	if err != nil {
		return nil, err
	}

	task := c.toRawTask(run.ID, Phase2, func(ctx context.Context, p *jobrunner.Progress) (any, error) {
		return agents.Phase2Analyze(ctx, c.client, c.prompts, c.tier, projectID, documentText, feedback)
	})
	return c.dispatch(ctx, projectID, Phase2, task)
}

// DispatchPhase3 queues the template mapping job. selectedProposal may be
// nil or empty — Phase 3 is required to accept that and map sheets by
// purpose alone.
func (c *Controller) DispatchPhase3(ctx context.Context, projectID string, selectedProposal map[string]any, feedback string) (*DispatchResult, error) {
	if projectID == "" {
		return nil, validationErr("project_id is required")
	}
	run, err := c.activeRun(ctx, projectID)
	if err != nil {
		return nil, err
	}

	catalog, err := c.catalogFromPhase1(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	sheetSummaries := summarizeBySheet(catalog)

	task := c.toRawTask(run.ID, Phase3, func(ctx context.Context, p *jobrunner.Progress) (any, error) {
		return agents.Phase3Map(ctx, c.client, c.prompts, c.tier, projectID, selectedProposal, sheetSummaries, feedback)
	})
	return c.dispatch(ctx, projectID, Phase3, task)
}

// DispatchPhase4 queues the model design job, enforcing the codified gate:
// no Phase-3 result at all is a hard 409; a present-but-empty Phase-3
// result is also a 409 unless the caller sets allowEstimation, in which
// case the job proceeds in estimation mode.
func (c *Controller) DispatchPhase4(ctx context.Context, projectID, feedback string, allowEstimation bool) (*DispatchResult, error) {
	if projectID == "" {
		return nil, validationErr("project_id is required")
	}
	run, err := c.activeRun(ctx, projectID)
	if err != nil {
		return nil, err
	}

	phase3Result, err := c.store.GetPhaseResult(ctx, run.ID, Phase3)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindConflict, "PHASE3_NOT_COMPLETED", "phase 3 has not completed for this run")
		}
		return nil, err
	}

	estimationMode := false
	mappings, _ := phase3Result.Data["sheet_mappings"].([]any)
	if len(mappings) == 0 {
		if !allowEstimation {
			return nil, apperr.New(apperr.KindConflict, "PHASE3_EMPTY_RESULT", "phase 3 returned no sheet mappings")
		}
		estimationMode = true
	}

	var phase2Raw map[string]any
	phase2Result, err := c.store.GetPhaseResult(ctx, run.ID, Phase2)
	switch {
	case err == nil:
		phase2Raw = phase2Result.Data
	case errors.Is(err, store.ErrNotFound):
		// Phase 4 can proceed on the template mapping alone.
	default:
		return nil, err
	}

	catalog, err := c.catalogFromPhase1(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	task := c.toRawTask(run.ID, Phase4, func(ctx context.Context, p *jobrunner.Progress) (any, error) {
		return agents.Phase4Design(ctx, c.client, c.prompts, c.tier, projectID, phase2Raw, phase3Result.Data, catalog, feedback, estimationMode)
	})
	return c.dispatch(ctx, projectID, Phase4, task)
}

// DispatchPhase5 queues the parameter extraction job. A missing Phase-4
// result is not gated in spec.md — Phase 5 degrades to extracting without
// prior cell assignments rather than refusing the request.
func (c *Controller) DispatchPhase5(ctx context.Context, projectID, documentText, feedback string, strict bool) (*DispatchResult, error) {
	if projectID == "" || documentText == "" {
		return nil, validationErr("project_id and document text are required")
	}
	run, err := c.activeRun(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var phase4Raw map[string]any
	var cellAssignments []agents.CellAssignment
	phase4Result, err := c.store.GetPhaseResult(ctx, run.ID, Phase4)
	switch {
	case err == nil:
		phase4Raw = phase4Result.Data
		cellAssignments, err = rawToCellAssignments(phase4Result.Data)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotFound):
		// proceed without prior cell assignments.
	default:
		return nil, err
	}

	task := c.toRawTask(run.ID, Phase5, func(ctx context.Context, p *jobrunner.Progress) (any, error) {
		return agents.Phase5Extract(ctx, c.client, c.prompts, c.tier, projectID, phase4Raw, cellAssignments, documentText, feedback, strict)
	})
	return c.dispatch(ctx, projectID, Phase5, task)
}

// DispatchExport queues the phase-6 spreadsheet export job.
func (c *Controller) DispatchExport(ctx context.Context, projectID string) (*DispatchResult, error) {
	if projectID == "" {
		return nil, validationErr("project_id is required")
	}
	if c.exporter == nil {
		return nil, apperr.New(apperr.KindInternal, "EXPORT_UNAVAILABLE", "no spreadsheet exporter is configured")
	}
	run, err := c.activeRun(ctx, projectID)
	if err != nil {
		return nil, err
	}

	task := c.toMapTask(run.ID, Phase6, func(ctx context.Context, p *jobrunner.Progress) (map[string]any, error) {
		return c.exporter.Export(ctx, projectID, run)
	})
	return c.dispatch(ctx, projectID, Phase6, task)
}

func (c *Controller) catalogFromPhase1(ctx context.Context, runID string) ([]agents.CatalogItem, error) {
	pr, err := c.store.GetPhaseResult(ctx, runID, Phase1)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rawToCatalog(pr.Data)
}
