package store

import "context"

// Store is the full persistence contract the pipeline controller, job
// runtime, and prompt registry depend on. SQLStore and MemStore both
// implement it; callers depend on the interface so a DSN can swap the
// backend without touching call sites.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	// GetProjectState returns the latest run and the phase results saved
	// against it, the single call the project detail endpoint needs.
	GetProjectState(ctx context.Context, projectID string) (*Run, []*PhaseResult, error)

	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)

	CreateRun(ctx context.Context, r *Run) error
	GetLatestRun(ctx context.Context, projectID string) (*Run, error)

	// SavePhaseResult upserts by (RunID, Phase): a second save for the
	// same pair replaces the row rather than appending one.
	SavePhaseResult(ctx context.Context, pr *PhaseResult) error
	GetPhaseResult(ctx context.Context, runID, phase string) (*PhaseResult, error)

	// SaveEdit appends; edits are never updated or deleted in place.
	SaveEdit(ctx context.Context, e *Edit) error
	// GetEdits returns a project's edits in ascending CreatedAt order —
	// the order they were applied.
	GetEdits(ctx context.Context, projectID string) ([]*Edit, error)

	CreateJob(ctx context.Context, j *Job) error
	// UpdateJob must reject a write that would move Progress backward or
	// leave a terminal status, returning ErrConflict.
	UpdateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)

	CreatePromptVersion(ctx context.Context, v *PromptVersion) error
	GetPromptVersion(ctx context.Context, id string) (*PromptVersion, error)
	ListPromptVersions(ctx context.Context, key string) ([]*PromptVersion, error)
	// GetActivePrompt returns the active version for key in projectID's
	// scope, or ErrNotFound if none is active there.
	GetActivePrompt(ctx context.Context, projectID, key string) (*PromptVersion, error)
	ActivatePromptVersion(ctx context.Context, id string) error
	DeactivatePromptVersion(ctx context.Context, projectID, key string) error

	GetLLMDefault(ctx context.Context) (*SystemSettings, error)
	SetLLMDefault(ctx context.Context, s *SystemSettings) error
	// GetProjectLLMConfig resolves a project's effective provider/model:
	// the project's own override if set, else the system default.
	GetProjectLLMConfig(ctx context.Context, projectID string) (provider, model string, err error)

	SaveAuditRecord(ctx context.Context, a *AuditRecord) error

	Close() error
}
