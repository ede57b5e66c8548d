// Package store persists the pipeline's entities: projects, documents,
// runs, phase results, edits, jobs, prompt versions, audit records, and
// system settings. A SQL backend (selected by DSN) or an in-memory
// fallback satisfy the same Store interface.
package store

import "time"

// Project is a single financial-model engagement.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Memo        string    `json:"memo,omitempty"`
	LLMProvider string    `json:"llm_provider,omitempty"`
	LLMModel    string    `json:"llm_model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Document is an uploaded source file attached to a project.
type Document struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	Text      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one pass of the five-phase pipeline over a project.
type Run struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PhaseResult is the stored output of one phase of one run. (RunID, Phase)
// is unique — a second save for the same pair upserts in place.
type PhaseResult struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Phase     string         `json:"phase"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Edit is one append-only user correction to a project's cell assignments
// or extractions.
type Edit struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Sheet     string    `json:"sheet"`
	Cell      string    `json:"cell"`
	OldValue  any       `json:"old_value,omitempty"`
	NewValue  any       `json:"new_value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus is a job's position in its FSM. Terminal states never
// transition further.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
)

// Terminal reports whether status is an absorbing FSM state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout:
		return true
	default:
		return false
	}
}

// Job tracks one asynchronous phase invocation.
type Job struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	RunID       string         `json:"run_id"`
	Phase       string         `json:"phase"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	ResultData  map[string]any `json:"result_data,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// AuditRecord is one logged provider call or pipeline action, persisted
// beyond the in-process AuditLogger's list.
type AuditRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	RunID     string    `json:"run_id"`
	Phase     string    `json:"phase"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptVersion is one stored revision of a prompt's text, scoped to a
// project or global (ProjectID == "").
type PromptVersion struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	ProjectID string    `json:"project_id,omitempty"`
	Text      string    `json:"text"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemSettings holds process-wide defaults not tied to any one project,
// such as the default LLM provider/model pair new projects inherit.
type SystemSettings struct {
	DefaultLLMProvider string `json:"default_llm_provider,omitempty"`
	DefaultLLMModel    string `json:"default_llm_model,omitempty"`
}
