package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLStore is the relational backend, opened against a DSN via OpenSQL.
// Every multi-statement operation runs inside a transaction so a crash
// mid-write never leaves, for example, a job's progress update applied
// without its status update.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens dsn with the modernc.org/sqlite driver and migrates the
// schema. Callers choose this backend once at startup — there is no
// mid-process fallback to MemStore if OpenSQL fails, the process should
// not start with a half-configured store.
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, memo, llm_provider, llm_model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Memo, p.LLMProvider, p.LLMModel, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *SQLStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, memo, llm_provider, llm_model, created_at, updated_at FROM projects WHERE id = ?`, id)

	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.Memo, &p.LLMProvider, &p.LLMModel, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, memo, llm_provider, llm_model, created_at, updated_at FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Memo, &p.LLMProvider, &p.LLMModel, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetProjectState(ctx context.Context, projectID string) (*Run, []*PhaseResult, error) {
	run, err := s.GetLatestRun(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, phase, data, created_at, updated_at FROM phase_results WHERE run_id = ? ORDER BY phase ASC`, run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get project state: %w", err)
	}
	defer rows.Close()

	var results []*PhaseResult
	for rows.Next() {
		pr, err := scanPhaseResult(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, pr)
	}
	return run, results, rows.Err()
}

func (s *SQLStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, project_id, filename, mime_type, size_bytes, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.Filename, d.MimeType, d.SizeBytes, d.Text, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *SQLStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, filename, mime_type, size_bytes, text, created_at FROM documents WHERE id = ?`, id)

	var d Document
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Filename, &d.MimeType, &d.SizeBytes, &d.Text, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (s *SQLStore) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, project_id, created_at) VALUES (?, ?, ?)`, r.ID, r.ProjectID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLStore) GetLatestRun(ctx context.Context, projectID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, created_at FROM runs WHERE project_id = ? ORDER BY created_at DESC LIMIT 1`, projectID)

	var r Run
	if err := row.Scan(&r.ID, &r.ProjectID, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	return &r, nil
}

func scanPhaseResult(rows *sql.Rows) (*PhaseResult, error) {
	var pr PhaseResult
	var data string
	if err := rows.Scan(&pr.ID, &pr.RunID, &pr.Phase, &data, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan phase result: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &pr.Data); err != nil {
		return nil, fmt.Errorf("unmarshal phase result data: %w", err)
	}
	return &pr, nil
}

// SavePhaseResult upserts by (run_id, phase) using the table's UNIQUE
// constraint, matching the contract's "save replaces, never duplicates"
// rule.
func (s *SQLStore) SavePhaseResult(ctx context.Context, pr *PhaseResult) error {
	data, err := json.Marshal(pr.Data)
	if err != nil {
		return fmt.Errorf("marshal phase result data: %w", err)
	}
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	now := time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO phase_results (id, run_id, phase, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, phase) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		pr.ID, pr.RunID, pr.Phase, string(data), now, now)
	if err != nil {
		return fmt.Errorf("save phase result: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPhaseResult(ctx context.Context, runID, phase string) (*PhaseResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, phase, data, created_at, updated_at FROM phase_results WHERE run_id = ? AND phase = ?`, runID, phase)
	if err != nil {
		return nil, fmt.Errorf("get phase result: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanPhaseResult(rows)
}

func (s *SQLStore) SaveEdit(ctx context.Context, e *Edit) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now()

	oldVal, err := json.Marshal(e.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newVal, err := json.Marshal(e.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edits (id, project_id, sheet, cell, old_value, new_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Sheet, e.Cell, string(oldVal), string(newVal), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("save edit: %w", err)
	}
	return nil
}

func (s *SQLStore) GetEdits(ctx context.Context, projectID string) ([]*Edit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, sheet, cell, old_value, new_value, created_at FROM edits WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get edits: %w", err)
	}
	defer rows.Close()

	var out []*Edit
	for rows.Next() {
		var e Edit
		var oldVal, newVal string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Sheet, &e.Cell, &oldVal, &newVal, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		if err := json.Unmarshal([]byte(oldVal), &e.OldValue); err != nil {
			return nil, fmt.Errorf("unmarshal old value: %w", err)
		}
		if err := json.Unmarshal([]byte(newVal), &e.NewValue); err != nil {
			return nil, fmt.Errorf("unmarshal new value: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CreateJob refuses to create a second non-terminal job for the same
// (run_id, phase), matching the controller's "no duplicate in-flight job
// per run/phase" ordering guarantee.
func (s *SQLStore) CreateJob(ctx context.Context, j *Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create job: begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE run_id = ? AND phase = ? AND status NOT IN (?, ?, ?)`,
		j.RunID, j.Phase, JobStatusCompleted, JobStatusFailed, JobStatusTimeout)
	var count int
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("create job: check conflict: %w", err)
	}
	if count > 0 {
		return ErrConflict
	}

	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	now := time.Now()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = JobStatusQueued
	}

	resultData, err := marshalNullableJSON(j.ResultData)
	if err != nil {
		return fmt.Errorf("create job: marshal result data: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, project_id, run_id, phase, status, progress, result_data, error, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ProjectID, j.RunID, j.Phase, string(j.Status), j.Progress, resultData, j.Error, j.CreatedAt, j.UpdatedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	return tx.Commit()
}

// UpdateJob enforces monotone progress and terminal finality inside a
// transaction, so a concurrent poll never observes a partial update.
func (s *SQLStore) UpdateJob(ctx context.Context, j *Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update job: begin tx: %w", err)
	}
	defer tx.Rollback()

	var currentStatus string
	var currentProgress int
	var createdAt time.Time
	row := tx.QueryRowContext(ctx, `SELECT status, progress, created_at FROM jobs WHERE id = ?`, j.ID)
	if err := row.Scan(&currentStatus, &currentProgress, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update job: %w", err)
	}

	if JobStatus(currentStatus).Terminal() {
		return ErrConflict
	}
	if j.Progress < currentProgress {
		return ErrConflict
	}

	j.CreatedAt = createdAt
	j.UpdatedAt = time.Now()
	if j.Status.Terminal() && j.CompletedAt == nil {
		now := time.Now()
		j.CompletedAt = &now
	}

	resultData, err := marshalNullableJSON(j.ResultData)
	if err != nil {
		return fmt.Errorf("update job: marshal result data: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, result_data = ?, error = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(j.Status), j.Progress, resultData, j.Error, j.UpdatedAt, j.CompletedAt, j.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	return tx.Commit()
}

func (s *SQLStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, run_id, phase, status, progress, result_data, error, created_at, updated_at, completed_at FROM jobs WHERE id = ?`, id)

	var j Job
	var status string
	var resultData sql.NullString
	if err := row.Scan(&j.ID, &j.ProjectID, &j.RunID, &j.Phase, &status, &j.Progress, &resultData, &j.Error, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Status = JobStatus(status)

	if resultData.Valid && resultData.String != "" {
		if err := json.Unmarshal([]byte(resultData.String), &j.ResultData); err != nil {
			return nil, fmt.Errorf("unmarshal job result data: %w", err)
		}
	}
	return &j, nil
}

func marshalNullableJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *SQLStore) CreatePromptVersion(ctx context.Context, v *PromptVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_versions (id, key, project_id, text, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.Key, v.ProjectID, v.Text, v.Active, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("create prompt version: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPromptVersion(ctx context.Context, id string) (*PromptVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, project_id, text, active, created_at FROM prompt_versions WHERE id = ?`, id)

	var v PromptVersion
	if err := row.Scan(&v.ID, &v.Key, &v.ProjectID, &v.Text, &v.Active, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get prompt version: %w", err)
	}
	return &v, nil
}

func (s *SQLStore) ListPromptVersions(ctx context.Context, key string) ([]*PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, project_id, text, active, created_at FROM prompt_versions WHERE key = ? ORDER BY created_at ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions: %w", err)
	}
	defer rows.Close()

	var out []*PromptVersion
	for rows.Next() {
		var v PromptVersion
		if err := rows.Scan(&v.ID, &v.Key, &v.ProjectID, &v.Text, &v.Active, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt version: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetActivePrompt(ctx context.Context, projectID, key string) (*PromptVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, project_id, text, active, created_at FROM prompt_versions WHERE project_id = ? AND key = ? AND active = 1`,
		projectID, key)

	var v PromptVersion
	if err := row.Scan(&v.ID, &v.Key, &v.ProjectID, &v.Text, &v.Active, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active prompt: %w", err)
	}
	return &v, nil
}

// ActivatePromptVersion flips the target version active and deactivates
// any other version in the same (project, key) scope, inside one
// transaction so a concurrent resolve never observes two active versions.
func (s *SQLStore) ActivatePromptVersion(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("activate prompt version: begin tx: %w", err)
	}
	defer tx.Rollback()

	var key, projectID string
	row := tx.QueryRowContext(ctx, `SELECT key, project_id FROM prompt_versions WHERE id = ?`, id)
	if err := row.Scan(&key, &projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("activate prompt version: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_versions SET active = 0 WHERE key = ? AND project_id = ?`, key, projectID); err != nil {
		return fmt.Errorf("activate prompt version: clear active: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_versions SET active = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("activate prompt version: set active: %w", err)
	}

	return tx.Commit()
}

func (s *SQLStore) DeactivatePromptVersion(ctx context.Context, projectID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE prompt_versions SET active = 0 WHERE project_id = ? AND key = ?`, projectID, key)
	if err != nil {
		return fmt.Errorf("deactivate prompt version: %w", err)
	}
	return nil
}

func (s *SQLStore) GetLLMDefault(ctx context.Context) (*SystemSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT default_llm_provider, default_llm_model FROM system_settings WHERE id = 1`)
	var settings SystemSettings
	if err := row.Scan(&settings.DefaultLLMProvider, &settings.DefaultLLMModel); err != nil {
		return nil, fmt.Errorf("get llm default: %w", err)
	}
	return &settings, nil
}

func (s *SQLStore) SetLLMDefault(ctx context.Context, settings *SystemSettings) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE system_settings SET default_llm_provider = ?, default_llm_model = ? WHERE id = 1`,
		settings.DefaultLLMProvider, settings.DefaultLLMModel)
	if err != nil {
		return fmt.Errorf("set llm default: %w", err)
	}
	return nil
}

func (s *SQLStore) GetProjectLLMConfig(ctx context.Context, projectID string) (string, string, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return "", "", err
	}
	if p.LLMProvider != "" && p.LLMModel != "" {
		return p.LLMProvider, p.LLMModel, nil
	}
	settings, err := s.GetLLMDefault(ctx)
	if err != nil {
		return "", "", err
	}
	return settings.DefaultLLMProvider, settings.DefaultLLMModel, nil
}

func (s *SQLStore) SaveAuditRecord(ctx context.Context, a *AuditRecord) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, project_id, run_id, phase, action, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.RunID, a.Phase, a.Action, a.Detail, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save audit record: %w", err)
	}
	return nil
}
