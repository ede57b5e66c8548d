package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory fallback backend, selected when no DSN is
// configured. Each entity kind gets its own mutex rather than one
// store-wide lock, mirroring a SQL backend's per-table transaction
// isolation: a write to jobs never blocks a read of projects.
type MemStore struct {
	projectsMu sync.RWMutex
	projects   map[string]*Project

	documentsMu sync.RWMutex
	documents   map[string]*Document

	runsMu sync.RWMutex
	runs   map[string]*Run
	// runsByProject indexes run IDs in creation order for GetLatestRun.
	runsByProject map[string][]string

	phaseResultsMu sync.RWMutex
	// phaseResults is keyed by runID+"/"+phase, enforcing the upsert
	// uniqueness the Store contract requires.
	phaseResults map[string]*PhaseResult

	editsMu sync.RWMutex
	edits   map[string][]*Edit // keyed by projectID, append-only

	jobsMu sync.RWMutex
	jobs   map[string]*Job

	promptVersionsMu sync.RWMutex
	promptVersions   map[string]*PromptVersion
	// activePrompt is keyed by scope+"/"+key, scope being projectID or ""
	// for global.
	activePrompt map[string]string // -> promptVersion ID

	settingsMu sync.RWMutex
	settings   *SystemSettings

	auditMu sync.Mutex
	audit   []*AuditRecord
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		projects:       make(map[string]*Project),
		documents:      make(map[string]*Document),
		runs:           make(map[string]*Run),
		runsByProject:  make(map[string][]string),
		phaseResults:   make(map[string]*PhaseResult),
		edits:          make(map[string][]*Edit),
		jobs:           make(map[string]*Job),
		promptVersions: make(map[string]*PromptVersion),
		activePrompt:   make(map[string]string),
		settings:       &SystemSettings{},
	}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	m.projectsMu.Lock()
	defer m.projectsMu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *MemStore) GetProject(ctx context.Context, id string) (*Project, error) {
	m.projectsMu.RLock()
	defer m.projectsMu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) ListProjects(ctx context.Context) ([]*Project, error) {
	m.projectsMu.RLock()
	defer m.projectsMu.RUnlock()
	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) GetProjectState(ctx context.Context, projectID string) (*Run, []*PhaseResult, error) {
	run, err := m.GetLatestRun(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	m.phaseResultsMu.RLock()
	defer m.phaseResultsMu.RUnlock()
	var results []*PhaseResult
	for _, pr := range m.phaseResults {
		if pr.RunID == run.ID {
			cp := *pr
			results = append(results, &cp)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Phase < results[j].Phase })
	return run, results, nil
}

func (m *MemStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now()

	m.documentsMu.Lock()
	defer m.documentsMu.Unlock()
	cp := *d
	m.documents[d.ID] = &cp
	return nil
}

func (m *MemStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	m.documentsMu.RLock()
	defer m.documentsMu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemStore) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now()

	m.runsMu.Lock()
	defer m.runsMu.Unlock()
	cp := *r
	m.runs[r.ID] = &cp
	m.runsByProject[r.ProjectID] = append(m.runsByProject[r.ProjectID], r.ID)
	return nil
}

func (m *MemStore) GetLatestRun(ctx context.Context, projectID string) (*Run, error) {
	m.runsMu.RLock()
	defer m.runsMu.RUnlock()
	ids := m.runsByProject[projectID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	r := m.runs[ids[len(ids)-1]]
	cp := *r
	return &cp, nil
}

func phaseResultKey(runID, phase string) string { return runID + "/" + phase }

func (m *MemStore) SavePhaseResult(ctx context.Context, pr *PhaseResult) error {
	m.phaseResultsMu.Lock()
	defer m.phaseResultsMu.Unlock()

	key := phaseResultKey(pr.RunID, pr.Phase)
	now := time.Now()
	if existing, ok := m.phaseResults[key]; ok {
		pr.ID = existing.ID
		pr.CreatedAt = existing.CreatedAt
	} else {
		if pr.ID == "" {
			pr.ID = uuid.New().String()
		}
		pr.CreatedAt = now
	}
	pr.UpdatedAt = now

	cp := *pr
	m.phaseResults[key] = &cp
	return nil
}

func (m *MemStore) GetPhaseResult(ctx context.Context, runID, phase string) (*PhaseResult, error) {
	m.phaseResultsMu.RLock()
	defer m.phaseResultsMu.RUnlock()
	pr, ok := m.phaseResults[phaseResultKey(runID, phase)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pr
	return &cp, nil
}

func (m *MemStore) SaveEdit(ctx context.Context, e *Edit) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now()

	m.editsMu.Lock()
	defer m.editsMu.Unlock()
	cp := *e
	m.edits[e.ProjectID] = append(m.edits[e.ProjectID], &cp)
	return nil
}

func (m *MemStore) GetEdits(ctx context.Context, projectID string) ([]*Edit, error) {
	m.editsMu.RLock()
	defer m.editsMu.RUnlock()
	edits := m.edits[projectID]
	out := make([]*Edit, len(edits))
	copy(out, edits)
	return out, nil
}

func (m *MemStore) CreateJob(ctx context.Context, j *Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	now := time.Now()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = JobStatusQueued
	}

	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	for _, existing := range m.jobs {
		if existing.RunID == j.RunID && existing.Phase == j.Phase && !existing.Status.Terminal() {
			return ErrConflict
		}
	}

	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

// UpdateJob enforces monotone progress and terminal finality: a write that
// would decrease Progress, or that targets a job already in a terminal
// state, is rejected with ErrConflict.
func (m *MemStore) UpdateJob(ctx context.Context, j *Job) error {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	existing, ok := m.jobs[j.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status.Terminal() {
		return ErrConflict
	}
	if j.Progress < existing.Progress {
		return ErrConflict
	}

	j.CreatedAt = existing.CreatedAt
	j.UpdatedAt = time.Now()
	if j.Status.Terminal() && j.CompletedAt == nil {
		now := time.Now()
		j.CompletedAt = &now
	}

	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *MemStore) GetJob(ctx context.Context, id string) (*Job, error) {
	m.jobsMu.RLock()
	defer m.jobsMu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemStore) CreatePromptVersion(ctx context.Context, v *PromptVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now()

	m.promptVersionsMu.Lock()
	defer m.promptVersionsMu.Unlock()
	cp := *v
	m.promptVersions[v.ID] = &cp
	return nil
}

func (m *MemStore) GetPromptVersion(ctx context.Context, id string) (*PromptVersion, error) {
	m.promptVersionsMu.RLock()
	defer m.promptVersionsMu.RUnlock()
	v, ok := m.promptVersions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemStore) ListPromptVersions(ctx context.Context, key string) ([]*PromptVersion, error) {
	m.promptVersionsMu.RLock()
	defer m.promptVersionsMu.RUnlock()
	var out []*PromptVersion
	for _, v := range m.promptVersions {
		if v.Key == key {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func promptScopeKey(projectID, key string) string { return projectID + "/" + key }

func (m *MemStore) GetActivePrompt(ctx context.Context, projectID, key string) (*PromptVersion, error) {
	m.promptVersionsMu.RLock()
	defer m.promptVersionsMu.RUnlock()
	id, ok := m.activePrompt[promptScopeKey(projectID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := m.promptVersions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemStore) ActivatePromptVersion(ctx context.Context, id string) error {
	m.promptVersionsMu.Lock()
	defer m.promptVersionsMu.Unlock()

	v, ok := m.promptVersions[id]
	if !ok {
		return ErrNotFound
	}
	if prevID, ok := m.activePrompt[promptScopeKey(v.ProjectID, v.Key)]; ok {
		if prev, ok := m.promptVersions[prevID]; ok {
			prev.Active = false
		}
	}
	v.Active = true
	m.activePrompt[promptScopeKey(v.ProjectID, v.Key)] = id
	return nil
}

func (m *MemStore) DeactivatePromptVersion(ctx context.Context, projectID, key string) error {
	m.promptVersionsMu.Lock()
	defer m.promptVersionsMu.Unlock()
	delete(m.activePrompt, promptScopeKey(projectID, key))
	return nil
}

func (m *MemStore) GetLLMDefault(ctx context.Context) (*SystemSettings, error) {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	cp := *m.settings
	return &cp, nil
}

func (m *MemStore) SetLLMDefault(ctx context.Context, s *SystemSettings) error {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	cp := *s
	m.settings = &cp
	return nil
}

func (m *MemStore) GetProjectLLMConfig(ctx context.Context, projectID string) (string, string, error) {
	p, err := m.GetProject(ctx, projectID)
	if err != nil {
		return "", "", err
	}
	if p.LLMProvider != "" && p.LLMModel != "" {
		return p.LLMProvider, p.LLMModel, nil
	}
	settings, err := m.GetLLMDefault(ctx)
	if err != nil {
		return "", "", err
	}
	return settings.DefaultLLMProvider, settings.DefaultLLMModel, nil
}

func (m *MemStore) SaveAuditRecord(ctx context.Context, a *AuditRecord) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()

	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	cp := *a
	m.audit = append(m.audit, &cp)
	return nil
}
