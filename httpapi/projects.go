package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/store"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Memo        string `json:"memo"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
		return
	}

	now := time.Now()
	project := &store.Project{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Memo:        req.Memo,
		LLMProvider: req.LLMProvider,
		LLMModel:    req.LLMModel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		writeErrFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeErrFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		writeProjectLookupErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleProjectState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		writeProjectLookupErr(w, err)
		return
	}

	run, results, err := s.store.GetProjectState(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeErrFromErr(w, err)
		return
	}
	pendingEdits, err := s.store.GetEdits(r.Context(), id)
	if err != nil {
		writeErrFromErr(w, err)
		return
	}

	resp := map[string]any{
		"project_id":    id,
		"phase_results": results,
		"pending_edits": pendingEdits,
	}
	if run != nil {
		resp["run_id"] = run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type createEditRequest struct {
	Sheet    string `json:"sheet"`
	Cell     string `json:"cell"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

func (s *Server) handleCreateEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		writeProjectLookupErr(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req createEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.Sheet == "" || req.Cell == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sheet and cell are required")
		return
	}

	edit := &store.Edit{
		ID:        uuid.New().String(),
		ProjectID: id,
		Sheet:     req.Sheet,
		Cell:      req.Cell,
		OldValue:  req.OldValue,
		NewValue:  req.NewValue,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveEdit(r.Context(), edit); err != nil {
		writeErrFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleProjectHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		writeProjectLookupErr(w, err)
		return
	}
	edits, err := s.store.GetEdits(r.Context(), id)
	if err != nil {
		writeErrFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": edits})
}

func writeProjectLookupErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeErrFromErr(w, apperr.New(apperr.KindNotFound, "PROJECT_NOT_FOUND", "project not found"))
		return
	}
	writeErrFromErr(w, err)
}
