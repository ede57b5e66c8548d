package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/finmodel/promptregistry"
	"github.com/planforge/finmodel/store"
)

func newVersionID() string {
	return uuid.New().String()
}

type adminAuthRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// handleAdminAuth exchanges an id/password pair for the process-lifetime
// bearer token. There is no user store behind this — any non-empty
// credentials are accepted, matching spec.md's "not a full auth subsystem"
// scoping for this thin routing layer.
func (s *Server) handleAdminAuth(w http.ResponseWriter, r *http.Request) {
	var req adminAuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "id and password are required")
		return
	}
	token, err := s.auth.issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

type promptView struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Phase       string `json:"phase"`
	Type        string `json:"type"`
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	defs := s.prompts.ListBuiltins()
	views := make([]promptView, 0, len(defs))
	for _, d := range defs {
		views = append(views, promptView{Key: d.Key, DisplayName: d.DisplayName, Phase: d.Phase, Type: string(d.Type)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": views})
}

type activatePromptRequest struct {
	ProjectID string `json:"project_id"`
	Text      string `json:"text"`
}

func (s *Server) handleActivatePrompt(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, ok := s.prompts.Definition(key); !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown prompt key")
		return
	}
	var req activatePromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required")
		return
	}

	id := newVersionID()
	now := time.Now()
	if err := s.store.CreatePromptVersion(r.Context(), &store.PromptVersion{
		ID: id, Key: key, ProjectID: req.ProjectID, Text: req.Text, CreatedAt: now,
	}); err != nil {
		writeErrFromErr(w, err)
		return
	}
	if err := s.store.ActivatePromptVersion(r.Context(), id); err != nil {
		writeErrFromErr(w, err)
		return
	}

	s.prompts.Activate(&promptregistry.Version{
		ID: id, Key: key, ProjectID: req.ProjectID, Text: req.Text, CreatedAt: now,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

func (s *Server) handleResetPrompt(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, ok := s.prompts.Definition(key); !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown prompt key")
		return
	}
	projectID := r.URL.Query().Get("project_id")
	if err := s.store.DeactivatePromptVersion(r.Context(), projectID, key); err != nil {
		writeErrFromErr(w, err)
		return
	}
	s.prompts.Deactivate(projectID, key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
