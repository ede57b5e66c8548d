package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/planforge/finmodel/pipeline"
)

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body")
		return false
	}
	return true
}

func (s *Server) resolveDocumentText(w http.ResponseWriter, r *http.Request, documentID string) (string, bool) {
	if documentID == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "document_id is required")
		return "", false
	}
	doc, err := s.store.GetDocument(r.Context(), documentID)
	if err != nil {
		writeDocumentLookupErr(w, err)
		return "", false
	}
	return doc.Text, true
}

func (s *Server) writeDispatchResult(w http.ResponseWriter, d *pipeline.DispatchResult) {
	s.recordDispatch(d.Phase)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   d.JobID,
		"status":   d.Status,
		"phase":    d.Phase,
		"poll_url": d.PollURL,
	})
}

type phase1Request struct {
	ProjectID  string            `json:"project_id"`
	DocumentID string            `json:"document_id"`
	TemplateID string            `json:"template_id"`
	Colors     map[string]string `json:"colors"`
}

func (s *Server) handlePhase1Scan(w http.ResponseWriter, r *http.Request) {
	var req phase1Request
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project_id is required")
		return
	}
	text, ok := s.resolveDocumentText(w, r, req.DocumentID)
	if !ok {
		return
	}

	result, err := s.controller.Phase1Scan(r.Context(), req.ProjectID, req.TemplateID, text, req.Colors)
	if err != nil {
		writeErrFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"catalog":          result.Catalog,
		"document_summary": result.DocumentSummary,
	})
}

type phase2Request struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
	Feedback   string `json:"feedback"`
}

func (s *Server) handlePhase2Analyze(w http.ResponseWriter, r *http.Request) {
	var req phase2Request
	if !decodeBody(w, r, &req) {
		return
	}
	text, ok := s.resolveDocumentText(w, r, req.DocumentID)
	if !ok {
		return
	}
	dispatched, err := s.controller.DispatchPhase2(r.Context(), req.ProjectID, text, req.Feedback)
	if err != nil {
		s.writeDispatchErr(w, err)
		return
	}
	s.writeDispatchResult(w, dispatched)
}

type phase3Request struct {
	ProjectID        string         `json:"project_id"`
	SelectedProposal map[string]any `json:"selected_proposal"`
	Feedback         string         `json:"feedback"`
}

func (s *Server) handlePhase3Map(w http.ResponseWriter, r *http.Request) {
	var req phase3Request
	if !decodeBody(w, r, &req) {
		return
	}
	dispatched, err := s.controller.DispatchPhase3(r.Context(), req.ProjectID, req.SelectedProposal, req.Feedback)
	if err != nil {
		s.writeDispatchErr(w, err)
		return
	}
	s.writeDispatchResult(w, dispatched)
}

type phase4Request struct {
	ProjectID       string `json:"project_id"`
	Feedback        string `json:"feedback"`
	AllowEstimation bool   `json:"allow_estimation"`
}

func (s *Server) handlePhase4Design(w http.ResponseWriter, r *http.Request) {
	var req phase4Request
	if !decodeBody(w, r, &req) {
		return
	}
	dispatched, err := s.controller.DispatchPhase4(r.Context(), req.ProjectID, req.Feedback, req.AllowEstimation)
	if err != nil {
		s.writeDispatchErr(w, err)
		return
	}
	s.writeDispatchResult(w, dispatched)
}

type phase5Request struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
	Feedback   string `json:"feedback"`
	Strict     bool   `json:"strict"`
}

func (s *Server) handlePhase5Extract(w http.ResponseWriter, r *http.Request) {
	var req phase5Request
	if !decodeBody(w, r, &req) {
		return
	}
	text, ok := s.resolveDocumentText(w, r, req.DocumentID)
	if !ok {
		return
	}
	dispatched, err := s.controller.DispatchPhase5(r.Context(), req.ProjectID, text, req.Feedback, req.Strict)
	if err != nil {
		s.writeDispatchErr(w, err)
		return
	}
	s.writeDispatchResult(w, dispatched)
}
