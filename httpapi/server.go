// Package httpapi is the thin net/http router over the pipeline controller,
// the emitter export job, and the recalc engine. It owns no business logic:
// every handler decodes a request, calls into pipeline.Controller (or the
// store directly for project/document CRUD), and translates the result or
// error into the documented JSON envelope.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/planforge/finmodel/apperr"
	"github.com/planforge/finmodel/pipeline"
	"github.com/planforge/finmodel/promptregistry"
	"github.com/planforge/finmodel/store"
)

// maxUploadSize bounds a single document upload.
const maxUploadSize = 20 << 20 // 20 MiB

// Server holds everything a handler needs: the pipeline controller, the
// store (for project/document/edit CRUD the controller doesn't own), the
// prompt registry (for admin prompt management), and the metrics/auth
// collaborators every route is wrapped with.
type Server struct {
	store      store.Store
	controller *pipeline.Controller
	prompts    *promptregistry.Registry
	auth       *adminAuth
	metrics    *metrics
}

// NewServer wires a Server. controller must already have its Exporter set
// if export is to work; a nil exporter makes DispatchExport fail cleanly.
func NewServer(s store.Store, controller *pipeline.Controller, prompts *promptregistry.Registry) *Server {
	return &Server{
		store:      s,
		controller: controller,
		prompts:    prompts,
		auth:       newAdminAuth(),
		metrics:    newMetrics(),
	}
}

// RegisterHTTPHandlers registers every route under prefix, matching the
// convention used across the component packages this module descends from:
// a prefix-scoped registration call taking the shared mux.
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	prefix = strings.TrimSuffix(prefix, "/")

	route := func(pattern string, h http.HandlerFunc) {
		full := pattern
		if idx := strings.Index(pattern, " "); idx >= 0 {
			full = pattern[:idx+1] + prefix + pattern[idx+1:]
		} else {
			full = prefix + pattern
		}
		mux.HandleFunc(full, s.metrics.instrument(pattern, h))
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	route("POST /v1/projects", s.handleCreateProject)
	route("GET /v1/projects", s.handleListProjects)
	route("GET /v1/projects/{id}", s.handleGetProject)
	route("GET /v1/projects/{id}/state", s.handleProjectState)
	route("POST /v1/projects/{id}/edits", s.handleCreateEdit)
	route("GET /v1/projects/{id}/history", s.handleProjectHistory)

	route("POST /v1/documents/upload", s.handleUploadDocument)

	route("POST /v1/phase1/scan", s.handlePhase1Scan)
	route("POST /v1/phase2/analyze", s.handlePhase2Analyze)
	route("POST /v1/phase3/map", s.handlePhase3Map)
	route("POST /v1/phase4/design", s.handlePhase4Design)
	route("POST /v1/phase5/extract", s.handlePhase5Extract)

	route("GET /v1/jobs/{id}", s.handleGetJob)

	route("POST /v1/recalc", s.handleRecalc)

	route("POST /v1/export/excel", s.handleExportExcel)
	route("GET /v1/export/download/{job_id}", s.handleExportDownload)

	route("POST /v1/admin/auth", s.handleAdminAuth)
	route("GET /v1/admin/prompts", s.auth.requireAdmin(s.handleListPrompts))
	route("POST /v1/admin/prompts/{key}/activate", s.auth.requireAdmin(s.handleActivatePrompt))
	route("POST /v1/admin/prompts/{key}/reset", s.auth.requireAdmin(s.handleResetPrompt))
}

// Version is the build-time version string reported by /health. cmd/finmodel
// overrides it via -ldflags; the zero value is fine for tests and local runs.
var Version = "dev"

// recordDispatch counts a successfully dispatched phase job.
func (s *Server) recordDispatch(phase string) {
	s.metrics.jobsDispatched.WithLabelValues(phase).Inc()
}

// writeDispatchErr writes a dispatch failure's envelope, additionally
// counting single-flight refusals so the guard's hit rate shows up at
// /metrics alongside raw request counts.
func (s *Server) writeDispatchErr(w http.ResponseWriter, err error) {
	if apperr.CodeOf(err) == "JOB_IN_PROGRESS" {
		s.metrics.singleFlightHit.Inc()
	}
	writeErrFromErr(w, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}
