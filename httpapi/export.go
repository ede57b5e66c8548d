package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/planforge/finmodel/store"
)

type exportRequest struct {
	ProjectID string `json:"project_id"`
}

func (s *Server) handleExportExcel(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dispatched, err := s.controller.DispatchExport(r.Context(), req.ProjectID)
	if err != nil {
		s.writeDispatchErr(w, err)
		return
	}
	s.recordDispatch(dispatched.Phase)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":       dispatched.JobID,
		"status":       dispatched.Status,
		"phase":        dispatched.Phase,
		"poll_url":     dispatched.PollURL,
		"download_url": "/v1/export/download/" + dispatched.JobID,
	})
}

// handleExportDownload serves the artifact an export job produced. 409
// NOT_READY until the job completes, 404 JOB_NOT_FOUND if the id is
// unknown, 404 FILE_NOT_FOUND if the job completed but its artifact is
// missing from disk.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := s.controller.GetJob(r.Context(), jobID)
	if err != nil {
		writeErrFromErr(w, err)
		return
	}

	if job.Status != store.JobStatusCompleted {
		writeError(w, http.StatusConflict, "NOT_READY", "export job has not completed")
		return
	}

	artifactPath, _ := job.ResultData["artifact_path"].(string)
	if artifactPath == "" {
		writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "export job has no artifact")
		return
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "export artifact is missing")
		return
	}
	defer f.Close()

	filename := filepath.Base(artifactPath)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	http.ServeContent(w, r, filename, job.CreatedAt, f)
}

// contentDisposition encodes filename per RFC 5987 so non-ASCII names
// survive the header; a plain ASCII fallback keeps older clients working.
func contentDisposition(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiFallback(filename), url.PathEscape(filename))
}

func asciiFallback(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r > 127 || r == '"' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
