package httpapi

import (
	"net/http"

	"github.com/planforge/finmodel/store"
)

// jobView is GET /v1/jobs/{id}'s response shape. logs/log_msg are derived
// from the job's terminal error rather than a separately persisted event
// tail — the store keeps one ResultData/Error pair per job, not a log of
// intermediate messages.
type jobView struct {
	ID         string         `json:"id"`
	Status     store.JobStatus `json:"status"`
	Progress   int            `json:"progress"`
	Phase      string         `json:"phase"`
	Logs       []string       `json:"logs"`
	Result     bool           `json:"result"`
	ErrorMsg   string         `json:"error_msg,omitempty"`
	LogMsg     string         `json:"log_msg,omitempty"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
	ResultData map[string]any `json:"result_data,omitempty"`
}

func jobToView(j *store.Job) jobView {
	v := jobView{
		ID:        j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		Phase:     j.Phase,
		Result:    j.ResultData != nil,
		CreatedAt: j.CreatedAt.Format(rfc3339),
		UpdatedAt: j.UpdatedAt.Format(rfc3339),
	}
	if j.Error != "" {
		msg := truncate(j.Error, 500)
		v.ErrorMsg = msg
		v.LogMsg = msg
		v.Logs = []string{msg}
	} else if j.Status.Terminal() {
		v.LogMsg = string(j.Status)
		v.Logs = []string{v.LogMsg}
	}
	if j.Status == store.JobStatusCompleted {
		v.ResultData = j.ResultData
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.controller.GetJob(r.Context(), id)
	if err != nil {
		writeErrFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobToView(job))
}
