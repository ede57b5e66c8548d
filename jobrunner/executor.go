package jobrunner

import (
	"context"

	"github.com/planforge/finmodel/store"
)

// Executor dispatches a queued job to a worker. Submit returns once the job
// has been accepted for execution, not once it completes — the caller
// (pipeline.Controller) has already persisted the queued Job record, and
// the HTTP handler responds 202 once Submit has returned.
type Executor interface {
	Submit(ctx context.Context, job *store.Job, task TaskFunc) error
	Close() error
}
