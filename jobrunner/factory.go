package jobrunner

import (
	"context"
	"log/slog"
)

// Open selects an Executor: natsURL configured selects NATSExecutor, empty
// selects the in-process pool at the given concurrency. Matches
// store.Open's one-attempt-only selection — a configured-but-unreachable
// broker is a startup error, not a silent fallback to in-process.
func Open(ctx context.Context, natsURL string, runner *Runner, concurrency int, logger *slog.Logger) (Executor, error) {
	if natsURL == "" {
		return NewInProcessExecutor(runner, concurrency), nil
	}
	return NewNATSExecutor(ctx, natsURL, runner, logger)
}
