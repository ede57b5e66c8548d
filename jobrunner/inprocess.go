package jobrunner

import (
	"context"
	"errors"
	"sync"

	"github.com/planforge/finmodel/store"
)

// ErrExecutorClosed is returned by Submit once Close has been called.
var ErrExecutorClosed = errors.New("jobrunner: executor closed")

type workItem struct {
	job  *store.Job
	task TaskFunc
}

// InProcessExecutor is a bounded goroutine-pool executor: a fixed number of
// workers pull from a buffered channel and run each job through Runner.Run.
// This is the default executor absent a configured broker URL.
type InProcessExecutor struct {
	runner *Runner
	work   chan workItem
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// NewInProcessExecutor starts concurrency workers over runner. concurrency
// <= 0 falls back to 2, the system's low default since calls are LLM-bound
// and rate-limited upstream.
func NewInProcessExecutor(runner *Runner, concurrency int) *InProcessExecutor {
	if concurrency <= 0 {
		concurrency = 2
	}
	e := &InProcessExecutor{
		runner: runner,
		work:   make(chan workItem, 64),
		closed: make(chan struct{}),
	}
	for i := 0; i < concurrency; i++ {
		e.wg.Add(1)
		go e.loop()
	}
	return e
}

func (e *InProcessExecutor) loop() {
	defer e.wg.Done()
	for item := range e.work {
		e.runner.Run(context.Background(), item.job, item.task)
	}
}

// Submit enqueues job for execution by the next free worker. It never
// blocks on the job's execution, only on the submit queue being full.
func (e *InProcessExecutor) Submit(ctx context.Context, job *store.Job, task TaskFunc) error {
	select {
	case <-e.closed:
		return ErrExecutorClosed
	default:
	}
	select {
	case e.work <- workItem{job: job, task: task}:
		return nil
	case <-e.closed:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new work and waits for in-flight jobs to finish.
func (e *InProcessExecutor) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		close(e.work)
	})
	e.wg.Wait()
	return nil
}
