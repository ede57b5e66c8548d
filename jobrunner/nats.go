package jobrunner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/planforge/finmodel/store"
)

const (
	natsStreamName = "JOBS"
	natsSubjectFmt = "jobs.dispatch.%s"
)

// NATSExecutor publishes a dispatch message per job to a JetStream stream
// and pulls it back on a durable consumer, the same
// subscribe-before-publish / ephemeral-consumer / Fetch-loop shape
// processor/workflow-api's plan-review trigger uses to round-trip a
// request through a broker within one process. Unlike that trigger, the
// publisher and the puller are the same process: NATS here is a durable
// local work queue, not a fan-out to other services.
//
// Because a TaskFunc is a closure, it cannot cross the wire — Submit keeps
// it in memory keyed by job ID and the dispatch message carries only the
// ID, so this executor does not by itself support workers in a different
// process picking up the closure. It is useful as a durable queue within
// one process (jobs survive a worker goroutine panic recovery cycle) and
// as the integration point a future out-of-process worker pool would
// replace task lookup in.
type NATSExecutor struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	runner   *Runner
	logger   *slog.Logger

	tasks sync.Map // job ID -> TaskFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewNATSExecutor connects to natsURL, ensures the JOBS stream and a
// durable pull consumer exist, and starts the fetch loop.
func NewNATSExecutor(ctx context.Context, natsURL string, runner *Runner, logger *slog.Logger) (*NATSExecutor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get jetstream: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     natsStreamName,
		Subjects: []string{"jobs.dispatch.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JOBS stream: %w", err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "jobrunner-workers",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jobrunner-workers consumer: %w", err)
	}

	e := &NATSExecutor{
		conn:     nc,
		js:       js,
		consumer: consumer,
		runner:   runner,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	e.wg.Add(1)
	go e.fetchLoop()
	return e, nil
}

// Submit keeps task addressable by job ID and publishes a dispatch message
// naming it. Publishing happens after the task is stored so the fetch loop
// can never observe a message with no matching task.
func (e *NATSExecutor) Submit(ctx context.Context, job *store.Job, task TaskFunc) error {
	e.tasks.Store(job.ID, task)
	subject := fmt.Sprintf(natsSubjectFmt, job.Phase)
	if _, err := e.js.Publish(ctx, subject, []byte(job.ID)); err != nil {
		e.tasks.Delete(job.ID)
		return fmt.Errorf("publish job dispatch: %w", err)
	}
	return nil
}

func (e *NATSExecutor) fetchLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		msgs, err := e.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			continue
		}
		for msg := range msgs.Messages() {
			jobID := string(msg.Data())
			taskAny, ok := e.tasks.LoadAndDelete(jobID)
			if !ok {
				// No task registered locally for this ID — either a
				// redelivery after a crash mid-task or a message from a
				// peer process. Nak so it can be retried once a Submit
				// for that ID lands, or eventually exhausts its redeliveries.
				_ = msg.Nak()
				continue
			}
			task := taskAny.(TaskFunc)

			job, err := e.runner.store.GetJob(context.Background(), jobID)
			if err != nil {
				e.logger.Error("fetch dispatched job failed", "job_id", jobID, "error", err)
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
			go e.runner.Run(context.Background(), job, task)
		}
	}
}

// Close stops the fetch loop and closes the NATS connection. In-flight
// jobs already handed to Runner.Run are not awaited.
func (e *NATSExecutor) Close() error {
	close(e.stopCh)
	e.wg.Wait()
	e.conn.Close()
	return nil
}
