package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/media-converter/internal/async"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

// Converter is the part of the orchestrator a worker needs.
type Converter interface {
	Convert(ctx context.Context, req convert.Request, d media.Descriptor) convert.Result
	ConvertAs(ctx context.Context, req convert.Request, d media.Descriptor, s classify.Strategy) convert.Result
}

// JobStore records job progress.
type JobStore interface {
	Start(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, id uuid.UUID, res convert.Result) error
}

// ConversionQueue runs conversions on a fixed pool of workers. One job
// occupies one worker from start to finish.
type ConversionQueue struct {
	conv    Converter
	jobs    JobStore
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan async.Job
	wg   sync.WaitGroup
	once sync.Once

	// stopping is closed first on shutdown to release blocked senders;
	// mu guards ch against a send after close.
	stopping chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

var _ async.Queue = (*ConversionQueue)(nil)

type Option func(*ConversionQueue)

func WithWorkers(n int) Option {
	return func(q *ConversionQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ConversionQueue) {
		if n > 0 {
			q.ch = make(chan async.Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ConversionQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewConversionQueue(conv Converter, jobs JobStore, logger *slog.Logger, opts ...Option) *ConversionQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ConversionQueue{
		conv:    conv,
		jobs:    jobs,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan async.Job, 256),

		stopping: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ConversionQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ConversionQueue) process(workerID int, job async.Job) {
	logger := q.logger.With("worker_id", workerID, "job_id", job.JobID, "document_id", job.Descriptor.ID)
	if err := q.jobs.Start(context.Background(), job.JobID); err != nil {
		logger.Error("failed to mark job running", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	var res convert.Result
	if job.Strategy != "" {
		res = q.conv.ConvertAs(ctx, job.Request, job.Descriptor, job.Strategy)
	} else {
		res = q.conv.Convert(ctx, job.Request, job.Descriptor)
	}
	cancel()

	// the job timeout must not prevent recording the outcome
	fctx, fcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer fcancel()
	if err := q.jobs.Finish(fctx, job.JobID, res); err != nil {
		logger.Error("failed to record job result", "status", res.Status, "error", err)
		return
	}
	if res.Succeeded() {
		logger.Info("conversion job finished", "status", res.Status, "method", res.Method, "queued_ms", time.Since(job.SubmittedAt).Milliseconds())
	} else {
		logger.Warn("conversion job finished", "status", res.Status, "error_code", res.ErrorCode, "error", res.ErrorMessage)
	}
}

// Enqueue hands a job to the workers, blocking while the queue is full
// until ctx is done or the queue shuts down.
func (q *ConversionQueue) Enqueue(ctx context.Context, job async.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return async.ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued conversion job", "job_id", job.JobID, "document_id", job.Descriptor.ID)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job_id", job.JobID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopping:
		return async.ErrQueueClosed
	}
}

func (q *ConversionQueue) Shutdown(ctx context.Context) {
	q.stopOnce.Do(func() { close(q.stopping) })

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
