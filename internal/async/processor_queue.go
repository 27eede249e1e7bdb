package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProcessorQueue is a bounded in-process worker pool. Enqueue blocks when
// the buffer is full so submitters feel backpressure instead of the process
// growing without bound. Each dequeued job runs under its own timeout
// context; a slow backend call cannot wedge a worker forever.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	jobs chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.jobs = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 6,
		timeout: 5 * time.Minute,
		jobs:    make(chan Job, 512),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 1; i <= q.workers; i++ {
			q.wg.Add(1)
			go q.work(i)
		}
	})
}

func (q *ProcessorQueue) work(id int) {
	defer q.wg.Done()
	q.logger.Info("queue.worker.start", "worker_id", id)

	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.proc.Process(ctx, job.JobID)
		cancel()

		if err != nil {
			q.logger.Error("queue.process.error", "worker_id", id, "job_id", job.JobID, "error", err)
			continue
		}
		q.logger.Info("queue.process.ok",
			"worker_id", id,
			"job_id", job.JobID,
			"waited_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
	}
	q.logger.Info("queue.worker.stop", "worker_id", id)
}

// Enqueue hands a job to the pool. A queue that is shutting down drops the
// job; the ledger row stays PENDING and is visible to operators.
func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.rejected", "job_id", job.JobID)
		return nil
	}
	select {
	case q.jobs <- job:
	default:
		q.logger.Warn("queue.full", "job_id", job.JobID)
		q.jobs <- job
	}
	return nil
}

// Shutdown stops intake and waits for in-flight jobs, bounded by ctx.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
