package async

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docufill/internal/repository"
)

// Sweeper periodically reclaims jobs stuck in a non-terminal state: RUNNING
// jobs whose worker stopped making progress are failed, and PENDING jobs
// that never reached the queue (a crash between ledger insert and enqueue,
// or an enqueue dropped during shutdown) are re-enqueued.
type Sweeper struct {
	jobs     *repository.JobRepository
	queue    Queue
	window   time.Duration
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(jobs *repository.JobRepository, queue Queue, window, interval time.Duration, logger *slog.Logger) *Sweeper {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		jobs:     jobs,
		queue:    queue,
		window:   window,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Shutdown.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := s.jobs.SweepStale(ctx, s.window)
	if err != nil {
		s.logger.Error("sweep.error", "error", err)
		return
	}
	if len(ids) > 0 {
		s.logger.Warn("sweep.reclaimed", "count", len(ids), "window", s.window)
	}

	pending, err := s.jobs.RequeueStalePending(ctx, s.window)
	if err != nil {
		s.logger.Error("sweep.pending.error", "error", err)
		return
	}
	for _, id := range pending {
		if err := s.queue.Enqueue(ctx, Job{JobID: id, SubmittedAt: time.Now().UTC()}); err != nil {
			// The row stays PENDING with a fresh updated_at; the next sweep
			// after the window retries.
			s.logger.Error("sweep.requeue.error", "job_id", id, "error", err)
		}
	}
	if len(pending) > 0 {
		s.logger.Warn("sweep.requeued", "count", len(pending), "window", s.window)
	}
}

// Shutdown stops the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Shutdown(ctx context.Context) {
	close(s.stop)
	select {
	case <-ctx.Done():
	case <-s.done:
	}
}
