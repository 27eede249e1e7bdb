package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is the smallest useful unit of queued work.
type Job struct {
	JobID       uuid.UUID
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor executes one queued job to a terminal status.
type Processor interface {
	Process(ctx context.Context, jobID uuid.UUID) error
}
