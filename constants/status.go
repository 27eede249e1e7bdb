package constants

// JobStatus is the canonical status for rows in the jobs ledger.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending     JobStatus = "PENDING"      // accepted, waiting for a worker
	JobStatusRunning     JobStatus = "RUNNING"      // owned by a worker
	JobStatusCompleted   JobStatus = "COMPLETED"    // terminal success
	JobStatusNeedsReview JobStatus = "NEEDS_REVIEW" // terminal, human review required
	JobStatusFailed      JobStatus = "FAILED"       // terminal failure
)

// IsTerminal reports whether no further automatic processing may occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusNeedsReview, JobStatusFailed:
		return true
	}
	return false
}

// Stage is one discrete step of the pipeline state machine.
type Stage string

const (
	StageRecognize Stage = "recognize"
	StageExtract   Stage = "extract"
	StageMap       Stage = "map"
	StageValidate  Stage = "validate"
	StageRecover   Stage = "recover"
	StageFill      Stage = "fill"
	StageFinalize  Stage = "finalize"
	StageAbandon   Stage = "abandon"
)
