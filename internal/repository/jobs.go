package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/entity"
)

// Job is one row of the jobs ledger.
type Job struct {
	ID          uuid.UUID
	DedupKey    string
	Status      constants.JobStatus
	Stage       constants.Stage
	Category    constants.Category
	RetryCount  int
	NeedsReview bool
	Reason      string

	// Submission payload, kept so a worker can pick the job up later.
	Document []byte
	Format   constants.FileFormat
	Target   []byte // target schema JSON as submitted
	Template []byte // form template JSON, empty for extraction-only jobs

	Extracted    map[string]entity.ExtractedField
	Assessment   *entity.QualityAssessment
	FilledFields []string
	Artifact     []byte
	Warnings     []string
	Errors       []entity.ProcessingError
	History      []entity.StageRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditEntry is one job audit event.
type AuditEntry struct {
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JobRepository persists jobs and their audit trail.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new pending job. A dedup_key collision returns
// common.ErrDuplicate so the caller can hand back the existing job.
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = constants.JobStatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, dedup_key, status, stage, category, retry_count, needs_review, reason,
			document, format, target_json, template_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID.String(), job.DedupKey, string(job.Status), string(job.Stage), string(job.Category),
		job.RetryCount, boolToInt(job.NeedsReview), job.Reason,
		job.Document, string(job.Format), nullBytes(job.Target), nullBytes(job.Template),
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicate
		}
		return fmt.Errorf("creating job: %w", err)
	}
	return r.AppendAudit(ctx, job.ID, "job.accepted", string(job.Category))
}

// FindByDedupKey returns the job holding the given idempotency key.
func (r *JobRepository) FindByDedupKey(ctx context.Context, key string) (*Job, error) {
	return r.queryOne(ctx, "dedup_key = ?", key)
}

// GetByID returns one job.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	return r.queryOne(ctx, "id = ?", id.String())
}

// MarkRunning transitions a pending job to RUNNING. Terminal jobs are left
// untouched: the ledger never moves a job backwards.
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(constants.JobStatusRunning), time.Now().UTC(), id.String(), string(constants.JobStatusPending))
	if err != nil {
		return fmt.Errorf("marking job running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking job running: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return r.AppendAudit(ctx, id, "job.running", "")
}

// Heartbeat refreshes updated_at on a running job so the staleness sweep
// does not reclaim it.
func (r *JobRepository) Heartbeat(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET updated_at = ? WHERE id = ? AND status = ?
	`, time.Now().UTC(), id.String(), string(constants.JobStatusRunning))
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// SaveResult persists a terminal outcome: status, result payloads, artifact
// and the full audit history in one update.
func (r *JobRepository) SaveResult(ctx context.Context, job *Job) error {
	if !job.Status.IsTerminal() {
		return fmt.Errorf("%w: SaveResult requires a terminal status, got %s", common.ErrInvalidInput, job.Status)
	}
	extracted, err := marshalNullable(job.Extracted)
	if err != nil {
		return fmt.Errorf("marshalling extracted fields: %w", err)
	}
	assessment, err := marshalNullable(job.Assessment)
	if err != nil {
		return fmt.Errorf("marshalling assessment: %w", err)
	}
	filled, err := marshalNullable(job.FilledFields)
	if err != nil {
		return fmt.Errorf("marshalling filled fields: %w", err)
	}
	warnings, err := marshalNullable(job.Warnings)
	if err != nil {
		return fmt.Errorf("marshalling warnings: %w", err)
	}
	procErrors, err := marshalNullable(job.Errors)
	if err != nil {
		return fmt.Errorf("marshalling errors: %w", err)
	}
	history, err := marshalNullable(job.History)
	if err != nil {
		return fmt.Errorf("marshalling history: %w", err)
	}

	job.UpdatedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = ?, stage = ?, retry_count = ?, needs_review = ?, reason = ?,
			extracted_json = ?, assessment_json = ?, filled_json = ?, artifact = ?,
			warnings_json = ?, errors_json = ?, history_json = ?, updated_at = ?
		WHERE id = ?
	`, string(job.Status), string(job.Stage), job.RetryCount, boolToInt(job.NeedsReview), job.Reason,
		extracted, assessment, filled, job.Artifact,
		warnings, procErrors, history, job.UpdatedAt, job.ID.String())
	if err != nil {
		return fmt.Errorf("saving job result: %w", err)
	}
	return r.AppendAudit(ctx, job.ID, "job."+strings.ToLower(string(job.Status)), job.Reason)
}

// SweepStale fails RUNNING jobs whose last heartbeat is older than window.
// Returns the ids of the reclaimed jobs.
func (r *JobRepository) SweepStale(ctx context.Context, window time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM jobs WHERE status = ? AND updated_at < ?
	`, string(constants.JobStatusRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning stale job: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale jobs: %w", err)
	}

	for _, id := range ids {
		_, err := r.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, reason = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, string(constants.JobStatusFailed),
			fmt.Sprintf("reclaimed: no progress within %s", window),
			time.Now().UTC(), id.String(), string(constants.JobStatusRunning))
		if err != nil {
			return ids, fmt.Errorf("reclaiming job %s: %w", id, err)
		}
		if err := r.AppendAudit(ctx, id, "job.reclaimed", "staleness sweep"); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// RequeueStalePending returns PENDING jobs that have sat unclaimed longer
// than window, bumping updated_at so one sweep interval passes before the
// same job is offered again. A job can go stale here when the process dies
// between Create and Enqueue, or when a shutting-down queue drops the enqueue.
func (r *JobRepository) RequeueStalePending(ctx context.Context, window time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM jobs WHERE status = ? AND updated_at < ?
	`, string(constants.JobStatusPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning stale pending job: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing stale pending job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale pending jobs: %w", err)
	}

	for _, id := range ids {
		_, err := r.db.ExecContext(ctx, `
			UPDATE jobs SET updated_at = ? WHERE id = ? AND status = ?
		`, time.Now().UTC(), id.String(), string(constants.JobStatusPending))
		if err != nil {
			return ids, fmt.Errorf("touching stale pending job %s: %w", id, err)
		}
		if err := r.AppendAudit(ctx, id, "job.requeued", "staleness sweep"); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// AppendAudit appends one event to the job's audit trail.
func (r *JobRepository) AppendAudit(ctx context.Context, id uuid.UUID, event, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_audit (job_id, event, detail, created_at) VALUES (?, ?, ?, ?)
	`, id.String(), event, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("appending job audit: %w", err)
	}
	return nil
}

// ListAudit returns the job's audit events in insertion order.
func (r *JobRepository) ListAudit(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event, detail, created_at FROM job_audit WHERE job_id = ? ORDER BY id
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("querying job audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Event, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning job audit: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job audit: %w", err)
	}
	return entries, nil
}

func (r *JobRepository) queryOne(ctx context.Context, where string, arg any) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, dedup_key, status, stage, category, retry_count, needs_review, reason,
			document, format, target_json, template_json,
			extracted_json, assessment_json, filled_json, artifact,
			warnings_json, errors_json, history_json, created_at, updated_at
		FROM jobs WHERE `+where, arg)

	var (
		job                           Job
		rawID                         string
		status, stage, category       string
		format                        string
		needsReview                   int
		target, template              sql.NullString
		extracted, assessment, filled sql.NullString
		warnings, procErrors, history sql.NullString
		createdAt, updatedAt          sql.NullTime
	)
	err := row.Scan(&rawID, &job.DedupKey, &status, &stage, &category, &job.RetryCount, &needsReview, &job.Reason,
		&job.Document, &format, &target, &template,
		&extracted, &assessment, &filled, &job.Artifact,
		&warnings, &procErrors, &history, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parsing job id: %w", err)
	}
	job.Status = constants.JobStatus(status)
	job.Stage = constants.Stage(stage)
	job.Category = constants.Category(category)
	job.Format = constants.FileFormat(format)
	job.NeedsReview = needsReview != 0
	if target.Valid {
		job.Target = []byte(target.String)
	}
	if template.Valid {
		job.Template = []byte(template.String)
	}
	if createdAt.Valid {
		job.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		job.UpdatedAt = updatedAt.Time
	}

	if err := unmarshalNullable(extracted, &job.Extracted); err != nil {
		return nil, fmt.Errorf("unmarshalling extracted fields: %w", err)
	}
	if err := unmarshalNullable(assessment, &job.Assessment); err != nil {
		return nil, fmt.Errorf("unmarshalling assessment: %w", err)
	}
	if err := unmarshalNullable(filled, &job.FilledFields); err != nil {
		return nil, fmt.Errorf("unmarshalling filled fields: %w", err)
	}
	if err := unmarshalNullable(warnings, &job.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshalling warnings: %w", err)
	}
	if err := unmarshalNullable(procErrors, &job.Errors); err != nil {
		return nil, fmt.Errorf("unmarshalling errors: %w", err)
	}
	if err := unmarshalNullable(history, &job.History); err != nil {
		return nil, fmt.Errorf("unmarshalling history: %w", err)
	}
	return &job, nil
}

func marshalNullable(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	// Nil maps, slices and pointers marshal to JSON null; store SQL NULL.
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
