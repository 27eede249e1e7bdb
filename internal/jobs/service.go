// Package jobs is the external face of the pipeline: submit a document,
// get the result. Submissions are idempotent on content, processing is
// asynchronous, and every status transition lands in the audit trail.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/async"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/repository"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// SubmitRequest is one document submission.
type SubmitRequest struct {
	Document []byte
	Format   constants.FileFormat
	Category constants.Category
	Target   []byte // target schema JSON
	Template []byte // optional form template JSON
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	JobID     uuid.UUID           `json:"job_id"`
	Status    constants.JobStatus `json:"status"`
	Duplicate bool                `json:"duplicate"`
}

// Result is the full outcome of a job, terminal or not.
type Result struct {
	JobID             uuid.UUID                        `json:"job_id"`
	Status            constants.JobStatus              `json:"status"`
	Category          constants.Category               `json:"category"`
	Reason            string                           `json:"reason,omitempty"`
	ExtractedFields   map[string]entity.ExtractedField `json:"extracted_fields,omitempty"`
	QualityAssessment *entity.QualityAssessment        `json:"quality_assessment,omitempty"`
	FilledFields      []string                         `json:"filled_fields,omitempty"`
	Artifact          []byte                           `json:"filled_form_artifact,omitempty"`
	Warnings          []string                         `json:"warnings,omitempty"`
	Errors            []entity.ProcessingError         `json:"errors,omitempty"`
	CreatedAt         time.Time                        `json:"created_at"`
	UpdatedAt         time.Time                        `json:"updated_at"`
}

// Service accepts submissions and exposes results.
type Service struct {
	repo   *repository.JobRepository
	queue  async.Queue
	logger *slog.Logger
}

func NewService(repo *repository.JobRepository, queue async.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, queue: queue, logger: logger}
}

// Submit validates and enqueues one document. Submissions are idempotent:
// the same document bytes against the same target schema always resolve to
// the same job, regardless of how many times they arrive.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if len(req.Document) == 0 {
		return SubmitResponse{}, fmt.Errorf("%w: empty document", common.ErrInvalidInput)
	}
	if req.Format == "" {
		return SubmitResponse{}, fmt.Errorf("%w: unsupported file format", common.ErrInvalidInput)
	}
	target, err := schema.ParseTargetSchema(req.Target)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("%w: target schema: %v", common.ErrInvalidInput, err)
	}

	key, err := dedupKey(req.Document, target)
	if err != nil {
		return SubmitResponse{}, err
	}
	if existing, err := s.repo.FindByDedupKey(ctx, key); err == nil {
		s.logger.Info("job.submit.duplicate", "job_id", existing.ID, "dedup_key", key[:12])
		return SubmitResponse{JobID: existing.ID, Status: existing.Status, Duplicate: true}, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return SubmitResponse{}, err
	}

	category, _ := constants.Canonicalize(string(req.Category))
	job := &repository.Job{
		ID:       uuid.New(),
		DedupKey: key,
		Status:   constants.JobStatusPending,
		Category: category,
		Document: req.Document,
		Format:   req.Format,
		Target:   req.Target,
		Template: req.Template,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			// Lost a race with a concurrent identical submission.
			if existing, ferr := s.repo.FindByDedupKey(ctx, key); ferr == nil {
				return SubmitResponse{JobID: existing.ID, Status: existing.Status, Duplicate: true}, nil
			}
		}
		return SubmitResponse{}, err
	}

	if err := s.queue.Enqueue(ctx, async.Job{JobID: job.ID, SubmittedAt: time.Now().UTC()}); err != nil {
		return SubmitResponse{}, err
	}
	s.logger.Info("job.submit.ok",
		"job_id", job.ID,
		"category", job.Category,
		"format", job.Format,
		"bytes", len(req.Document),
	)
	return SubmitResponse{JobID: job.ID, Status: job.Status}, nil
}

// GetResult returns the current state of a job. Non-terminal jobs return
// their status with empty result payloads.
func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (Result, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return Result{
		JobID:             job.ID,
		Status:            job.Status,
		Category:          job.Category,
		Reason:            job.Reason,
		ExtractedFields:   job.Extracted,
		QualityAssessment: job.Assessment,
		FilledFields:      job.FilledFields,
		Artifact:          job.Artifact,
		Warnings:          job.Warnings,
		Errors:            job.Errors,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}, nil
}

// GetAudit returns the job's audit trail.
func (s *Service) GetAudit(ctx context.Context, id uuid.UUID) ([]repository.AuditEntry, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListAudit(ctx, id)
}

// dedupKey hashes the document bytes together with the canonical form of
// the target schema: the same document against two different forms is two
// different jobs.
func dedupKey(doc []byte, target schema.TargetSchema) (string, error) {
	canonical, err := json.Marshal(target)
	if err != nil {
		return "", fmt.Errorf("canonicalizing target schema: %w", err)
	}
	return hashSegments(doc, canonical), nil
}

// hashSegments length-prefixes each segment so the document/schema boundary
// is part of the hash input and shifting bytes across it changes the key.
func hashSegments(segments ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, seg := range segments {
		binary.BigEndian.PutUint64(n[:], uint64(len(seg)))
		h.Write(n[:])
		h.Write(seg)
	}
	return hex.EncodeToString(h.Sum(nil))
}
