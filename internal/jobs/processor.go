package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/fill"
	"github.com/joseph-ayodele/docufill/internal/pipeline"
	"github.com/joseph-ayodele/docufill/internal/profiles"
	"github.com/joseph-ayodele/docufill/internal/repository"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// Processor executes queued jobs: it claims the row, runs the pipeline and
// persists the terminal outcome. One Processor is shared across workers;
// each Process call builds its own orchestrator.
type Processor struct {
	repo     *repository.JobRepository
	profiles *profiles.Service
	build    OrchestratorFactory
	logger   *slog.Logger
}

// OrchestratorFactory builds a fresh orchestrator per job so retry state
// never leaks between documents.
type OrchestratorFactory func() *pipeline.Orchestrator

func NewProcessor(repo *repository.JobRepository, prof *profiles.Service, build OrchestratorFactory, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{repo: repo, profiles: prof, build: build, logger: logger}
}

// Process runs one job to a terminal status. Jobs already terminal or
// claimed by another worker are skipped, which makes redelivery harmless.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job.Status != constants.JobStatusPending {
		p.logger.Info("job.process.skip", "job_id", jobID, "status", job.Status)
		return nil
	}
	if err := p.repo.MarkRunning(ctx, jobID); err != nil {
		return fmt.Errorf("claiming job %s: %w", jobID, err)
	}

	in, err := p.buildInput(job)
	if err != nil {
		job.Status = constants.JobStatusFailed
		job.Reason = err.Error()
		return p.repo.SaveResult(ctx, job)
	}

	outcome := p.build().Run(ctx, in)

	job.Status = outcome.Status
	job.Stage = outcome.State.CurrentStage
	job.RetryCount = outcome.State.RetryCount
	job.NeedsReview = outcome.Status == constants.JobStatusNeedsReview
	job.Reason = outcome.Reason
	job.Extracted = outcome.State.ExtractedFields
	job.Assessment = outcome.State.Quality
	job.FilledFields = outcome.FilledFields
	job.Artifact = outcome.Artifact
	job.Warnings = outcome.State.Warnings
	job.Errors = outcome.State.Errors
	job.History = outcome.State.History

	if err := p.repo.SaveResult(ctx, job); err != nil {
		return fmt.Errorf("persisting job %s: %w", jobID, err)
	}

	// Successful extractions enrich the remembered profile; failures do not.
	if outcome.Status == constants.JobStatusCompleted && p.profiles != nil {
		if err := p.profiles.Remember(ctx, job.Category, job.Extracted); err != nil {
			p.logger.Warn("job.process.profile_merge_failed", "job_id", jobID, "error", err)
		}
	}

	p.logger.Info("job.process.done",
		"job_id", jobID,
		"status", job.Status,
		"retry_count", job.RetryCount,
	)
	return nil
}

func (p *Processor) buildInput(job *repository.Job) (pipeline.Input, error) {
	target, err := schema.ParseTargetSchema(job.Target)
	if err != nil {
		return pipeline.Input{}, common.WrapError(err, "parsing target schema")
	}
	in := pipeline.Input{
		DocumentID: job.ID,
		Document:   job.Document,
		Format:     job.Format,
		Category:   job.Category,
		Target:     target,
	}
	if len(job.Template) > 0 {
		tmpl, err := fill.ParseTemplate(job.Template)
		if err != nil {
			return pipeline.Input{}, common.WrapError(err, "parsing form template")
		}
		in.Template = tmpl
	}
	return in, nil
}
