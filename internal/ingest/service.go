package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/jobs"
)

// Service submits watched files as jobs. Watched submissions carry a fixed
// target schema; per-request schemas come through the HTTP API instead.
type Service struct {
	jobs     *jobs.Service
	target   []byte // target schema JSON applied to every watched file
	category constants.Category
	logger   *slog.Logger
}

func NewService(jobsSvc *jobs.Service, target []byte, category constants.Category, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobsSvc, target: target, category: category, logger: logger}
}

// Run consumes watcher events until ctx is cancelled. Unreadable or
// unsupported files are logged and skipped; duplicate submissions are
// expected and harmless.
func (s *Service) Run(ctx context.Context, events <-chan string, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			s.logger.Error("ingest.watch.error", "error", err)
		case path, ok := <-events:
			if !ok {
				return
			}
			s.submit(ctx, path)
		}
	}
}

func (s *Service) submit(ctx context.Context, path string) {
	format := constants.MapExtToFormat(filepath.Ext(path))
	if format == "" {
		s.logger.Warn("ingest.skip.unsupported", "path", path)
		return
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("ingest.read.error", "path", path, "error", err)
		return
	}

	resp, err := s.jobs.Submit(ctx, jobs.SubmitRequest{
		Document: doc,
		Format:   format,
		Category: s.category,
		Target:   s.target,
	})
	if err != nil {
		s.logger.Error("ingest.submit.error", "path", path, "error", err)
		return
	}
	s.logger.Info("ingest.submit.ok",
		"path", path,
		"job_id", resp.JobID,
		"duplicate", resp.Duplicate,
	)
}
