// Package profiles remembers extracted field values across documents so
// later jobs for the same category can fall back on previously confirmed
// data.
package profiles

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/repository"
)

// Service applies the merge policy over the profile store.
type Service struct {
	repo   *repository.ProfileRepository
	logger *slog.Logger
}

func NewService(repo *repository.ProfileRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Remember folds a job's extracted fields into the stored profile.
// The store keeps whichever value had the higher confidence; every
// decision lands in the field audit either way.
func (s *Service) Remember(ctx context.Context, cat constants.Category, fields map[string]entity.ExtractedField) error {
	applied, err := s.repo.Merge(ctx, cat, fields)
	if err != nil {
		s.logger.Error("profile.merge.error", "category", cat, "error", err)
		return err
	}
	s.logger.Info("profile.merge.ok",
		"category", cat,
		"incoming", len(fields),
		"applied", applied,
	)
	return nil
}

// Recall returns the remembered fields for a category as extraction
// results, so downstream mapping treats them like any other source.
func (s *Service) Recall(ctx context.Context, cat constants.Category) (map[string]entity.ExtractedField, error) {
	stored, err := s.repo.Get(ctx, cat)
	if err != nil {
		return nil, err
	}
	out := make(map[string]entity.ExtractedField, len(stored))
	for name, pf := range stored {
		out[name] = entity.ExtractedField{
			Value:      pf.Value,
			Confidence: pf.Confidence,
			Source:     pf.Source,
		}
	}
	return out, nil
}

// History exposes the merge audit trail for one field.
func (s *Service) History(ctx context.Context, cat constants.Category, name string) ([]repository.FieldAuditEntry, error) {
	return s.repo.FieldHistory(ctx, cat, name)
}
