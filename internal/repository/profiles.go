package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/entity"
)

// ProfileField is one remembered field value for a document category.
type ProfileField struct {
	Category   constants.Category `json:"category"`
	Name       string             `json:"name"`
	Value      string             `json:"value"`
	Confidence int                `json:"confidence"`
	Source     entity.FieldSource `json:"source"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// FieldAuditEntry records one merge decision, applied or skipped.
type FieldAuditEntry struct {
	Category   constants.Category `json:"category"`
	Name       string             `json:"name"`
	OldValue   string             `json:"old_value,omitempty"`
	NewValue   string             `json:"new_value"`
	Confidence int                `json:"confidence"`
	Source     entity.FieldSource `json:"source"`
	Applied    bool               `json:"applied"`
	Timestamp  time.Time          `json:"timestamp"`
}

// ProfileRepository persists merged profile fields. Merges are
// confidence-gated: an incoming value overwrites the stored one only when
// its confidence is at least as high, and every decision is audited either
// way.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Merge folds extracted fields into the stored profile for a category in
// one transaction. Empty values never participate. Returns the number of
// fields actually written.
func (r *ProfileRepository) Merge(ctx context.Context, cat constants.Category, fields map[string]entity.ExtractedField) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	applied := 0
	for name, f := range fields {
		if f.IsEmpty() {
			continue
		}
		value := f.StringValue()

		var oldValue sql.NullString
		var oldConfidence int
		err := tx.QueryRowContext(ctx, `
			SELECT value, confidence FROM profile_fields WHERE category = ? AND name = ?
		`, string(cat), name).Scan(&oldValue, &oldConfidence)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if err != nil {
			return applied, fmt.Errorf("reading profile field %q: %w", name, err)
		}

		write := !exists || f.Confidence >= oldConfidence
		if write {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO profile_fields (category, name, value, confidence, source, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(category, name) DO UPDATE SET
					value = excluded.value,
					confidence = excluded.confidence,
					source = excluded.source,
					updated_at = excluded.updated_at
			`, string(cat), name, value, f.Confidence, string(f.Source), now)
			if err != nil {
				return applied, fmt.Errorf("writing profile field %q: %w", name, err)
			}
			applied++
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO field_audit (category, name, old_value, new_value, confidence, source, applied, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, string(cat), name, oldValue, value, f.Confidence, string(f.Source), boolToInt(write), now)
		if err != nil {
			return applied, fmt.Errorf("auditing profile field %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return applied, fmt.Errorf("committing transaction: %w", err)
	}
	return applied, nil
}

// Get returns all stored fields for a category.
func (r *ProfileRepository) Get(ctx context.Context, cat constants.Category) (map[string]ProfileField, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, name, value, confidence, source, updated_at
		FROM profile_fields WHERE category = ?
	`, string(cat))
	if err != nil {
		return nil, fmt.Errorf("querying profile fields: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ProfileField)
	for rows.Next() {
		var pf ProfileField
		var category, source string
		if err := rows.Scan(&category, &pf.Name, &pf.Value, &pf.Confidence, &source, &pf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning profile field: %w", err)
		}
		pf.Category = constants.Category(category)
		pf.Source = entity.FieldSource(source)
		out[pf.Name] = pf
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile fields: %w", err)
	}
	return out, nil
}

// GetField returns one stored field or common.ErrNotFound.
func (r *ProfileRepository) GetField(ctx context.Context, cat constants.Category, name string) (*ProfileField, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT category, name, value, confidence, source, updated_at
		FROM profile_fields WHERE category = ? AND name = ?
	`, string(cat), name)

	var pf ProfileField
	var category, source string
	if err := row.Scan(&category, &pf.Name, &pf.Value, &pf.Confidence, &source, &pf.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("scanning profile field: %w", err)
	}
	pf.Category = constants.Category(category)
	pf.Source = entity.FieldSource(source)
	return &pf, nil
}

// FieldHistory returns the merge audit trail for one field, oldest first.
func (r *ProfileRepository) FieldHistory(ctx context.Context, cat constants.Category, name string) ([]FieldAuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, name, old_value, new_value, confidence, source, applied, created_at
		FROM field_audit WHERE category = ? AND name = ? ORDER BY id
	`, string(cat), name)
	if err != nil {
		return nil, fmt.Errorf("querying field audit: %w", err)
	}
	defer rows.Close()

	var entries []FieldAuditEntry
	for rows.Next() {
		var e FieldAuditEntry
		var category, source string
		var oldValue sql.NullString
		var applied int
		if err := rows.Scan(&category, &e.Name, &oldValue, &e.NewValue, &e.Confidence, &source, &applied, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning field audit: %w", err)
		}
		e.Category = constants.Category(category)
		e.Source = entity.FieldSource(source)
		e.OldValue = oldValue.String
		e.Applied = applied != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating field audit: %w", err)
	}
	return entries, nil
}
