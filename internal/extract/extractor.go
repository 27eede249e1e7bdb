package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/dateparse"
	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// Extractor combines the rule pass and the model pass over one document.
type Extractor struct {
	Model  ModelExtractor
	Logger *slog.Logger
}

func NewExtractor(model ModelExtractor, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Model: model, Logger: logger}
}

// Run executes the schema-guided extraction for one document.
//
// Rules go first for structurally unambiguous fields; the model pass covers
// free-text fields. When both passes recognize a field with disagreeing
// values the higher-confidence candidate wins and the conflict is recorded
// as an issue, never silently resolved. Date-typed fields are handed to the
// date resolver with the category's locale default.
//
// A backend failure is a typed extraction_failed error; this stage never
// fabricates a successful empty result.
func (e *Extractor) Run(ctx context.Context, req Request) (map[string]entity.ExtractedField, Metadata, []entity.Issue, *common.StageError) {
	start := time.Now()

	ruleFields := ExtractByRules(req.Text, req.Schema)

	// Rules-only deployments run without a model backend.
	var modelFields map[string]entity.ExtractedField
	if e.Model != nil {
		var err error
		modelFields, _, err = e.Model.ExtractFields(ctx, req)
		if err != nil {
			e.Logger.Error("extract.model.failed", "category", req.Category, "error", err)
			return nil, Metadata{}, nil, common.NewStageError(
				constants.StageExtract, common.ErrExtractionFailed,
				"model extraction backend failed", err)
		}
	}

	fields, issues := mergePasses(ruleFields, modelFields)
	issues = append(issues, resolveDates(fields, req.Schema, req.Category)...)

	meta := Metadata{
		Model:      modelName(e.Model),
		Elapsed:    time.Since(start),
		BandCounts: bandCounts(fields),
	}

	e.Logger.Info("extract.ok",
		"category", req.Category,
		"fields", len(fields),
		"rule_fields", len(ruleFields),
		"model_fields", len(modelFields),
		"conflicts", len(issues),
		"elapsed_ms", meta.Elapsed.Milliseconds(),
	)
	return fields, meta, issues, nil
}

// mergePasses unions both passes. Agreement keeps the higher-confidence
// reading; disagreement keeps the higher-confidence reading AND records the
// conflict.
func mergePasses(rules, model map[string]entity.ExtractedField) (map[string]entity.ExtractedField, []entity.Issue) {
	out := make(map[string]entity.ExtractedField, len(rules)+len(model))
	var issues []entity.Issue

	for name, rf := range rules {
		out[name] = rf
	}
	for name, mf := range model {
		rf, both := out[name]
		if !both {
			out[name] = mf
			continue
		}
		if normalizeValue(rf.StringValue()) == normalizeValue(mf.StringValue()) {
			if mf.Confidence > rf.Confidence {
				out[name] = mf
			}
			continue
		}
		kept, dropped := rf, mf
		if mf.Confidence > rf.Confidence {
			kept, dropped = mf, rf
		}
		out[name] = kept
		issues = append(issues, entity.Issue{
			Field:    name,
			Severity: entity.SeverityWarning,
			Type:     "extraction_conflict",
			Message: fmt.Sprintf("rule and model passes disagree: kept %q (%s, confidence %d) over %q (%s, confidence %d)",
				kept.StringValue(), kept.Source, kept.Confidence,
				dropped.StringValue(), dropped.Source, dropped.Confidence),
		})
	}
	return out, issues
}

// resolveDates routes date-typed fields through the date resolver. An
// unresolvable date is marked unresolved (nil value), not guessed.
func resolveDates(fields map[string]entity.ExtractedField, cs schema.CategorySchema, cat constants.Category) []entity.Issue {
	var issues []entity.Issue
	order := constants.DateOrderFor(cat)

	for _, spec := range cs.Fields {
		if spec.Type != schema.TypeDate {
			continue
		}
		f, ok := fields[spec.Name]
		if !ok || f.IsEmpty() {
			continue
		}
		raw := f.StringValue()
		res := dateparse.Resolve(raw, order)
		if res == nil {
			fields[spec.Name] = entity.ExtractedField{
				Value:      nil,
				Confidence: 0,
				Source:     f.Source,
				RawText:    raw,
			}
			issues = append(issues, entity.Issue{
				Field:    spec.Name,
				Severity: entity.SeverityWarning,
				Type:     "unresolved_date",
				Message:  fmt.Sprintf("no valid calendar date reading for %q", raw),
			})
			continue
		}
		conf := f.Confidence
		if res.Confidence < conf {
			conf = res.Confidence
		}
		fields[spec.Name] = entity.ExtractedField{
			Value:      res.ISO,
			Confidence: conf,
			Source:     f.Source,
			RawText:    raw,
		}
	}
	return issues
}

func bandCounts(fields map[string]entity.ExtractedField) map[string]int {
	counts := map[string]int{BandHigh: 0, BandMedium: 0, BandLow: 0}
	for _, f := range fields {
		counts[band(f.Confidence)]++
	}
	return counts
}

func normalizeValue(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func modelName(m ModelExtractor) string {
	if m == nil {
		return "rules-only"
	}
	type named interface{ ModelName() string }
	if n, ok := m.(named); ok {
		return n.ModelName()
	}
	return "unknown"
}
