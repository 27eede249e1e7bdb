// Package pipeline drives one document through the processing state
// machine: recognize, extract, map, validate, fill, finalize. Failures
// route through the recovery controller, which may send the document back
// to a specific stage, escalate it to a human, or abandon it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/extract"
	"github.com/joseph-ayodele/docufill/internal/fill"
	"github.com/joseph-ayodele/docufill/internal/mapping"
	"github.com/joseph-ayodele/docufill/internal/recognize"
	"github.com/joseph-ayodele/docufill/internal/recovery"
	"github.com/joseph-ayodele/docufill/internal/schema"
	"github.com/joseph-ayodele/docufill/internal/validate"
)

// Input is one document to process.
type Input struct {
	DocumentID uuid.UUID
	Document   []byte
	Format     constants.FileFormat
	Category   constants.Category
	Target     schema.TargetSchema
	Template   *fill.Template // nil: extraction-only job, fill is skipped
}

// Outcome is the terminal result of a run. State carries the full
// append-only history and error trail for auditing.
type Outcome struct {
	Status       constants.JobStatus
	Reason       string
	State        entity.DocumentState
	Artifact     []byte
	FilledFields []string
}

// Orchestrator owns the stage table and the recovery loop.
type Orchestrator struct {
	Recognizer recognize.Recognizer
	Extractor  *extract.Extractor
	Validator  *validate.Validator
	Recovery   *recovery.Controller
	Filler     *fill.Filler
	Registry   *schema.Registry

	// FuzzyThreshold seeds the mapper; map retries relax it slightly so a
	// second attempt can resolve near-miss names the first pass rejected.
	FuzzyThreshold float64
	StageTimeout   time.Duration
	Logger         *slog.Logger

	// lastFill holds the most recent successful fill result so finalize can
	// attach the artifact to the outcome. A Run call chain is
	// single-threaded; callers wanting concurrency construct one
	// Orchestrator per worker.
	lastFill *fill.Result
}

// relaxStep is subtracted from the fuzzy threshold on each map retry,
// bounded below so retries never become reckless.
const (
	relaxStep      = 0.03
	relaxFloor     = 0.75
	defaultTimeout = 2 * time.Minute
)

// stageFunc executes one stage against a private copy of the state and
// returns the transformed copy. A non-nil StageError is stage-fatal.
type stageFunc func(ctx context.Context, in Input, st entity.DocumentState) (entity.DocumentState, *common.StageError)

// order is the happy-path stage sequence. Fill is skipped for jobs
// without a template and for valid-but-review outcomes.
var order = []constants.Stage{
	constants.StageRecognize,
	constants.StageExtract,
	constants.StageMap,
	constants.StageValidate,
	constants.StageFill,
}

// Run processes one document to a terminal status. The loop walks the
// stage sequence; each stage-fatal failure is routed through the recovery
// controller, which either points the loop back at a stage (bounded by the
// retry budget) or ends the run.
func (o *Orchestrator) Run(ctx context.Context, in Input) Outcome {
	logger := o.logger()
	stages := o.stageTable()

	st := entity.NewDocumentState(in.DocumentID, in.Category)
	logger.Info("pipeline.run.start",
		"document_id", in.DocumentID,
		"category", in.Category,
		"bytes", len(in.Document),
		"has_template", in.Template != nil,
	)

	idx := 0
	for idx < len(order) {
		stage := order[idx]

		if stage == constants.StageFill && o.skipFill(in, st) {
			idx++
			continue
		}

		next, serr := o.runStage(ctx, stages[stage], stage, in, st)
		if serr == nil {
			st = next
			st.MarkCompleted(stage)
			idx++
			continue
		}

		st = next
		st.RecordError(serr.Stage, string(serr.Code), serr.Message)

		action := o.Recovery.Decide(serr, st.RetryCount)
		switch action.Kind {
		case recovery.ActionRetry:
			st.RetryCount++
			idx = stageIndex(action.TargetStage)
			logger.Info("pipeline.run.retry",
				"document_id", in.DocumentID,
				"target_stage", action.TargetStage,
				"retry_count", st.RetryCount,
			)
		case recovery.ActionEscalate:
			return o.finalize(logger, in, st, constants.JobStatusNeedsReview, action.Reason)
		default:
			st.CurrentStage = constants.StageAbandon
			return o.finalize(logger, in, st, constants.JobStatusFailed, action.Reason)
		}
	}

	// Valid but flagged for review: the extraction is kept, the form is
	// not auto-filled.
	if st.Quality != nil && st.Quality.NeedsHumanReview {
		return o.finalize(logger, in, st, constants.JobStatusNeedsReview, "quality gate flagged the result for human review")
	}
	return o.finalize(logger, in, st, constants.JobStatusCompleted, "")
}

func (o *Orchestrator) stageTable() map[constants.Stage]stageFunc {
	return map[constants.Stage]stageFunc{
		constants.StageRecognize: o.recognizeStage,
		constants.StageExtract:   o.extractStage,
		constants.StageMap:       o.mapStage,
		constants.StageValidate:  o.validateStage,
		constants.StageFill:      o.fillStage,
	}
}

// runStage wraps one stage call with its timeout and audit record.
func (o *Orchestrator) runStage(ctx context.Context, fn stageFunc, stage constants.Stage, in Input, st entity.DocumentState) (entity.DocumentState, *common.StageError) {
	timeout := o.StageTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	work := st.Clone()
	work.CurrentStage = stage
	start := time.Now()

	out, serr := fn(sctx, in, work)
	if serr == nil && sctx.Err() != nil {
		serr = common.NewStageError(stage, common.ErrExtractionFailed, "stage deadline exceeded", sctx.Err())
	}
	if serr != nil && errors.Is(serr.Cause, context.DeadlineExceeded) {
		// Normalize timeouts so the recovery table sees one code.
		serr = common.NewStageError(stage, common.ErrExtractionFailed, serr.Message, serr.Cause)
	}

	status := "ok"
	if serr != nil {
		status = "failed"
	}
	out.RecordStage(entity.StageRecord{
		Stage:      stage,
		Start:      start.UTC(),
		End:        time.Now().UTC(),
		Status:     status,
		RetryCount: out.RetryCount,
	})
	o.logger().Info("pipeline.stage.done",
		"document_id", in.DocumentID,
		"stage", stage,
		"status", status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, serr
}

func (o *Orchestrator) recognizeStage(ctx context.Context, in Input, st entity.DocumentState) (entity.DocumentState, *common.StageError) {
	res, err := o.Recognizer.Recognize(ctx, in.Document, in.Format)
	if err != nil {
		return st, common.NewStageError(constants.StageRecognize, common.ErrExtractionFailed, "recognition backend failed", err)
	}
	if res.Text == "" {
		return st, common.StageErrorf(constants.StageRecognize, common.ErrExtractionFailed, "recognition produced no text (method %s)", res.Method)
	}
	st.RawText = res.Text
	st.LayoutHints = res.Layout
	for _, w := range res.Warnings {
		st.Warn(w)
	}
	return st, nil
}

func (o *Orchestrator) extractStage(ctx context.Context, in Input, st entity.DocumentState) (entity.DocumentState, *common.StageError) {
	cs := o.Registry.ForCategory(in.Category)
	req := extract.Request{
		Text:     st.RawText,
		Layout:   st.LayoutHints,
		Category: in.Category,
		Schema:   cs,
		Image:    imageBytes(in),
	}
	fields, meta, issues, serr := o.Extractor.Run(ctx, req)
	if serr != nil {
		return st, serr
	}
	st.ExtractedFields = fields
	st.ExtractionIssues = issues
	o.logger().Info("pipeline.extract.bands",
		"document_id", in.DocumentID,
		"model", meta.Model,
		"high", meta.BandCounts[extract.BandHigh],
		"medium", meta.BandCounts[extract.BandMedium],
		"low", meta.BandCounts[extract.BandLow],
	)
	return st, nil
}

func (o *Orchestrator) mapStage(_ context.Context, in Input, st entity.DocumentState) (entity.DocumentState, *common.StageError) {
	cs := o.Registry.ForCategory(in.Category)
	mapper := mapping.NewMapper(mapping.Config{FuzzyThreshold: o.effectiveThreshold(st.RetryCount)}, o.logger())
	res := mapper.Map(st.ExtractedFields, in.Target, cs)

	st.MappedFields = res.Mapped
	st.Assignments = res.Assignments
	st.UnmappedSources = res.UnmappedSources
	st.UnmappedTargets = res.UnmappedTargets

	if missing := requiredUnmapped(in.Target, res.Mapped); len(missing) > 0 {
		return st, common.StageErrorf(constants.StageMap, common.ErrMappingUnresolved,
			"required target fields unmapped: %v", missing)
	}
	for _, u := range res.UnmappedTargets {
		st.Warn(fmt.Sprintf("target field %q left unmapped", u))
	}
	return st, nil
}

func (o *Orchestrator) validateStage(_ context.Context, in Input, st entity.DocumentState) (entity.DocumentState, *common.StageError) {
	qa := o.Validator.Assess(validate.Input{
		Mapped:    st.MappedFields,
		Extracted: st.ExtractedFields,
		Target:    in.Target,
		Schema:    o.Registry.ForCategory(in.Category),
		Carried:   st.ExtractionIssues,
	})
	st.Quality = &qa
	if !qa.IsValid {
		return st, common.StageErrorf(constants.StageValidate, common.ErrValidationFailed,
			"quality gate rejected the result: %d error issues, score %d", len(qa.ErrorIssues()), qa.OverallScore)
	}
	return st, nil
}

func (o *Orchestrator) fillStage(_ context.Context, in Input, st entity.DocumentState) (entity.DocumentState, *common.StageError) {
	res, serr := o.Filler.Fill(in.Template, st.MappedFields)
	if serr != nil {
		return st, serr
	}
	for _, w := range res.Warnings {
		st.Warn(w)
	}
	// Artifact and filled field list ride on the outcome, not the state.
	o.lastFill = &res
	return st, nil
}

func (o *Orchestrator) finalize(logger *slog.Logger, in Input, st entity.DocumentState, status constants.JobStatus, reason string) Outcome {
	st.CurrentStage = constants.StageFinalize
	st.MarkCompleted(constants.StageFinalize)

	out := Outcome{Status: status, Reason: reason, State: st}
	if o.lastFill != nil && st.HasCompleted(constants.StageFill) {
		out.Artifact = o.lastFill.Artifact
		out.FilledFields = o.lastFill.FilledFields
	}
	logger.Info("pipeline.run.done",
		"document_id", in.DocumentID,
		"status", status,
		"retry_count", st.RetryCount,
		"warnings", len(st.Warnings),
		"errors", len(st.Errors),
	)
	return out
}

func (o *Orchestrator) skipFill(in Input, st entity.DocumentState) bool {
	if in.Template == nil {
		return true
	}
	// Valid but review-flagged results are never auto-filled.
	return st.Quality != nil && st.Quality.NeedsHumanReview
}

func (o *Orchestrator) effectiveThreshold(retryCount int) float64 {
	t := o.FuzzyThreshold
	if t <= 0 {
		t = mapping.DefaultFuzzyThreshold
	}
	t -= relaxStep * float64(retryCount)
	if t < relaxFloor {
		t = relaxFloor
	}
	return t
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func requiredUnmapped(target schema.TargetSchema, mapped map[string]entity.ExtractedField) []string {
	var missing []string
	for _, tf := range target {
		if !tf.Required {
			continue
		}
		if _, ok := mapped[tf.Name]; !ok {
			missing = append(missing, tf.Name)
		}
	}
	return missing
}

func imageBytes(in Input) []byte {
	if in.Format == constants.IMAGE {
		return in.Document
	}
	return nil
}

func stageIndex(stage constants.Stage) int {
	for i, s := range order {
		if s == stage {
			return i
		}
	}
	return 0
}
