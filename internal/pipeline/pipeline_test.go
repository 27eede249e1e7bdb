package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/extract"
	"github.com/joseph-ayodele/docufill/internal/fill"
	"github.com/joseph-ayodele/docufill/internal/recognize"
	"github.com/joseph-ayodele/docufill/internal/recovery"
	"github.com/joseph-ayodele/docufill/internal/schema"
	"github.com/joseph-ayodele/docufill/internal/validate"
)

type stubRecognizer struct {
	res recognize.Result
	err error
}

func (s *stubRecognizer) Recognize(context.Context, []byte, constants.FileFormat) (recognize.Result, error) {
	return s.res, s.err
}

type stubModel struct {
	fields map[string]entity.ExtractedField
}

func (s *stubModel) ExtractFields(context.Context, extract.Request) (map[string]entity.ExtractedField, []byte, error) {
	return s.fields, nil, nil
}

const passportText = "PASSPORT\n" +
	"Name: JOHN SMITH\n" +
	"Passport No: L898902C36\n" +
	"Date of Birth: 03/04/1985\n" +
	"Date of Expiry: 15/01/2030\n"

func passportTarget() schema.TargetSchema {
	return schema.TargetSchema{
		{Name: "full_name", Type: schema.TypeText, Required: true},
		{Name: "passport_number", Type: schema.TypeText, Required: true},
		{Name: "date_of_birth", Type: schema.TypeDate, Required: true},
		{Name: "expiry_date", Type: schema.TypeDate, Required: true},
	}
}

func passportTemplate() *fill.Template {
	return &fill.Template{
		Name:  "application",
		Sheet: "Form",
		Fields: []fill.TemplateField{
			{Name: "full_name", Kind: fill.KindText, Cell: "B2"},
			{Name: "passport_number", Kind: fill.KindText, Cell: "B3"},
			{Name: "date_of_birth", Kind: fill.KindDate, Cell: "B4"},
			{Name: "expiry_date", Kind: fill.KindDate, Cell: "B5"},
		},
	}
}

func newOrchestrator(t *testing.T, rec recognize.Recognizer, model extract.ModelExtractor) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		Recognizer: rec,
		Extractor:  extract.NewExtractor(model, nil),
		Validator:  validate.NewValidator(validate.Config{}, nil),
		Recovery:   recovery.NewController(3, nil),
		Filler:     fill.NewFiller(nil),
		Registry:   schema.DefaultRegistry(),
	}
}

func testInput(tmpl *fill.Template) Input {
	return Input{
		DocumentID: uuid.New(),
		Document:   []byte(passportText),
		Format:     constants.TXT,
		Category:   constants.Passport,
		Target:     passportTarget(),
		Template:   tmpl,
	}
}

func TestRunCompletesAndFills(t *testing.T) {
	rec := &stubRecognizer{res: recognize.Result{Text: passportText, Method: "pdf-text", Confidence: 95}}
	o := newOrchestrator(t, rec, nil)

	out := o.Run(context.Background(), testInput(passportTemplate()))
	require.Equal(t, constants.JobStatusCompleted, out.Status, "reason: %s", out.Reason)

	// Day-first locale for passports: 03/04 is the 3rd of April.
	assert.Equal(t, "1985-04-03", out.State.MappedFields["date_of_birth"].Value)
	assert.Equal(t, "2030-01-15", out.State.MappedFields["expiry_date"].Value)
	assert.Equal(t, "JOHN SMITH", out.State.MappedFields["full_name"].Value)

	assert.NotEmpty(t, out.Artifact)
	assert.ElementsMatch(t, []string{"full_name", "passport_number", "date_of_birth", "expiry_date"}, out.FilledFields)
	assert.True(t, out.State.HasCompleted(constants.StageFill))
	assert.True(t, out.State.HasCompleted(constants.StageFinalize))
	assert.Zero(t, out.State.RetryCount)
}

func TestRunMinimalFormCompletes(t *testing.T) {
	// A two-field form against a sparse document: validation judges what the
	// form asked for, not the full passport field set, so the absent passport
	// number and expiry date do not sink the result.
	rec := &stubRecognizer{res: recognize.Result{Text: "Name: JOHN SMITH\nDOB: 03/04/1985\n", Method: "pdf-text", Confidence: 95}}
	o := newOrchestrator(t, rec, nil)

	in := testInput(nil)
	in.Target = schema.TargetSchema{
		{Name: "full_name", Type: schema.TypeText},
		{Name: "date_of_birth", Type: schema.TypeDate},
	}

	out := o.Run(context.Background(), in)
	require.Equal(t, constants.JobStatusCompleted, out.Status, "reason: %s", out.Reason)
	assert.Equal(t, "JOHN SMITH", out.State.MappedFields["full_name"].Value)
	assert.Equal(t, "1985-04-03", out.State.MappedFields["date_of_birth"].Value)
	require.NotNil(t, out.State.Quality)
	assert.True(t, out.State.Quality.IsValid)
}

func TestRunRetriesThenEscalates(t *testing.T) {
	rec := &stubRecognizer{err: errors.New("ocr backend unreachable")}
	o := newOrchestrator(t, rec, nil)

	out := o.Run(context.Background(), testInput(passportTemplate()))
	assert.Equal(t, constants.JobStatusNeedsReview, out.Status)
	assert.Equal(t, 3, out.State.RetryCount, "retry budget is spent before escalation")
	// Every attempt leaves a trace in the append-only error trail.
	assert.Len(t, out.State.Errors, 4)
	assert.Empty(t, out.Artifact)
}

func TestRunEmptyRecognitionIsFailure(t *testing.T) {
	rec := &stubRecognizer{res: recognize.Result{Text: "", Method: "image-ocr"}}
	o := newOrchestrator(t, rec, nil)

	out := o.Run(context.Background(), testInput(nil))
	assert.Equal(t, constants.JobStatusNeedsReview, out.Status)
	require.NotEmpty(t, out.State.Errors)
	assert.Equal(t, string(constants.StageRecognize), string(out.State.Errors[0].Stage))
}

func TestRunWithoutTemplateSkipsFill(t *testing.T) {
	rec := &stubRecognizer{res: recognize.Result{Text: passportText, Method: "pdf-text"}}
	o := newOrchestrator(t, rec, nil)

	out := o.Run(context.Background(), testInput(nil))
	require.Equal(t, constants.JobStatusCompleted, out.Status, "reason: %s", out.Reason)
	assert.Empty(t, out.Artifact)
	assert.False(t, out.State.HasCompleted(constants.StageFill))
}

func TestRunValidButReviewSkipsFill(t *testing.T) {
	rec := &stubRecognizer{res: recognize.Result{Text: passportText, Method: "pdf-text"}}
	// The model adds a low-confidence reading; the result stays valid but the
	// quality gate routes it to a human, so the form is never auto-filled.
	model := &stubModel{fields: map[string]entity.ExtractedField{
		"nationality": {Value: "UTOPIAN", Confidence: 40, Source: entity.SourceModelInferred},
	}}
	o := newOrchestrator(t, rec, model)

	in := testInput(passportTemplate())
	in.Target = append(in.Target, schema.TargetField{Name: "nationality", Type: schema.TypeText})

	out := o.Run(context.Background(), in)
	assert.Equal(t, constants.JobStatusNeedsReview, out.Status)
	assert.Empty(t, out.Artifact)
	assert.False(t, out.State.HasCompleted(constants.StageFill))
	require.NotNil(t, out.State.Quality)
	assert.True(t, out.State.Quality.IsValid)
	assert.True(t, out.State.Quality.NeedsHumanReview)
}

func TestRunMappingUnresolvedRelaxesThreshold(t *testing.T) {
	rec := &stubRecognizer{res: recognize.Result{Text: passportText, Method: "pdf-text"}}
	o := newOrchestrator(t, rec, nil)

	// A required target name nothing extracted can satisfy: map fails, the
	// controller retries with a relaxed threshold, and the budget bounds it.
	in := testInput(nil)
	in.Target = schema.TargetSchema{
		{Name: "zzz_social_security_number", Type: schema.TypeText, Required: true},
	}

	out := o.Run(context.Background(), in)
	assert.Equal(t, constants.JobStatusNeedsReview, out.Status)
	assert.Equal(t, 3, out.State.RetryCount)
}

func TestEffectiveThreshold(t *testing.T) {
	o := &Orchestrator{FuzzyThreshold: 0.85}
	assert.InDelta(t, 0.85, o.effectiveThreshold(0), 1e-9)
	assert.InDelta(t, 0.82, o.effectiveThreshold(1), 1e-9)
	assert.InDelta(t, 0.79, o.effectiveThreshold(2), 1e-9)
	// Relaxation never drops below the floor.
	assert.InDelta(t, 0.75, o.effectiveThreshold(10), 1e-9)
}

func TestStageIndex(t *testing.T) {
	assert.Equal(t, 0, stageIndex(constants.StageRecognize))
	assert.Equal(t, 2, stageIndex(constants.StageMap))
	assert.Equal(t, 0, stageIndex(constants.StageFinalize), "unknown stages restart from the top")
}
