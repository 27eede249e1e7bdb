package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v := NewValidator(Config{ReviewFloor: 70, ReviewScore: 75}, nil)
	v.now = func() time.Time {
		return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	}
	return v
}

func passportSchema() schema.CategorySchema {
	return schema.CategorySchema{
		Fields: []schema.FieldSpec{
			{Name: "full_name", Type: schema.TypeText, Required: true},
			{Name: "passport_number", Type: schema.TypeText, Required: true, Checksum: "icao9303"},
			{Name: "date_of_birth", Type: schema.TypeDate, Required: true},
			{Name: "issue_date", Type: schema.TypeDate},
			{Name: "expiry_date", Type: schema.TypeDate, Required: true},
		},
	}
}

func goodExtraction() map[string]entity.ExtractedField {
	return map[string]entity.ExtractedField{
		"full_name":       {Value: "JOHN SMITH", Confidence: 92, Source: entity.SourceRuleMatched},
		"passport_number": {Value: "L898902C36", Confidence: 95, Source: entity.SourceRuleMatched},
		"date_of_birth":   {Value: "1985-04-03", Confidence: 90, Source: entity.SourceModelInferred},
		"issue_date":      {Value: "2020-01-15", Confidence: 88, Source: entity.SourceModelInferred},
		"expiry_date":     {Value: "2030-01-15", Confidence: 88, Source: entity.SourceModelInferred},
	}
}

func targetOf(extracted map[string]entity.ExtractedField, sch schema.CategorySchema) (schema.TargetSchema, map[string]entity.ExtractedField) {
	var target schema.TargetSchema
	mapped := map[string]entity.ExtractedField{}
	for _, spec := range sch.Fields {
		target = append(target, schema.TargetField{Name: spec.Name, Type: spec.Type, Required: spec.Required})
		if f, ok := extracted[spec.Name]; ok {
			mapped[spec.Name] = f
		}
	}
	return target, mapped
}

func TestAssessHappyPath(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction()
	target, mapped := targetOf(extracted, passportSchema())

	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema()})
	assert.True(t, qa.IsValid)
	assert.False(t, qa.NeedsHumanReview)
	assert.GreaterOrEqual(t, qa.OverallScore, 75)
	assert.Empty(t, qa.Issues)
}

func TestAssessMissingRequired(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction()
	delete(extracted, "full_name")
	target, mapped := targetOf(extracted, passportSchema())

	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema()})
	assert.False(t, qa.IsValid)
	assert.True(t, qa.NeedsHumanReview)

	require.NotEmpty(t, qa.ErrorIssues())
	types := map[string]bool{}
	for _, is := range qa.ErrorIssues() {
		types[is.Type] = true
	}
	assert.True(t, types["missing_required"])
	assert.True(t, types["unmapped_required_target"])
}

func TestAssessRequiredScopedToTargetForm(t *testing.T) {
	// A form asking only for name and birth date must validate on those two
	// fields alone; the passport schema's other required fields were never
	// requested and must not count against the document.
	v := newTestValidator(t)
	extracted := map[string]entity.ExtractedField{
		"full_name":     {Value: "JOHN SMITH", Confidence: 88, Source: entity.SourceRuleMatched},
		"date_of_birth": {Value: "1985-04-03", Confidence: 86, Source: entity.SourceRuleMatched},
	}
	target := schema.TargetSchema{
		{Name: "full_name", Type: schema.TypeText, Required: true},
		{Name: "date_of_birth", Type: schema.TypeDate, Required: true},
	}

	qa := v.Assess(Input{Mapped: extracted, Extracted: extracted, Target: target, Schema: passportSchema()})
	assert.True(t, qa.IsValid)
	assert.Empty(t, qa.Issues)
	assert.False(t, qa.NeedsHumanReview)
}

func TestAssessRequiredViaTargetAlias(t *testing.T) {
	// A target field named by a schema alias still pulls the canonical
	// required check in: asking for "dob" means date_of_birth must exist.
	v := newTestValidator(t)
	extracted := map[string]entity.ExtractedField{
		"full_name": {Value: "JOHN SMITH", Confidence: 88, Source: entity.SourceRuleMatched},
	}
	target := schema.TargetSchema{
		{Name: "full_name", Type: schema.TypeText, Required: true},
		{Name: "dob", Type: schema.TypeDate},
	}

	qa := v.Assess(Input{Mapped: extracted, Extracted: extracted, Target: target, Schema: passportSchema()})
	assert.False(t, qa.IsValid)

	found := false
	for _, is := range qa.Issues {
		if is.Type == "missing_required" && is.Field == "date_of_birth" {
			found = true
		}
	}
	assert.True(t, found, "requested-by-alias required field must be checked")
}

func TestAssessFutureDate(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction()
	extracted["date_of_birth"] = entity.ExtractedField{Value: "2030-01-01", Confidence: 90}
	target, mapped := targetOf(extracted, passportSchema())

	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema()})
	assert.False(t, qa.IsValid)

	found := false
	for _, is := range qa.Issues {
		if is.Field == "date_of_birth" && is.Type == "format" {
			found = true
		}
	}
	assert.True(t, found, "future birth date must be a format error")
}

func TestAssessExpiryInFutureAllowed(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction() // expiry_date 2030-01-15
	target, mapped := targetOf(extracted, passportSchema())

	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema()})
	for _, is := range qa.Issues {
		assert.NotEqual(t, "expiry_date", is.Field)
	}
}

func TestAssessChecksum(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction()
	extracted["passport_number"] = entity.ExtractedField{Value: "L898902C35", Confidence: 95}
	target, mapped := targetOf(extracted, passportSchema())

	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema()})
	assert.False(t, qa.IsValid)

	found := false
	for _, is := range qa.Issues {
		if is.Type == "checksum_failed" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestChecksumSkipsShortValues(t *testing.T) {
	// Human-readable passport numbers carry no check digit; only the full
	// 10-character MRZ form is validated.
	assert.NoError(t, verifyChecksum("icao9303", "X1234567"))
	assert.NoError(t, verifyChecksum("icao9303", "L898902C36"))
	assert.Error(t, verifyChecksum("icao9303", "L898902C35"))
}

func TestAssessCrossFieldOrder(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction()
	extracted["issue_date"] = entity.ExtractedField{Value: "2031-01-15", Confidence: 88}
	target, mapped := targetOf(extracted, passportSchema())

	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema()})
	assert.False(t, qa.IsValid)

	found := false
	for _, is := range qa.Issues {
		if is.Type == "cross_field" && is.Field == "issue_date" {
			found = true
		}
	}
	assert.True(t, found, "issue after expiry must fail the cross-field check")
}

func TestAssessLowConfidenceForcesReview(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction()
	extracted["full_name"] = entity.ExtractedField{Value: "JOHN SMITH", Confidence: 55}
	target, mapped := targetOf(extracted, passportSchema())

	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema()})
	// Low confidence is a warning, not an error: the result stays valid but
	// is routed to a human.
	assert.True(t, qa.IsValid)
	assert.True(t, qa.NeedsHumanReview)
	assert.True(t, qa.HasWarnings())
}

func TestAssessCarriedIssuesFoldIn(t *testing.T) {
	v := newTestValidator(t)
	extracted := goodExtraction()
	target, mapped := targetOf(extracted, passportSchema())

	carried := []entity.Issue{{
		Field:    "full_name",
		Severity: entity.SeverityWarning,
		Type:     "extraction_conflict",
		Message:  "rule and model passes disagree",
	}}
	qa := v.Assess(Input{Mapped: mapped, Extracted: extracted, Target: target, Schema: passportSchema(), Carried: carried})
	assert.True(t, qa.IsValid)
	assert.True(t, qa.NeedsHumanReview)
	require.Len(t, qa.Issues, 1)
	assert.Equal(t, "extraction_conflict", qa.Issues[0].Type)
}
