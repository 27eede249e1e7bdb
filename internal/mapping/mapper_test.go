package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

func testSchema(t *testing.T) schema.CategorySchema {
	t.Helper()
	return schema.CategorySchema{
		Fields: []schema.FieldSpec{
			{Name: "full_name", Type: schema.TypeText, Aliases: []string{"name", "holder_name"}},
			{Name: "date_of_birth", Type: schema.TypeDate, Aliases: []string{"dob", "birth_date"}},
			{Name: "passport_number", Type: schema.TypeText, Aliases: []string{"document_number"}},
			{Name: "employee_id", Type: schema.TypeText},
			{Name: "employer_id", Type: schema.TypeText},
		},
	}
}

func field(value string, conf int) entity.ExtractedField {
	return entity.ExtractedField{Value: value, Confidence: conf, Source: entity.SourceModelInferred}
}

func TestMapExactTier(t *testing.T) {
	m := NewMapper(Config{}, nil)
	fields := map[string]entity.ExtractedField{
		"full_name": field("JOHN SMITH", 90),
	}
	target := schema.TargetSchema{{Name: "Full Name", Type: schema.TypeText}}

	res := m.Map(fields, target, testSchema(t))
	require.Contains(t, res.Mapped, "Full Name")
	assert.Equal(t, 90, res.Mapped["Full Name"].Confidence)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, entity.TierExact, res.Assignments[0].Tier)
	assert.Equal(t, "full_name", res.Assignments[0].SourceField)
	assert.Empty(t, res.UnmappedSources)
	assert.Empty(t, res.UnmappedTargets)
}

func TestMapAliasTier(t *testing.T) {
	m := NewMapper(Config{}, nil)
	fields := map[string]entity.ExtractedField{
		"dob": field("1990-12-25", 80),
	}
	target := schema.TargetSchema{{Name: "birth_date", Type: schema.TypeDate}}

	res := m.Map(fields, target, testSchema(t))
	require.Contains(t, res.Mapped, "birth_date")
	// alias tier scales by 0.95
	assert.Equal(t, 76, res.Mapped["birth_date"].Confidence)
	assert.Equal(t, entity.TierAlias, res.Assignments[0].Tier)
}

func TestMapConflictKeepsHigherConfidence(t *testing.T) {
	// Two sources canonicalize to the same target. The stronger extraction
	// wins, not the one that happens to sort first.
	m := NewMapper(Config{}, nil)
	fields := map[string]entity.ExtractedField{
		"birth_date": field("1985-03-04", 60),
		"dob":        field("1985-04-03", 92),
	}
	target := schema.TargetSchema{{Name: "date_of_birth", Type: schema.TypeDate}}

	res := m.Map(fields, target, testSchema(t))
	require.Contains(t, res.Mapped, "date_of_birth")
	assert.Equal(t, "1985-04-03", res.Mapped["date_of_birth"].Value)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, "dob", res.Assignments[0].SourceField)
	// alias tier scales by 0.95
	assert.Equal(t, 87, res.Assignments[0].Confidence)
	assert.Equal(t, []string{"birth_date"}, res.UnmappedSources)
}

func TestMapFuzzyTier(t *testing.T) {
	m := NewMapper(Config{FuzzyThreshold: 0.85}, nil)
	fields := map[string]entity.ExtractedField{
		"passport_numbr": field("X1234567", 100),
	}
	target := schema.TargetSchema{{Name: "passport_number", Type: schema.TypeText}}

	res := m.Map(fields, target, testSchema(t))
	require.Contains(t, res.Mapped, "passport_number")

	a := res.Assignments[0]
	assert.Equal(t, entity.TierFuzzy, a.Tier)
	// fuzzy confidence is scaled by 0.7 * similarity, so it is always well
	// below the source confidence
	assert.Less(t, a.Confidence, 75)
	assert.Greater(t, a.Confidence, 0)
}

func TestMapNearMissStaysUnmapped(t *testing.T) {
	// employee_id and employer_id are one edit apart; a loose matcher would
	// cross-assign them. They must stay unmapped instead.
	m := NewMapper(Config{FuzzyThreshold: 0.95}, nil)
	fields := map[string]entity.ExtractedField{
		"employee_id": field("E-100", 95),
	}
	target := schema.TargetSchema{{Name: "employer_id", Type: schema.TypeText}}

	res := m.Map(fields, target, testSchema(t))
	assert.NotContains(t, res.Mapped, "employer_id")
	assert.Equal(t, []string{"employee_id"}, res.UnmappedSources)
	assert.Equal(t, []string{"employer_id"}, res.UnmappedTargets)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, entity.TierUnmatched, res.Assignments[0].Tier)
}

func TestMapTypeIncompatibleFuzzyBlocked(t *testing.T) {
	m := NewMapper(Config{FuzzyThreshold: 0.5}, nil)
	fields := map[string]entity.ExtractedField{
		"date_of_birth": field("1990-12-25", 90),
	}
	// Similar-ish name but a date source must not fuzzy-map onto a checkbox
	// target regardless of similarity.
	target := schema.TargetSchema{{Name: "date_of_birth_confirmed", Type: schema.TypeCheckbox}}

	res := m.Map(fields, target, testSchema(t))
	assert.NotContains(t, res.Mapped, "date_of_birth_confirmed")
	assert.Contains(t, res.UnmappedTargets, "date_of_birth_confirmed")
}

func TestMapEachSourceConsumedOnce(t *testing.T) {
	m := NewMapper(Config{}, nil)
	fields := map[string]entity.ExtractedField{
		"full_name": field("JOHN SMITH", 90),
	}
	target := schema.TargetSchema{
		{Name: "full_name", Type: schema.TypeText},
		{Name: "holder_name", Type: schema.TypeText},
	}

	res := m.Map(fields, target, testSchema(t))
	require.Contains(t, res.Mapped, "full_name")
	assert.NotContains(t, res.Mapped, "holder_name")
	assert.Contains(t, res.UnmappedTargets, "holder_name")
}

func TestScaleConfidence(t *testing.T) {
	assert.Equal(t, 100, scaleConfidence(100, entity.TierExact, 1))
	assert.Equal(t, 95, scaleConfidence(100, entity.TierAlias, 1))
	assert.Equal(t, 63, scaleConfidence(100, entity.TierFuzzy, 0.9))
	assert.Equal(t, 0, scaleConfidence(100, entity.TierUnmatched, 1))
}
