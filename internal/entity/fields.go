package entity

import "strings"

// FieldSource tags where an extracted value came from.
type FieldSource string

const (
	SourceRuleMatched   FieldSource = "rule_matched"
	SourceModelInferred FieldSource = "model_inferred"
	SourceOCRVerbatim   FieldSource = "ocr_verbatim"
)

// ExtractedField is one extracted scalar with calibrated confidence.
// Value is nil when the field was looked for but not found.
type ExtractedField struct {
	Value      any         `json:"value"`
	Confidence int         `json:"confidence"` // 0-100
	Source     FieldSource `json:"source"`
	RawText    string      `json:"raw_text,omitempty"`
}

// IsEmpty reports whether the field carries no usable value. Whitespace-only
// strings count as empty: OCR padding is not a value.
func (f ExtractedField) IsEmpty() bool {
	if f.Value == nil {
		return true
	}
	s, ok := f.Value.(string)
	return ok && strings.TrimSpace(s) == ""
}

// StringValue renders the value for display and form filling.
// Empty fields render as "", never as the literal "null".
func (f ExtractedField) StringValue() string {
	switch v := f.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return trimFloat(v)
	case int:
		return itoa(v)
	default:
		return ""
	}
}

// MatchTier is the matching strategy level that assigned a source field
// to a target field.
type MatchTier string

const (
	TierExact     MatchTier = "exact"
	TierAlias     MatchTier = "alias"
	TierFuzzy     MatchTier = "fuzzy"
	TierUnmatched MatchTier = "unmatched"
)

// MappingAssignment records one source-to-target field assignment.
type MappingAssignment struct {
	TargetField string    `json:"target_field"`
	SourceField string    `json:"source_field"`
	Value       any       `json:"value"`
	Confidence  int       `json:"confidence"`
	Tier        MatchTier `json:"tier"`
}
