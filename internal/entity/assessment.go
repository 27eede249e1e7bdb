package entity

// Severity ranks a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one structural or cross-field validation finding.
type Issue struct {
	Field    string   `json:"field,omitempty"`
	Severity Severity `json:"severity"`
	Type     string   `json:"type"`
	Message  string   `json:"message"`
}

// QualityAssessment is the validator's verdict over mapped fields.
// NeedsHumanReview is independent of IsValid: a valid result can still
// be flagged for review on borderline confidence.
type QualityAssessment struct {
	IsValid          bool    `json:"is_valid"`
	OverallScore     int     `json:"overall_score"` // 0-100
	Issues           []Issue `json:"issues"`
	NeedsHumanReview bool    `json:"needs_human_review"`
}

// ErrorIssues returns the error-severity subset.
func (q QualityAssessment) ErrorIssues() []Issue {
	var out []Issue
	for _, is := range q.Issues {
		if is.Severity == SeverityError {
			out = append(out, is)
		}
	}
	return out
}

// HasWarnings reports whether any warning-severity issue is present.
func (q QualityAssessment) HasWarnings() bool {
	for _, is := range q.Issues {
		if is.Severity == SeverityWarning {
			return true
		}
	}
	return false
}
