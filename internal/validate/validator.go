// Package validate runs structural and cross-field checks over mapped fields
// and decides whether a result is acceptable, needs human review, or must be
// retried.
package validate

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// Config holds review policy. Both thresholds are deployment policy and
// arrive from configuration.
type Config struct {
	ReviewFloor int // per-field confidence floor; below it forces review
	ReviewScore int // overall score below which review is forced
}

// Input is everything one assessment needs.
type Input struct {
	Mapped    map[string]entity.ExtractedField
	Extracted map[string]entity.ExtractedField
	Target    schema.TargetSchema
	Schema    schema.CategorySchema
	// Carried extraction findings (conflicts, unresolved dates) folded into
	// the assessment so nothing observed upstream is lost.
	Carried []entity.Issue
}

// Validator implements the quality gate.
type Validator struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewValidator(cfg Config, logger *slog.Logger) *Validator {
	if cfg.ReviewFloor <= 0 {
		cfg.ReviewFloor = 70
	}
	if cfg.ReviewScore <= 0 {
		cfg.ReviewScore = 75
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg, logger: logger, now: time.Now}
}

// Assess runs per-field checks then cross-field checks and applies the
// decision rule: isValid when no error-severity issue exists;
// needsHumanReview when invalid, or valid with warnings, or the overall
// score sits below the review threshold.
func (v *Validator) Assess(in Input) entity.QualityAssessment {
	issues := append([]entity.Issue(nil), in.Carried...)

	issues = append(issues, v.requiredFields(in)...)
	issues = append(issues, v.formatChecks(in)...)
	issues = append(issues, v.crossFieldChecks(in)...)
	issues = append(issues, v.confidenceFloor(in)...)

	score := v.overallScore(in.Mapped, issues)
	isValid := true
	hasWarning := false
	for _, is := range issues {
		switch is.Severity {
		case entity.SeverityError:
			isValid = false
		case entity.SeverityWarning:
			hasWarning = true
		}
	}

	assessment := entity.QualityAssessment{
		IsValid:          isValid,
		OverallScore:     score,
		Issues:           issues,
		NeedsHumanReview: !isValid || hasWarning || score < v.cfg.ReviewScore,
	}
	v.logger.Info("validate.assessed",
		"is_valid", assessment.IsValid,
		"score", assessment.OverallScore,
		"issues", len(assessment.Issues),
		"needs_review", assessment.NeedsHumanReview,
	)
	return assessment
}

// requiredFields checks presence for the category schema's required fields
// the target form asks for, and for required target fields that ended up
// unmapped. A category-required field no target field requests is the form's
// choice to omit, not an extraction failure: a name-and-birthdate form must
// not fail because a passport number was never asked for.
func (v *Validator) requiredFields(in Input) []entity.Issue {
	requested := map[string]struct{}{}
	for _, tf := range in.Target {
		requested[strings.ToLower(tf.Name)] = struct{}{}
	}
	wanted := func(spec schema.FieldSpec) bool {
		if _, ok := requested[strings.ToLower(spec.Name)]; ok {
			return true
		}
		for _, alias := range spec.Aliases {
			if _, ok := requested[strings.ToLower(alias)]; ok {
				return true
			}
		}
		return false
	}

	var issues []entity.Issue
	for _, spec := range in.Schema.Fields {
		if !spec.Required || !wanted(spec) {
			continue
		}
		f, ok := in.Extracted[spec.Name]
		if !ok || f.IsEmpty() {
			issues = append(issues, entity.Issue{
				Field:    spec.Name,
				Severity: entity.SeverityError,
				Type:     "missing_required",
				Message:  fmt.Sprintf("required field %q was not extracted", spec.Name),
			})
		}
	}
	for _, tf := range in.Target {
		if !tf.Required {
			continue
		}
		f, ok := in.Mapped[tf.Name]
		if !ok || f.IsEmpty() {
			issues = append(issues, entity.Issue{
				Field:    tf.Name,
				Severity: entity.SeverityError,
				Type:     "unmapped_required_target",
				Message:  fmt.Sprintf("required target field %q has no acceptable source", tf.Name),
			})
		}
	}
	return issues
}

var (
	reEmail  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	reDigits = regexp.MustCompile(`\D`)
	reISODay = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

func (v *Validator) formatChecks(in Input) []entity.Issue {
	var issues []entity.Issue
	for _, tf := range in.Target {
		f, ok := in.Mapped[tf.Name]
		if !ok || f.IsEmpty() {
			continue
		}
		val := f.StringValue()
		switch tf.Type {
		case schema.TypeDate:
			issues = append(issues, v.checkDate(tf.Name, val)...)
		case schema.TypeNumber:
			if _, err := strconv.ParseFloat(strings.ReplaceAll(val, ",", ""), 64); err != nil {
				issues = append(issues, formatIssue(tf.Name, "not a number: "+val))
			}
		case schema.TypeEmail:
			if !reEmail.MatchString(val) {
				issues = append(issues, formatIssue(tf.Name, "not a plausible email address"))
			}
		case schema.TypePhone:
			digits := reDigits.ReplaceAllString(val, "")
			if len(digits) < 7 || len(digits) > 15 {
				issues = append(issues, formatIssue(tf.Name, "not a plausible phone number"))
			}
		}
	}

	// Check-digit validation for structured IDs that declare an algorithm.
	for _, spec := range in.Schema.Fields {
		if spec.Checksum == "" {
			continue
		}
		f, ok := in.Extracted[spec.Name]
		if !ok || f.IsEmpty() {
			continue
		}
		if err := verifyChecksum(spec.Checksum, f.StringValue()); err != nil {
			issues = append(issues, entity.Issue{
				Field:    spec.Name,
				Severity: entity.SeverityError,
				Type:     "checksum_failed",
				Message:  err.Error(),
			})
		}
	}
	return issues
}

// checkDate validates format and plausibility: not in the future and not
// absurdly old.
func (v *Validator) checkDate(field, val string) []entity.Issue {
	if !reISODay.MatchString(val) {
		return []entity.Issue{formatIssue(field, "date is not ISO-8601: "+val)}
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return []entity.Issue{formatIssue(field, "invalid calendar date: "+val)}
	}
	now := v.now()
	// Expiry dates legitimately sit in the future; everything else should not.
	if !strings.Contains(field, "expir") && !strings.Contains(field, "valid") && t.After(now) {
		return []entity.Issue{formatIssue(field, "date is in the future: "+val)}
	}
	if t.Before(now.AddDate(-120, 0, 0)) {
		return []entity.Issue{formatIssue(field, "date is implausibly old: "+val)}
	}
	return nil
}

// crossFieldChecks runs consistency rules over the canonical extracted
// fields (schema-guided extraction keys them by schema name).
func (v *Validator) crossFieldChecks(in Input) []entity.Issue {
	var issues []entity.Issue
	issue := dateOf(in.Extracted, "issue_date")
	expiry := dateOf(in.Extracted, "expiry_date")
	dob := dateOf(in.Extracted, "date_of_birth")

	if issue != nil && expiry != nil && !issue.Before(*expiry) {
		issues = append(issues, entity.Issue{
			Field:    "issue_date",
			Severity: entity.SeverityError,
			Type:     "cross_field",
			Message:  "issue date does not precede expiry date",
		})
	}
	if dob != nil && issue != nil && !dob.Before(*issue) {
		issues = append(issues, entity.Issue{
			Field:    "date_of_birth",
			Severity: entity.SeverityError,
			Type:     "cross_field",
			Message:  "date of birth does not precede issue date",
		})
	}
	return issues
}

// confidenceFloor flags low-confidence fields. These are warnings: they do
// not invalidate the result, but they force human review.
func (v *Validator) confidenceFloor(in Input) []entity.Issue {
	var issues []entity.Issue
	for _, tf := range in.Target {
		f, ok := in.Mapped[tf.Name]
		if !ok || f.IsEmpty() {
			continue
		}
		if f.Confidence < v.cfg.ReviewFloor {
			issues = append(issues, entity.Issue{
				Field:    tf.Name,
				Severity: entity.SeverityWarning,
				Type:     "low_confidence",
				Message:  fmt.Sprintf("confidence %d below review floor %d", f.Confidence, v.cfg.ReviewFloor),
			})
		}
	}
	return issues
}

// overallScore aggregates mean mapped confidence with penalties per issue.
func (v *Validator) overallScore(mapped map[string]entity.ExtractedField, issues []entity.Issue) int {
	if len(mapped) == 0 {
		return 0
	}
	sum := 0
	for _, f := range mapped {
		sum += f.Confidence
	}
	score := sum / len(mapped)
	for _, is := range issues {
		if is.Severity == entity.SeverityError {
			score -= 15
		} else {
			score -= 5
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func formatIssue(field, msg string) entity.Issue {
	return entity.Issue{
		Field:    field,
		Severity: entity.SeverityError,
		Type:     "format",
		Message:  msg,
	}
}

func dateOf(fields map[string]entity.ExtractedField, name string) *time.Time {
	f, ok := fields[name]
	if !ok || f.IsEmpty() {
		return nil
	}
	t, err := time.Parse("2006-01-02", f.StringValue())
	if err != nil {
		return nil
	}
	return &t
}
