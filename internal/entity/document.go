package entity

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docufill/constants"
)

// LayoutHint is optional positional metadata from recognition.
type LayoutHint struct {
	Text string  `json:"text"`
	Page int     `json:"page"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

// ProcessingError is one stage-fatal failure recorded on the state.
// The errors list is append-only.
type ProcessingError struct {
	Stage     constants.Stage `json:"stage"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// StageRecord is one audit-trail entry. History is append-only and is
// never rewritten: a retry appends a fresh record.
type StageRecord struct {
	Stage      constants.Stage `json:"stage"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Status     string          `json:"status"` // "ok" | "failed"
	RetryCount int             `json:"retry_count"`
}

// DocumentState is the unit of work threaded through the pipeline.
// A state is owned by exactly one worker for the duration of a stage call;
// stages return a transformed copy rather than mutating shared structure.
type DocumentState struct {
	DocumentID uuid.UUID          `json:"document_id"`
	Category   constants.Category `json:"category"`

	RawText     string       `json:"raw_text,omitempty"`
	LayoutHints []LayoutHint `json:"layout_hints,omitempty"`

	ExtractedFields  map[string]ExtractedField `json:"extracted_fields,omitempty"`
	ExtractionIssues []Issue                   `json:"extraction_issues,omitempty"`
	MappedFields     map[string]ExtractedField `json:"mapped_fields,omitempty"`
	Assignments      []MappingAssignment       `json:"assignments,omitempty"`
	UnmappedSources  []string                  `json:"unmapped_sources,omitempty"`
	UnmappedTargets  []string                  `json:"unmapped_targets,omitempty"`

	Quality  *QualityAssessment `json:"quality_assessment,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`

	Errors          []ProcessingError `json:"errors,omitempty"`
	RetryCount      int               `json:"retry_count"`
	CurrentStage    constants.Stage   `json:"current_stage"`
	CompletedStages []constants.Stage `json:"completed_stages,omitempty"`
	History         []StageRecord     `json:"agent_history,omitempty"`
}

// NewDocumentState creates the initial state for one document.
func NewDocumentState(id uuid.UUID, cat constants.Category) DocumentState {
	return DocumentState{
		DocumentID:   id,
		Category:     cat,
		CurrentStage: constants.StageRecognize,
	}
}

// Clone deep-copies the state so a stage can transform its own copy.
func (s DocumentState) Clone() DocumentState {
	out := s
	if s.LayoutHints != nil {
		out.LayoutHints = append([]LayoutHint(nil), s.LayoutHints...)
	}
	if s.ExtractedFields != nil {
		out.ExtractedFields = make(map[string]ExtractedField, len(s.ExtractedFields))
		for k, v := range s.ExtractedFields {
			out.ExtractedFields[k] = v
		}
	}
	if s.MappedFields != nil {
		out.MappedFields = make(map[string]ExtractedField, len(s.MappedFields))
		for k, v := range s.MappedFields {
			out.MappedFields[k] = v
		}
	}
	if s.Assignments != nil {
		out.Assignments = append([]MappingAssignment(nil), s.Assignments...)
	}
	out.ExtractionIssues = append([]Issue(nil), s.ExtractionIssues...)
	out.UnmappedSources = append([]string(nil), s.UnmappedSources...)
	out.UnmappedTargets = append([]string(nil), s.UnmappedTargets...)
	out.Warnings = append([]string(nil), s.Warnings...)
	out.Errors = append([]ProcessingError(nil), s.Errors...)
	out.CompletedStages = append([]constants.Stage(nil), s.CompletedStages...)
	out.History = append([]StageRecord(nil), s.History...)
	if s.Quality != nil {
		q := *s.Quality
		q.Issues = append([]Issue(nil), s.Quality.Issues...)
		out.Quality = &q
	}
	return out
}

// RecordError appends to the append-only error trail.
func (s *DocumentState) RecordError(stage constants.Stage, code, message string) {
	s.Errors = append(s.Errors, ProcessingError{
		Stage:     stage,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// RecordStage appends to the append-only audit trail.
func (s *DocumentState) RecordStage(rec StageRecord) {
	s.History = append(s.History, rec)
}

// MarkCompleted records a finished stage. Completed stages are monotonic:
// a stage is recorded at most once and never removed.
func (s *DocumentState) MarkCompleted(stage constants.Stage) {
	if s.HasCompleted(stage) {
		return
	}
	s.CompletedStages = append(s.CompletedStages, stage)
}

func (s *DocumentState) HasCompleted(stage constants.Stage) bool {
	for _, c := range s.CompletedStages {
		if c == stage {
			return true
		}
	}
	return false
}

// Warn appends a recoverable, non-fatal finding.
func (s *DocumentState) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
