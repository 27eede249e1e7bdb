package common

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/docufill/constants"
)

// ErrorCode classifies stage-fatal failures. Values are stable: they are
// persisted in the jobs ledger and drive recovery routing.
type ErrorCode string

const (
	ErrExtractionFailed         ErrorCode = "extraction_failed"
	ErrClassificationUncertain  ErrorCode = "classification_uncertain"
	ErrMappingUnresolved        ErrorCode = "mapping_unresolved"
	ErrValidationFailed         ErrorCode = "validation_failed"
	ErrUnsupportedForm          ErrorCode = "unsupported_form"
	ErrFillVerificationMismatch ErrorCode = "fill_verification_mismatch"
)

// StageError is a typed, stage-fatal failure. Recoverable field-level
// conditions are warnings on the document state, never a StageError.
type StageError struct {
	Stage   constants.Stage
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Code, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func NewStageError(stage constants.Stage, code ErrorCode, message string, cause error) *StageError {
	return &StageError{Stage: stage, Code: code, Message: message, Cause: cause}
}

func StageErrorf(stage constants.Stage, code ErrorCode, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsStageError unwraps err to a *StageError if one is in the chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate submission")
	ErrInternal     = errors.New("internal error")
)

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
