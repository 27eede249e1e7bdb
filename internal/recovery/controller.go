// Package recovery decides what happens after a stage-fatal failure:
// retry a specific upstream stage, escalate to human review, or abandon.
package recovery

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
)

// ActionKind enumerates the controller's verdicts.
type ActionKind string

const (
	ActionRetry    ActionKind = "retry"
	ActionEscalate ActionKind = "escalate"
	ActionAbandon  ActionKind = "abandon"
)

// Action is the controller's decision for one failure.
type Action struct {
	Kind        ActionKind
	TargetStage constants.Stage // set for retries
	Reason      string
}

// Controller is a pure decision table over (error code, retry count).
type Controller struct {
	MaxRetries int
	Logger     *slog.Logger
}

func NewController(maxRetries int, logger *slog.Logger) *Controller {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{MaxRetries: maxRetries, Logger: logger}
}

// Decide routes a typed failure. Retries always target the specific stage
// the failure originated from, never "everything from the top", and are
// bounded: exhausting the budget escalates, it never silently succeeds.
func (c *Controller) Decide(serr *common.StageError, retryCount int) Action {
	if retryCount >= c.MaxRetries {
		a := Action{
			Kind:   ActionEscalate,
			Reason: fmt.Sprintf("retry budget exhausted after %d attempts; last failure at %s: %s", retryCount, serr.Stage, serr.Message),
		}
		c.log(serr, retryCount, a)
		return a
	}

	var a Action
	switch serr.Code {
	case common.ErrExtractionFailed:
		// Retry whichever backend stage failed (recognize or extract).
		a = Action{Kind: ActionRetry, TargetStage: serr.Stage,
			Reason: "backend failure is transient until proven otherwise"}
	case common.ErrMappingUnresolved:
		a = Action{Kind: ActionRetry, TargetStage: constants.StageMap,
			Reason: "re-map with relaxed strategy"}
	case common.ErrValidationFailed:
		if retryCount == 0 {
			// One fresh extraction may clear a structural failure; after
			// that the document itself is the problem.
			a = Action{Kind: ActionRetry, TargetStage: constants.StageExtract,
				Reason: "re-extract once before involving a human"}
		} else {
			a = Action{Kind: ActionEscalate,
				Reason: fmt.Sprintf("validation still failing after re-extraction: %s", serr.Message)}
		}
	case common.ErrFillVerificationMismatch:
		a = Action{Kind: ActionRetry, TargetStage: constants.StageFill,
			Reason: "re-fill and re-verify the artifact"}
	case common.ErrClassificationUncertain:
		a = Action{Kind: ActionEscalate,
			Reason: fmt.Sprintf("document category too uncertain to proceed: %s", serr.Message)}
	case common.ErrUnsupportedForm:
		a = Action{Kind: ActionAbandon,
			Reason: fmt.Sprintf("form template cannot be filled: %s", serr.Message)}
	default:
		a = Action{Kind: ActionAbandon,
			Reason: fmt.Sprintf("unrecoverable failure at %s: %s", serr.Stage, serr.Message)}
	}

	c.log(serr, retryCount, a)
	return a
}

func (c *Controller) log(serr *common.StageError, retryCount int, a Action) {
	c.Logger.Info("recovery.decide",
		"stage", serr.Stage,
		"code", serr.Code,
		"retry_count", retryCount,
		"action", a.Kind,
		"target_stage", a.TargetStage,
	)
}
