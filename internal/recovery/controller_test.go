package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
)

func stageErr(stage constants.Stage, code common.ErrorCode) *common.StageError {
	return common.StageErrorf(stage, code, "boom")
}

func TestDecideBudgetExhausted(t *testing.T) {
	c := NewController(3, nil)

	// Exhaustion wins over every per-code rule, including ones that would
	// otherwise retry.
	for _, code := range []common.ErrorCode{
		common.ErrExtractionFailed,
		common.ErrMappingUnresolved,
		common.ErrFillVerificationMismatch,
	} {
		a := c.Decide(stageErr(constants.StageExtract, code), 3)
		assert.Equal(t, ActionEscalate, a.Kind, "code %s", code)
	}
}

func TestDecideExtractionFailedRetriesOriginStage(t *testing.T) {
	c := NewController(3, nil)

	a := c.Decide(stageErr(constants.StageRecognize, common.ErrExtractionFailed), 0)
	assert.Equal(t, ActionRetry, a.Kind)
	assert.Equal(t, constants.StageRecognize, a.TargetStage)

	a = c.Decide(stageErr(constants.StageExtract, common.ErrExtractionFailed), 2)
	assert.Equal(t, ActionRetry, a.Kind)
	assert.Equal(t, constants.StageExtract, a.TargetStage)
}

func TestDecideMappingUnresolved(t *testing.T) {
	c := NewController(3, nil)
	a := c.Decide(stageErr(constants.StageMap, common.ErrMappingUnresolved), 1)
	assert.Equal(t, ActionRetry, a.Kind)
	assert.Equal(t, constants.StageMap, a.TargetStage)
}

func TestDecideValidationFailedRetriesOnce(t *testing.T) {
	c := NewController(3, nil)

	a := c.Decide(stageErr(constants.StageValidate, common.ErrValidationFailed), 0)
	assert.Equal(t, ActionRetry, a.Kind)
	assert.Equal(t, constants.StageExtract, a.TargetStage)

	a = c.Decide(stageErr(constants.StageValidate, common.ErrValidationFailed), 1)
	assert.Equal(t, ActionEscalate, a.Kind)
}

func TestDecideFillMismatchRetriesFill(t *testing.T) {
	c := NewController(3, nil)
	a := c.Decide(stageErr(constants.StageFill, common.ErrFillVerificationMismatch), 0)
	assert.Equal(t, ActionRetry, a.Kind)
	assert.Equal(t, constants.StageFill, a.TargetStage)
}

func TestDecideClassificationUncertainEscalates(t *testing.T) {
	c := NewController(3, nil)
	a := c.Decide(stageErr(constants.StageRecognize, common.ErrClassificationUncertain), 0)
	assert.Equal(t, ActionEscalate, a.Kind)
}

func TestDecideUnsupportedFormAbandons(t *testing.T) {
	c := NewController(3, nil)
	a := c.Decide(stageErr(constants.StageFill, common.ErrUnsupportedForm), 0)
	assert.Equal(t, ActionAbandon, a.Kind)
}

func TestDecideUnknownCodeAbandons(t *testing.T) {
	c := NewController(3, nil)
	a := c.Decide(stageErr(constants.StageExtract, common.ErrorCode("disk_on_fire")), 0)
	assert.Equal(t, ActionAbandon, a.Kind)
}

func TestNewControllerDefaults(t *testing.T) {
	c := NewController(0, nil)
	assert.Equal(t, 3, c.MaxRetries)
	assert.NotNil(t, c.Logger)
}
