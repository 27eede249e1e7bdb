package extract

import (
	"context"
	"time"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/entity"
	"github.com/joseph-ayodele/docufill/internal/schema"
)

// Request carries everything the extractor needs for one document.
// Extraction is schema-guided: Schema fixes the candidate field names.
type Request struct {
	Text     string
	Layout   []entity.LayoutHint
	Category constants.Category
	Schema   schema.CategorySchema
	Image    []byte // optional, forwarded to vision-capable backends
}

// Metadata describes one extraction run.
type Metadata struct {
	Model      string
	Elapsed    time.Duration
	BandCounts map[string]int // "high" | "medium" | "low"
}

// ModelExtractor is the model-based pass: free text -> typed fields.
// Implementations must fail with an error on backend trouble, never
// fabricate an empty-but-successful result.
type ModelExtractor interface {
	ExtractFields(ctx context.Context, req Request) (map[string]entity.ExtractedField, []byte /*rawJSON*/, error)
}

// Confidence bands used in extraction metadata.
const (
	BandHigh   = "high"   // >= 85
	BandMedium = "medium" // 60..84
	BandLow    = "low"    // < 60
)

func band(confidence int) string {
	switch {
	case confidence >= 85:
		return BandHigh
	case confidence >= 60:
		return BandMedium
	default:
		return BandLow
	}
}
