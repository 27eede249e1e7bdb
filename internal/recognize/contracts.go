package recognize

import (
	"context"
	"time"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/entity"
)

// Result is the recognizer output: raw text plus optional layout metadata.
type Result struct {
	Text       string
	Layout     []entity.LayoutHint
	Pages      int
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr" | "vision"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence int // 0-100, heuristic estimate unless the backend reports its own
}

// Recognizer turns document bytes into raw text. Backends are
// interchangeable: a pattern-based OCR engine or a vision-language model.
type Recognizer interface {
	Recognize(ctx context.Context, doc []byte, format constants.FileFormat) (Result, error)
}
