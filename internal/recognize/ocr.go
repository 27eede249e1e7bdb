package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/entity"
)

// Config for the pattern-based OCR backend.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	TessdataDir   string

	ArtifactCacheDir string
}

// OCRRecognizer shells out to poppler/tesseract. It implements Recognizer.
type OCRRecognizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewOCRRecognizer(cfg Config, logger *slog.Logger) *OCRRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = "./tmp"
	}
	return &OCRRecognizer{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Recognize picks a strategy based on the input format.
func (r *OCRRecognizer) Recognize(ctx context.Context, doc []byte, format constants.FileFormat) (Result, error) {
	start := time.Now()
	r.logger.Debug("ocr.recognize.start", "format", format, "bytes", len(doc))

	if format == constants.TXT {
		txt := string(doc)
		return Result{
			Text:       txt,
			Pages:      1,
			Method:     "verbatim",
			Language:   r.cfg.TesseractLang,
			Duration:   time.Since(start),
			Confidence: estimateConfidence(txt),
		}, nil
	}

	path, cleanup, err := r.stash(doc, format)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	var res Result
	switch format {
	case constants.PDF:
		res, err = r.recognizePDF(ctx, path)
	case constants.IMAGE:
		res, err = r.recognizeImage(ctx, path)
	default:
		return Result{}, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return Result{}, err
	}

	res.Language = r.cfg.TesseractLang
	res.Duration = time.Since(start)
	if res.Confidence == 0 {
		res.Confidence = estimateConfidence(res.Text)
	}
	r.logger.Info("ocr.recognize.ok",
		"method", res.Method,
		"pages", res.Pages,
		"text_bytes", len(res.Text),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// recognizePDF tries the embedded text layer first, then rasterizes and OCRs.
func (r *OCRRecognizer) recognizePDF(ctx context.Context, path string) (Result, error) {
	out, _, err := r.runner.Run(ctx, r.cfg.Pdftotext, "-layout", path, "-")
	if err == nil && len(strings.TrimSpace(string(out))) > 0 {
		return Result{Text: string(out), Pages: 1, Method: "pdf-text"}, nil
	}

	// No text layer: rasterize pages then OCR each one.
	prefix := filepath.Join(filepath.Dir(path), "page")
	if _, _, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-png", "-r", strconv.Itoa(r.cfg.DPI), path, prefix); err != nil {
		return Result{}, fmt.Errorf("pdftoppm: %w", err)
	}
	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(pages) == 0 {
		return Result{}, fmt.Errorf("rasterize pdf: no pages produced")
	}

	var sb strings.Builder
	var layout []entity.LayoutHint
	for i, page := range pages {
		pr, err := r.tesseract(ctx, page, i+1)
		if err != nil {
			return Result{}, err
		}
		sb.WriteString(pr.Text)
		sb.WriteString("\n")
		layout = append(layout, pr.Layout...)
	}
	return Result{Text: sb.String(), Layout: layout, Pages: len(pages), Method: "pdf-ocr"}, nil
}

func (r *OCRRecognizer) recognizeImage(ctx context.Context, path string) (Result, error) {
	pr, err := r.tesseract(ctx, path, 1)
	if err != nil {
		return Result{}, err
	}
	pr.Pages = 1
	pr.Method = "image-ocr"
	return pr, nil
}

// tesseract runs one page through tesseract TSV output, which carries both
// word boxes (layout hints) and per-word confidence.
func (r *OCRRecognizer) tesseract(ctx context.Context, path string, page int) (Result, error) {
	args := []string{path, "stdout", "-l", r.cfg.TesseractLang, "tsv"}
	if r.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
	}
	out, _, err := r.runner.Run(ctx, r.cfg.Tesseract, args...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w", err)
	}
	text, layout, conf := parseTSV(string(out), page)
	return Result{Text: text, Layout: layout, Confidence: conf}, nil
}

// parseTSV reassembles line text and word boxes from tesseract TSV output.
// Returns the text, the layout hints, and the mean word confidence (0-100).
func parseTSV(tsv string, page int) (string, []entity.LayoutHint, int) {
	var (
		sb       strings.Builder
		layout   []entity.LayoutHint
		confSum  int
		confN    int
		lastLine = -1
	)
	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 { // header
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		lineNum, _ := strconv.Atoi(cols[4])
		if lastLine != -1 && lineNum != lastLine {
			sb.WriteString("\n")
		} else if lastLine != -1 {
			sb.WriteString(" ")
		}
		lastLine = lineNum
		sb.WriteString(word)

		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])
		layout = append(layout, entity.LayoutHint{
			Text: word,
			Page: page,
			X0:   float64(left),
			Y0:   float64(top),
			X1:   float64(left + width),
			Y1:   float64(top + height),
		})
		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			confSum += int(conf)
			confN++
		}
	}
	mean := 0
	if confN > 0 {
		mean = confSum / confN
	}
	return sb.String(), layout, mean
}

// stash writes the document bytes into the artifact cache so the external
// tools can read them. The caller must invoke cleanup.
func (r *OCRRecognizer) stash(doc []byte, format constants.FileFormat) (string, func(), error) {
	dir := filepath.Join(r.cfg.ArtifactCacheDir, uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("artifact cache: %w", err)
	}
	ext := "pdf"
	if format == constants.IMAGE {
		ext = "png"
	}
	path := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("artifact cache: %w", err)
	}
	return path, func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("artifact cleanup failed", "dir", dir, "error", err)
		}
	}, nil
}
