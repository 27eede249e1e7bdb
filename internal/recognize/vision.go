package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/docufill/constants"
)

// VisionConfig for the vision-language recognition backend.
type VisionConfig struct {
	BaseURL     string // default https://api.openai.com/v1
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	RateLimit   float64 // requests per second; 0 disables limiting
}

// VisionRecognizer transcribes a document image through a vision-language
// model. It implements Recognizer and is interchangeable with the OCR backend.
type VisionRecognizer struct {
	cfg     VisionConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewVisionRecognizer(cfg VisionConfig, logger *slog.Logger) *VisionRecognizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &VisionRecognizer{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

const visionPrompt = "Transcribe every piece of text visible in this document image. " +
	"Preserve the reading order and line breaks. Keep label: value lines together. " +
	"Output the raw text only, no commentary."

func (v *VisionRecognizer) Recognize(ctx context.Context, doc []byte, format constants.FileFormat) (Result, error) {
	rid := uuid.New().String()
	start := time.Now()

	if format == constants.TXT {
		txt := string(doc)
		return Result{Text: txt, Pages: 1, Method: "verbatim", Duration: time.Since(start), Confidence: estimateConfidence(txt)}, nil
	}
	if format != constants.IMAGE {
		return Result{}, fmt.Errorf("vision backend supports images only, got %s", format)
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit wait: %w", err)
	}

	v.logger.Info("vision.recognize.start", "req_id", rid, "model", v.cfg.Model, "bytes", len(doc))

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(doc)
	body := map[string]any{
		"model":       v.cfg.Model,
		"temperature": v.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": visionPrompt},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
		},
	}

	raw, err := v.post(ctx, strings.TrimRight(v.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		v.logger.Error("vision.recognize.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return Result{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return Result{}, fmt.Errorf("decode vision response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return Result{}, fmt.Errorf("no choices in vision response")
	}
	text := strings.TrimSpace(cc.Choices[0].Message.Content)

	res := Result{
		Text:       text,
		Pages:      1,
		Method:     "vision",
		Duration:   time.Since(start),
		Confidence: estimateConfidence(text),
	}
	v.logger.Info("vision.recognize.ok", "req_id", rid,
		"text_bytes", len(text), "confidence", res.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (v *VisionRecognizer) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			v.logger.Warn("vision response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read vision response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}
