package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/docufill/internal/entity"
)

// ModelConfig for the field-extraction model client.
type ModelConfig struct {
	APIKey      string        // if empty, falls back to env MODEL_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
	RateLimit   float64       // requests per second; 0 disables limiting
}

// ModelClient implements ModelExtractor against an OpenAI-style
// chat/completions endpoint with schema-constrained JSON output.
type ModelClient struct {
	cfg     ModelConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewModelClient(cfg ModelConfig, logger *slog.Logger) *ModelClient {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("MODEL_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &ModelClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		log:     logger,
	}
}

// ExtractFields asks the model for the candidate fields of the category
// schema, validates the reply against the same JSON schema, and converts it
// into ExtractedFields tagged model_inferred.
func (c *ModelClient) ExtractFields(ctx context.Context, req Request) (map[string]entity.ExtractedField, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	c.log.Info("model.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"category", req.Category,
		"candidate_fields", len(req.Schema.Fields),
	)

	jsonSchema := BuildFieldsJSONSchema(req.Schema)
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(req)},
			{"role": "user", "content": buildUserPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(jsonSchema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.log.Error("model.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, raw, fmt.Errorf("decode model response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, raw, fmt.Errorf("no choices in model response")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := ValidateJSONAgainstSchema(jsonSchema, content); err != nil {
		c.log.Error("model.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, content, fmt.Errorf("schema validation failed: %w", err)
	}

	var parsed struct {
		Fields map[string]struct {
			Value      string `json:"value"`
			Confidence int    `json:"confidence"`
			RawText    string `json:"raw_text"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, content, fmt.Errorf("unmarshal fields: %w", err)
	}

	out := make(map[string]entity.ExtractedField, len(parsed.Fields))
	for name, f := range parsed.Fields {
		out[name] = entity.ExtractedField{
			Value:      f.Value,
			Confidence: clamp(f.Confidence),
			Source:     entity.SourceModelInferred,
			RawText:    f.RawText,
		}
	}

	c.log.Info("model.extract.ok",
		"req_id", rid,
		"fields", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, content, nil
}

// ModelName reports the configured model for extraction metadata.
func (c *ModelClient) ModelName() string { return c.cfg.Model }

func (c *ModelClient) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model http error: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("model status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}

func buildSystemPrompt(req Request) string {
	parts := []string{
		"You are an identity-document field extractor. Return ONLY JSON that matches the JSON Schema provided.",
		"Document category: " + string(req.Category) + ".",
		"Extract only the candidate fields named in the schema; omit any field that is not present in the text.",
		"Copy date values exactly as printed; do not reformat or reinterpret them.",
		"For every field report an honest 0-100 confidence reflecting how certain the reading is.",
		"Set raw_text to the exact source substring the value came from.",
		"Never emit null values; leave absent fields out entirely.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("Candidate fields: ")
	sb.WriteString(strings.Join(req.Schema.FieldNames(), ", "))
	sb.WriteString("\n\nDocument text:\n")
	sb.WriteString(req.Text)
	return sb.String()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}" // schema structs are marshalable; this branch is unreachable
	}
	return string(b)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
