package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Model    ModelConfig
	Pipeline PipelineConfig
	Ingest   IngestConfig
}

// DatabaseConfig holds ledger database configuration.
type DatabaseConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPAddr       string
	MaxUploadBytes int64
}

// OCRConfig holds pattern-OCR backend configuration.
type OCRConfig struct {
	Pdftotext        string
	Pdftoppm         string
	Tesseract        string
	TesseractLang    string
	DPI              int
	TessdataDir      string
	ArtifactCacheDir string
}

// ModelConfig holds the vision/field-extraction model backend configuration.
type ModelConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	RateLimit   float64 // requests per second across all workers
}

// PipelineConfig holds orchestration policy. The numeric thresholds are
// deployment policy, tuned against labeled validation sets, so they are
// environment-driven rather than baked into business logic.
type PipelineConfig struct {
	MaxRetries      int
	StageTimeout    time.Duration
	FuzzyThreshold  float64 // minimum similarity for a fuzzy field match
	ReviewFloor     int     // per-field confidence floor (0-100)
	ReviewScore     int     // overall score below which review is forced
	Workers         int
	QueueSize       int
	StalenessWindow time.Duration
	SweepInterval   time.Duration
}

// IngestConfig holds directory-watch ingestion configuration.
type IngestConfig struct {
	WatchDirs []string
	Debounce  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        getEnv("DB_PATH", "./data/docufill.db"),
			BusyTimeout: getEnvAsDuration("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 32<<20)),
		},
		OCR: OCRConfig{
			Pdftotext:        getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:         getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:    getEnv("TESSERACT_LANG", "eng"),
			DPI:              getEnvAsInt("OCR_DPI", 300),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
		},
		Model: ModelConfig{
			BaseURL:     getEnv("MODEL_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("MODEL_API_KEY", ""),
			Model:       getEnv("MODEL_NAME", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("MODEL_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("MODEL_TIMEOUT", 45*time.Second),
			RateLimit:   float64(getEnvAsInt("MODEL_RATE_LIMIT_RPS", 4)),
		},
		Pipeline: PipelineConfig{
			MaxRetries:      getEnvAsInt("PIPELINE_MAX_RETRIES", 3),
			StageTimeout:    getEnvAsDuration("PIPELINE_STAGE_TIMEOUT", 90*time.Second),
			FuzzyThreshold:  getEnvAsFloat64("MAPPING_FUZZY_THRESHOLD", 0.85),
			ReviewFloor:     getEnvAsInt("REVIEW_CONFIDENCE_FLOOR", 70),
			ReviewScore:     getEnvAsInt("REVIEW_SCORE_THRESHOLD", 75),
			Workers:         getEnvAsInt("PIPELINE_WORKERS", 6),
			QueueSize:       getEnvAsInt("PIPELINE_QUEUE_SIZE", 512),
			StalenessWindow: getEnvAsDuration("JOB_STALENESS_WINDOW", 15*time.Minute),
			SweepInterval:   getEnvAsDuration("JOB_SWEEP_INTERVAL", time.Minute),
		},
		Ingest: IngestConfig{
			WatchDirs: splitNonEmpty(getEnv("WATCH_DIRS", "")),
			Debounce:  getEnvAsDuration("WATCH_DEBOUNCE", 2*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
