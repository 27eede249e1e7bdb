package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/export"
	"github.com/joseph-ayodele/docufill/internal/extract"
	"github.com/joseph-ayodele/docufill/internal/fill"
	"github.com/joseph-ayodele/docufill/internal/pipeline"
	"github.com/joseph-ayodele/docufill/internal/recognize"
	"github.com/joseph-ayodele/docufill/internal/recovery"
	"github.com/joseph-ayodele/docufill/internal/schema"
	"github.com/joseph-ayodele/docufill/internal/validate"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir         = flag.String("dir", "", "directory of documents to process (required)")
		targetPath  = flag.String("target", "", "target schema JSON file (required)")
		tmplPath    = flag.String("template", "", "form template JSON file (optional)")
		categoryStr = flag.String("category", "", "document category hint")
		out         = flag.String("out", "", "output XLSX summary path (defaults to parent directory)")
		artifactDir = flag.String("artifacts", "", "directory for filled form artifacts (optional)")
		parallel    = flag.Int("parallel", 4, "number of documents processed concurrently")
	)
	flag.Parse()

	if *dir == "" || *targetPath == "" {
		printError("Error: --dir and --target are required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "docufill-summary.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	targetJSON, err := os.ReadFile(*targetPath)
	if err != nil {
		logger.Error("failed to read target schema", "path", *targetPath, "error", err)
		os.Exit(1)
	}
	target, err := schema.ParseTargetSchema(targetJSON)
	if err != nil {
		logger.Error("invalid target schema", "error", err)
		os.Exit(1)
	}
	var template *fill.Template
	if *tmplPath != "" {
		tmplJSON, err := os.ReadFile(*tmplPath)
		if err != nil {
			logger.Error("failed to read template", "path", *tmplPath, "error", err)
			os.Exit(1)
		}
		template, err = fill.ParseTemplate(tmplJSON)
		if err != nil {
			logger.Error("invalid template", "error", err)
			os.Exit(1)
		}
	}
	category, _ := constants.Canonicalize(*categoryStr)

	cfg := common.LoadConfig()
	registry := schema.DefaultRegistry()

	var model extract.ModelExtractor
	if cfg.Model.APIKey != "" {
		model = extract.NewModelClient(extract.ModelConfig{
			APIKey:      cfg.Model.APIKey,
			BaseURL:     cfg.Model.BaseURL,
			Model:       cfg.Model.Model,
			Temperature: cfg.Model.Temperature,
			Timeout:     cfg.Model.Timeout,
			RateLimit:   cfg.Model.RateLimit,
		}, logger)
	}
	extractor := extract.NewExtractor(model, logger)
	recognizer := recognize.NewOCRRecognizer(recognize.Config{
		Pdftotext:        cfg.OCR.Pdftotext,
		Pdftoppm:         cfg.OCR.Pdftoppm,
		Tesseract:        cfg.OCR.Tesseract,
		TesseractLang:    cfg.OCR.TesseractLang,
		DPI:              cfg.OCR.DPI,
		TessdataDir:      cfg.OCR.TessdataDir,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
	}, logger)
	validator := validate.NewValidator(validate.Config{
		ReviewFloor: cfg.Pipeline.ReviewFloor,
		ReviewScore: cfg.Pipeline.ReviewScore,
	}, logger)
	controller := recovery.NewController(cfg.Pipeline.MaxRetries, logger)
	filler := fill.NewFiller(logger)

	files, err := listDocuments(*dir)
	if err != nil {
		logger.Error("failed to list documents", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		printError("No supported documents found in %s\n", *dir)
		os.Exit(1)
	}

	var (
		mu   sync.Mutex
		rows []export.Row
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*parallel)

	for _, path := range files {
		path := path
		g.Go(func() error {
			doc, err := os.ReadFile(path)
			if err != nil {
				logger.Error("read failed", "path", path, "error", err)
				return nil // one bad file never stops the batch
			}

			orch := &pipeline.Orchestrator{
				Recognizer:     recognizer,
				Extractor:      extractor,
				Validator:      validator,
				Recovery:       controller,
				Filler:         filler,
				Registry:       registry,
				FuzzyThreshold: cfg.Pipeline.FuzzyThreshold,
				StageTimeout:   cfg.Pipeline.StageTimeout,
				Logger:         logger,
			}
			outcome := orch.Run(ctx, pipeline.Input{
				DocumentID: uuid.New(),
				Document:   doc,
				Format:     constants.MapExtToFormat(filepath.Ext(path)),
				Category:   category,
				Target:     target,
				Template:   template,
			})

			if *artifactDir != "" && len(outcome.Artifact) > 0 {
				name := filepath.Base(path) + ".filled.xlsx"
				if err := os.WriteFile(filepath.Join(*artifactDir, name), outcome.Artifact, 0o644); err != nil {
					logger.Error("artifact write failed", "path", name, "error", err)
				}
			}

			row := export.Row{
				File:     path,
				Status:   outcome.Status,
				Category: category,
				Reason:   outcome.Reason,
				Fields:   outcome.State.ExtractedFields,
				Warnings: outcome.State.Warnings,
			}
			if q := outcome.State.Quality; q != nil {
				row.Score = q.OverallScore
				row.NeedsReview = q.NeedsHumanReview
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}

	xlsx, err := export.NewService(logger).SummaryXLSX(rows)
	if err != nil {
		logger.Error("summary export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("summary write failed", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("batch complete", "documents", len(rows), "summary", *out)
}

func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if constants.MapExtToFormat(filepath.Ext(e.Name())) == "" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
