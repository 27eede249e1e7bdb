package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/async"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/extract"
	"github.com/joseph-ayodele/docufill/internal/fill"
	"github.com/joseph-ayodele/docufill/internal/ingest"
	"github.com/joseph-ayodele/docufill/internal/jobs"
	"github.com/joseph-ayodele/docufill/internal/pipeline"
	"github.com/joseph-ayodele/docufill/internal/profiles"
	"github.com/joseph-ayodele/docufill/internal/recognize"
	"github.com/joseph-ayodele/docufill/internal/recovery"
	"github.com/joseph-ayodele/docufill/internal/repository"
	"github.com/joseph-ayodele/docufill/internal/schema"
	"github.com/joseph-ayodele/docufill/internal/server"
	"github.com/joseph-ayodele/docufill/internal/validate"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := repository.HealthCheck(pingCtx, db); err != nil {
		cancel()
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	cancel()

	jobsRepo := repository.NewJobRepository(db)
	profilesRepo := repository.NewProfileRepository(db)
	profilesSvc := profiles.NewService(profilesRepo, logger)

	registry := schema.DefaultRegistry()
	if path := os.Getenv("SCHEMA_REGISTRY_PATH"); path != "" {
		registry, err = schema.LoadRegistry(path)
		if err != nil {
			logger.Error("failed to load schema registry", "path", path, "error", err)
			os.Exit(1)
		}
	}

	var recognizer recognize.Recognizer
	if os.Getenv("VISION_MODEL") != "" {
		recognizer = recognize.NewVisionRecognizer(recognize.VisionConfig{
			BaseURL:   cfg.Model.BaseURL,
			APIKey:    cfg.Model.APIKey,
			Model:     os.Getenv("VISION_MODEL"),
			Timeout:   cfg.Model.Timeout,
			RateLimit: cfg.Model.RateLimit,
		}, logger)
	} else {
		recognizer = recognize.NewOCRRecognizer(recognize.Config{
			Pdftotext:        cfg.OCR.Pdftotext,
			Pdftoppm:         cfg.OCR.Pdftoppm,
			Tesseract:        cfg.OCR.Tesseract,
			TesseractLang:    cfg.OCR.TesseractLang,
			DPI:              cfg.OCR.DPI,
			TessdataDir:      cfg.OCR.TessdataDir,
			ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
		}, logger)
	}

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
	validator := validate.NewValidator(validate.Config{
		ReviewFloor: cfg.Pipeline.ReviewFloor,
		ReviewScore: cfg.Pipeline.ReviewScore,
	}, logger)
	controller := recovery.NewController(cfg.Pipeline.MaxRetries, logger)
	filler := fill.NewFiller(logger)

	buildOrchestrator := func() *pipeline.Orchestrator {
		return &pipeline.Orchestrator{
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
	}

	processor := jobs.NewProcessor(jobsRepo, profilesSvc, buildOrchestrator, logger)
	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(5*time.Minute),
	)

	jobsSvc := jobs.NewService(jobsRepo, queue, logger)

	sweeper := async.NewSweeper(jobsRepo, queue, cfg.Pipeline.StalenessWindow, cfg.Pipeline.SweepInterval, logger)
	sweeper.Start()

	if len(cfg.Ingest.WatchDirs) > 0 {
		target := os.Getenv("WATCH_TARGET_SCHEMA")
		if target == "" {
			logger.Error("WATCH_DIRS set but WATCH_TARGET_SCHEMA missing")
			os.Exit(1)
		}
		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Ingest.WatchDirs,
			InitialScan: true,
			Debounce:    cfg.Ingest.Debounce,
		}, logger)
		if err != nil {
			logger.Error("failed to start directory watcher", "error", err)
			os.Exit(1)
		}
		category, _ := constants.Canonicalize(os.Getenv("WATCH_CATEGORY"))
		watchSvc := ingest.NewService(jobsSvc, []byte(target), category, logger)
		go watchSvc.Run(ctx, events, errs)
	}

	srv := server.New(cfg.Server, jobsSvc, profilesSvc, db, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	sweeper.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}
