package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdobak/go-xerrors"

	"github.com/kdimtricp/objextract/internal/api"
	"github.com/kdimtricp/objextract/internal/config"
	"github.com/kdimtricp/objextract/internal/detector"
	"github.com/kdimtricp/objextract/internal/extraction"
	"github.com/kdimtricp/objextract/internal/ledger"
	"github.com/kdimtricp/objextract/internal/logging"
	"github.com/kdimtricp/objextract/internal/media"
	"github.com/kdimtricp/objextract/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "JSON config file")
	envFile := flag.String("env", "", "Optional .env file (default .env)")
	dataset := flag.String("dataset", "", "Dataset name")
	input := flag.String("input", "", "Input root folder")
	output := flag.String("output", "", "Output root folder")
	resume := flag.Bool("resume", true, "Skip sources already recorded in the ledger")
	statusAddr := flag.String("status-addr", "", "Serve run status on this address, e.g. :8090")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal("Failed to load config: ", err)
		}
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	if err := config.LoadEnv(&cfg, envFiles...); err != nil {
		log.Fatal("Failed to apply environment: ", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.DatasetName = *dataset
		case "input":
			cfg.InputRoot = *input
		case "output":
			cfg.OutputRoot = *output
		case "resume":
			cfg.ResumeFromHistory = *resume
		case "status-addr":
			cfg.StatusAddr = *statusAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	runID := logging.NewRunID()
	logger, closeLog, err := logging.New(cfg.LogsDir, runID, level)
	if err != nil {
		log.Fatal("Failed to initialize logging: ", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runID, logger); err != nil {
		logger.ErrorContext(ctx, "extraction failed", slog.Any("error", xerrors.New(err)))
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, runID string, logger *slog.Logger) error {
	logParameters(ctx, logger, cfg)

	var ffmpeg *media.FFmpeg
	for _, split := range cfg.Splits {
		if split.Format != media.FormatVideo {
			continue
		}
		var err error
		ffmpeg, err = media.NewFFmpeg()
		if err != nil {
			return err
		}
		break
	}

	led, err := ledger.Open(cfg.LedgerBackend, cfg.LedgerDir, runID)
	if err != nil {
		return err
	}
	defer led.Close()

	store, err := storage.NewLocalStorage(cfg.OutputRoot, cfg.SamplesFolderName, cfg.MetaFolderName)
	if err != nil {
		return err
	}

	catalog := media.NewDirCatalog(cfg.InputRoot, cfg.AllowedVideoExtensions, ffmpeg)
	det := detector.NewHTTPDetector(cfg.DetectorURL, cfg.DetectionThreshold, time.Duration(cfg.DetectorTimeout))

	pipeline, err := extraction.New(cfg, catalog, det, led, store, logger)
	if err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		srv := &http.Server{
			Addr: cfg.StatusAddr,
			Handler: api.NewRouter(&api.App{
				Progress: pipeline.Progress(),
				Ledger:   led,
				RunID:    runID,
				Logger:   logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status server listening", slog.String("addr", cfg.StatusAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	stats, err := pipeline.Run(ctx)
	logger.InfoContext(ctx, "run summary",
		slog.Int("sources", stats.Sources),
		slog.Int("filtered", stats.Filtered),
		slog.Int("recovered", stats.Recovered),
		slog.Int("processed", stats.Processed),
		slog.Int("invalid", stats.Invalid),
		slog.Int("short", stats.Short),
		slog.Int("detector_calls", stats.DetectorCalls),
		slog.Int("detections", stats.Detections),
		slog.Int("crops", stats.Crops))
	return err
}

func logParameters(ctx context.Context, logger *slog.Logger, cfg config.Config) {
	logger.InfoContext(ctx, "parameters",
		slog.String("dataset", cfg.DatasetName),
		slog.String("input_root", cfg.InputRoot),
		slog.String("output_root", cfg.OutputRoot),
		slog.String("ledger_backend", cfg.LedgerBackend),
		slog.String("ledger_dir", cfg.LedgerDir),
		slog.Bool("resume_from_history", cfg.ResumeFromHistory),
		slog.Int("temporal_size", cfg.TemporalSize),
		slog.Any("temporal_offsets", cfg.TemporalOffsets),
		slog.Float64("detection_threshold", cfg.DetectionThreshold),
		slog.String("detector_url", cfg.DetectorURL),
		slog.Any("allowed_video_extensions", cfg.AllowedVideoExtensions),
		slog.Any("splits", cfg.Splits),
		slog.Bool("save_masks", cfg.SaveMasks))
}
