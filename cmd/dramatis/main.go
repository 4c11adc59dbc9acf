package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fablecast/dramatis/internal/api"
	"github.com/fablecast/dramatis/internal/catalog"
	"github.com/fablecast/dramatis/internal/checkpoint"
	"github.com/fablecast/dramatis/internal/config"
	"github.com/fablecast/dramatis/internal/events"
	"github.com/fablecast/dramatis/internal/llama"
	"github.com/fablecast/dramatis/internal/passes"
	"github.com/fablecast/dramatis/internal/pipeline"
	"github.com/fablecast/dramatis/internal/processor"
	"github.com/fablecast/dramatis/internal/store"
)

func main() {
	filePath := flag.String("file", "", "process a single document file and exit")
	flag.Parse()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("dramatis starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Inference backend
	var opts []llama.Option
	if cfg.RateLimit > 0 {
		opts = append(opts, llama.WithRateLimit(cfg.RateLimit))
	}
	llm := llama.NewClient(cfg.LlamaServerURL, cfg.Model, opts...)
	if err := llm.Health(ctx); err != nil {
		slog.Warn("llama server not reachable yet", "url", cfg.LlamaServerURL, "error", err)
	} else {
		slog.Info("llama server ready", "url", cfg.LlamaServerURL, "model", cfg.Model)
	}

	// Database (optional, runs without persistence when absent)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, running without persistence")
	}

	// NATS (optional, runs without events when absent)
	var bus *events.Client
	if cfg.NatsURL != "" {
		var err error
		bus, err = events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, running without events")
	}

	// Checkpoints share the database when one is configured
	var ckptStore checkpoint.Store
	if db != nil {
		pg, err := checkpoint.NewPGStore(ctx, db.Pool())
		if err != nil {
			slog.Error("failed to init checkpoint table", "error", err)
			os.Exit(1)
		}
		ckptStore = pg
	} else {
		fs, err := checkpoint.NewFileStore(cfg.CheckpointDir)
		if err != nil {
			slog.Error("failed to init checkpoint dir", "error", err)
			os.Exit(1)
		}
		ckptStore = fs
	}
	checkpoints := checkpoint.NewManager(ckptStore, cfg.CheckpointTTL)

	// Voice catalog
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		var err error
		cat, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			slog.Error("failed to load voice catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
		slog.Info("voice catalog loaded", "path", cfg.CatalogPath, "speakers", cat.Len())
	}

	var onProgress func(pipeline.Progress)
	if bus != nil {
		onProgress = func(p pipeline.Progress) {
			if err := bus.Publish(events.SubjectPipelineProgress, events.PipelineProgress{
				DocumentID: p.DocumentID,
				Stage:      string(p.Stage),
				Unit:       p.Unit,
				Units:      p.Units,
			}); err != nil {
				slog.Warn("failed to publish progress", "error", err)
			}
		}
	}

	coord := pipeline.New(llm, pipeline.Config{
		Passes: passes.Config{
			MaxRetries:            cfg.MaxRetries,
			TokenReductionOnRetry: cfg.RetryReduction,
			Timeout:               cfg.PassTimeout,
		},
		Checkpoints:       checkpoints,
		Catalog:           cat,
		DetailedProfiling: cfg.DetailedProfiling,
		OnProgress:        onProgress,
	})

	proc := processor.New(db, coord, bus, slog.Default())

	// One-shot mode: process a file and print the result
	if *filePath != "" {
		result, err := proc.ProcessFile(ctx, *filePath, cfg.PageSize)
		if err != nil {
			slog.Error("file processing failed", "path", *filePath, "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			slog.Error("failed to encode result", "error", err)
			os.Exit(1)
		}
		return
	}

	// Subscribe to document events
	if bus != nil {
		if err := bus.Subscribe(events.SubjectDocumentStored, proc.HandleDocumentStored); err != nil {
			slog.Error("failed to subscribe to document events", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, db, proc, bus)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if bus != nil {
		if err := bus.Publish("dramatis.service.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"model":     cfg.Model,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("dramatis ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("dramatis stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
