// Command ingest scans the configured docs directory and ingests every
// markdown document into the vector index.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vocrag/internal/app"
	"vocrag/internal/config"
	"vocrag/internal/contextutil"
	"vocrag/internal/docs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.WithLogger(ctx, logger)

	pipeline, closeFn, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = closeFn()
	}()

	documents, err := docs.LoadAll(ctx, cfg.DocsDir)
	if err != nil {
		logger.Error("failed to load documents", "docs_dir", cfg.DocsDir, "error", err)
		os.Exit(1)
	}

	summary, err := pipeline.IngestAll(ctx, documents)
	if err != nil {
		logger.Error("ingest aborted", "error", err)
		os.Exit(1)
	}

	logger.Info("ingest finished",
		"docs_dir", cfg.DocsDir,
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failed),
	)
	if len(summary.Failed) > 0 {
		os.Exit(1)
	}
}
