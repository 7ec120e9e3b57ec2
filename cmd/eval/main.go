// Command eval ingests the configured docs directory, runs a JSONL query
// set through the retrieval pipeline and writes the evaluation report as
// JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"vocrag/internal/app"
	"vocrag/internal/config"
	"vocrag/internal/contextutil"
	"vocrag/internal/docs"
	"vocrag/internal/evalrun"
	"vocrag/internal/retrieval"
)

func main() {
	queriesPath := flag.String("queries", "data/rag_eval/queries.jsonl", "path to the JSONL query set")
	evalK := flag.Int("k", 5, "top-k window for the hit/miss outcome")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := contextutil.WithLogger(context.Background(), logger)

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
	logger.Info("corpus ingested", "succeeded", summary.Succeeded, "failed", len(summary.Failed))

	f, err := os.Open(*queriesPath)
	if err != nil {
		logger.Error("failed to open query set", "path", *queriesPath, "error", err)
		os.Exit(1)
	}
	queries, skipped, err := evalrun.LoadQueries(ctx, f)
	_ = f.Close()
	if err != nil {
		logger.Error("failed to load query set", "path", *queriesPath, "error", err)
		os.Exit(1)
	}

	retrieveFn := func(ctx context.Context, query string) (*retrieval.Result, error) {
		return pipeline.Retrieve(ctx, query)
	}
	report, err := evalrun.Evaluate(ctx, queries, retrieveFn, skipped, evalrun.Options{K: *evalK})
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(1)
	}

	fmt.Fprint(os.Stderr, report.Format())

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		logger.Error("failed to encode report", "error", err)
		os.Exit(1)
	}
}
