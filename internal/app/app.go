// Package app wires the retrieval core from configuration: embedding
// provider, cache (with optional persistence), index backend, reranker and
// telemetry, assembled once at startup and passed down explicitly.
package app

import (
	"context"
	"fmt"

	"vocrag/internal/config"
	"vocrag/internal/embed"
	"vocrag/internal/rerank"
	"vocrag/internal/retrieval"
	"vocrag/internal/segment"
	"vocrag/internal/telemetry"
	"vocrag/internal/vecindex"
)

// Build assembles a Pipeline from config. The returned close function
// releases any persistent resources; it is safe to call once.
func Build(ctx context.Context, cfg *config.Config) (*retrieval.Pipeline, func() error, error) {
	provider := embed.NewHTTPProvider(embed.HTTPProviderConfig{
		BaseURL:      cfg.EmbeddingBaseURL,
		APIKey:       cfg.EmbeddingAPIKey,
		ExpectedSize: cfg.VectorSize,
		Timeout:      cfg.EmbedTimeout,
		MaxRetries:   cfg.EmbedMaxRetries,
	})

	var store *embed.Store
	closeFn := func() error { return nil }
	if cfg.CacheDBPath != "" {
		var err error
		store, err = embed.OpenStore(cfg.CacheDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open cache store: %w", err)
		}
		closeFn = store.Close
	}

	recorder := telemetry.NewSlogRecorder()

	cache, err := embed.NewCache(cfg.CacheCapacity, provider, recorder, store)
	if err != nil {
		_ = closeFn()
		return nil, nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	cache.Warm(ctx)

	var index vecindex.Index
	switch cfg.IndexBackend {
	case config.IndexBackendQdrant:
		qdrantIndex, err := vecindex.NewQdrant(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingModelID, cfg.VectorSize)
		if err != nil {
			_ = closeFn()
			return nil, nil, fmt.Errorf("failed to create Qdrant index: %w", err)
		}
		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		index = qdrantIndex
	default:
		index = vecindex.NewMemory(cfg.EmbeddingModelID, cfg.VectorSize)
	}

	var scorer rerank.Scorer
	if cfg.RerankEnabled {
		scorer = rerank.NewLexicalScorer()
	}

	pipeline := retrieval.NewPipeline(
		segment.New(segment.Config{}),
		cache,
		index,
		scorer,
		recorder,
		retrieval.Options{
			ModelID:     cfg.EmbeddingModelID,
			TopK:        cfg.TopK,
			RerankLimit: cfg.RerankLimit,
			Workers:     cfg.Workers,
		},
	)
	return pipeline, closeFn, nil
}
