package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vocrag/internal/contextutil"
	"vocrag/internal/embed"
	"vocrag/internal/rerank"
	"vocrag/internal/segment"
	"vocrag/internal/telemetry"
	"vocrag/internal/vecindex"
)

// Pipeline orchestrates ingestion (segment, embed-or-fetch, index) and
// query-time retrieval (embed, candidate search, optional rerank).
type Pipeline struct {
	segmenter *segment.Segmenter
	cache     *embed.Cache
	index     vecindex.Index
	scorer    rerank.Scorer // nil disables reranking
	recorder  telemetry.Recorder
	opts      Options

	mu       sync.Mutex
	ingested map[string]string // sourceID -> content hash of last ingest
}

// NewPipeline builds a pipeline. scorer may be nil to disable reranking;
// recorder may be nil to disable telemetry.
func NewPipeline(
	segmenter *segment.Segmenter,
	cache *embed.Cache,
	index vecindex.Index,
	scorer rerank.Scorer,
	recorder telemetry.Recorder,
	opts Options,
) *Pipeline {
	if recorder == nil {
		recorder = telemetry.Noop{}
	}
	return &Pipeline{
		segmenter: segmenter,
		cache:     cache,
		index:     index,
		scorer:    scorer,
		recorder:  recorder,
		opts:      opts.withDefaults(),
		ingested:  make(map[string]string),
	}
}

// Ingest segments a document, embeds its chunks through the cache and
// atomically replaces the document's entries in the index. Re-ingesting
// identical content is a no-op: the content hash is compared first, so no
// re-embedding and no index churn happens for an unchanged document.
func (p *Pipeline) Ingest(ctx context.Context, doc segment.Document) error {
	logger := contextutil.LoggerFromContext(ctx)

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(doc.Text)))
	p.mu.Lock()
	unchanged := p.ingested[doc.SourceID] == hash
	p.mu.Unlock()
	if unchanged {
		logger.DebugContext(ctx, "skipping unchanged document", "source_id", doc.SourceID, "hash", hash)
		return nil
	}

	chunks, err := p.segmenter.Segment(doc)
	if err != nil {
		return fmt.Errorf("failed to segment %s: %w", doc.SourceID, err)
	}

	entries := make([]vecindex.Entry, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.opts.Workers)
	for i, chunk := range chunks {
		group.Go(func() error {
			vec, err := p.cache.GetOrCompute(groupCtx, p.opts.ModelID, chunk.Text)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %s: %w", chunk.ID, err)
			}
			entries[i] = vecindex.Entry{Chunk: chunk, Vector: vec}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := p.index.Upsert(ctx, doc.SourceID, entries); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.SourceID, err)
	}

	p.mu.Lock()
	p.ingested[doc.SourceID] = hash
	p.mu.Unlock()

	logger.InfoContext(ctx, "ingested document", "source_id", doc.SourceID, "chunks", len(chunks))
	return nil
}

// IngestSummary reports the outcome of a batch ingest. Failures are
// per-document; a batch of N documents can partially succeed.
type IngestSummary struct {
	Succeeded int
	Failed    map[string]error
}

// IngestAll ingests every document, isolating per-document failures. Only a
// cancelled context aborts the batch.
func (p *Pipeline) IngestAll(ctx context.Context, docs []segment.Document) (IngestSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)
	summary := IngestSummary{Failed: make(map[string]error)}

	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if err := p.Ingest(ctx, doc); err != nil {
			summary.Failed[doc.SourceID] = err
			logger.ErrorContext(ctx, "failed to ingest document", "source_id", doc.SourceID, "error", err)
			continue
		}
		summary.Succeeded++
	}

	logger.InfoContext(ctx, "batch ingest completed",
		"total", len(docs), "succeeded", summary.Succeeded, "failed", len(summary.Failed))
	return summary, nil
}

// Delete removes a document's entries from the index and forgets its
// ingest hash.
func (p *Pipeline) Delete(ctx context.Context, sourceID string) error {
	if err := p.index.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", sourceID, err)
	}
	p.mu.Lock()
	delete(p.ingested, sourceID)
	p.mu.Unlock()
	return nil
}

// Retrieve answers a query: embed via the cache, search the index, then
// rerank when a scorer is configured. An embedding failure surfaces the
// error with no partial results; a rerank failure degrades to the index's
// ordering with Reranked=false.
func (p *Pipeline) Retrieve(ctx context.Context, query string) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	vec, err := p.cache.GetOrCompute(ctx, p.opts.ModelID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := p.index.Query(ctx, vec, p.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	result := &Result{Query: query, Results: make([]RankedResult, 0, len(candidates))}

	if p.scorer != nil && len(candidates) > 0 {
		reranked, rerr := rerank.Rerank(ctx, p.scorer, query, candidates, p.opts.RerankLimit)
		if rerr != nil {
			logger.WarnContext(ctx, "rerank failed, falling back to similarity order", "error", rerr)
		} else {
			for _, cand := range reranked {
				score := cand.RerankScore
				result.Results = append(result.Results, RankedResult{
					Chunk:       cand.Result.Chunk,
					Score:       cand.Result.Score,
					RerankScore: &score,
				})
			}
			result.Reranked = true
			p.recorder.Record(ctx, telemetry.NewEvent(telemetry.KindRerank, map[string]any{
				"candidates": len(candidates),
				"limit":      p.opts.RerankLimit,
			}))
		}
	}

	if !result.Reranked {
		for _, cand := range candidates {
			result.Results = append(result.Results, RankedResult{Chunk: cand.Chunk, Score: cand.Score})
		}
	}

	p.recorder.Record(ctx, telemetry.NewEvent(telemetry.KindQuery, map[string]any{
		"latency_ms": time.Since(start).Milliseconds(),
		"results":    len(result.Results),
		"reranked":   result.Reranked,
	}))
	logger.DebugContext(ctx, "retrieval completed",
		"results", len(result.Results), "reranked", result.Reranked, "latency", time.Since(start))
	return result, nil
}
