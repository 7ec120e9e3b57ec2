package rerank

import (
	"context"
	"fmt"
	"sort"

	"vocrag/internal/vecindex"
)

// Candidate is a reranked result: the original index result plus the
// scorer's finer-grained relevance score.
type Candidate struct {
	Result      vecindex.Result
	RerankScore float64
}

// Rerank re-scores each candidate independently with the scorer and
// returns them ordered by rerank score descending, truncated to limit.
// Ties keep the candidates' original (similarity) order, so the output is
// deterministic for identical inputs. No candidates are added or dropped
// other than by the limit; a scorer failure aborts the whole pass so the
// caller can fall back to the original ordering.
func Rerank(ctx context.Context, scorer Scorer, query string, candidates []vecindex.Result, limit int) ([]Candidate, error) {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	scored := make([]Candidate, len(candidates))
	for i, cand := range candidates {
		score, err := scorer.Score(ctx, query, cand.Chunk.Text, cand.Chunk.SectionPath)
		if err != nil {
			return nil, fmt.Errorf("failed to score candidate %s: %w", cand.Chunk.ID, err)
		}
		scored[i] = Candidate{Result: cand, RerankScore: score}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankScore > scored[j].RerankScore
	})

	return scored[:limit], nil
}
