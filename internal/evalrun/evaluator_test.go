package evalrun

import (
	"context"
	"errors"
	"math"
	"testing"

	"vocrag/internal/retrieval"
	"vocrag/internal/segment"
)

// fixedRetriever answers every query with the same ranked section paths.
func fixedRetriever(paths ...string) RetrieveFunc {
	return func(_ context.Context, query string) (*retrieval.Result, error) {
		result := &retrieval.Result{Query: query}
		for i, p := range paths {
			result.Results = append(result.Results, retrieval.RankedResult{
				Chunk: segment.Chunk{ID: p, SectionPath: p, Text: "content of " + p},
				Score: float32(len(paths)-i) / float32(len(paths)),
			})
		}
		return result, nil
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEvaluateRanksAndMetrics(t *testing.T) {
	ctx := context.Background()
	queries := []Query{{
		ID:                   "q1",
		Query:                "transfer errors",
		RelevantSectionPaths: []string{"Troubleshooting > Transfer Errors"},
	}}
	retrieveFn := fixedRetriever(
		"Overview",
		"Troubleshooting > Transfer Errors",
		"Glossary > AMHS",
	)

	report, err := Evaluate(ctx, queries, retrieveFn, 0, Options{K: 5, KValues: []int{1, 3}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Evaluated != 1 || report.Hits != 1 {
		t.Fatalf("Evaluated=%d Hits=%d, want 1/1", report.Evaluated, report.Hits)
	}

	outcome := report.Queries[0]
	if !outcome.Hit {
		t.Error("relevant result at rank 2 within k=5 window must be a hit")
	}
	if !approxEqual(outcome.MRR, 0.5) {
		t.Errorf("MRR = %f, want 0.5 (first relevant at rank 2)", outcome.MRR)
	}
	if !approxEqual(outcome.PrecisionAtK[1], 0) {
		t.Errorf("precision@1 = %f, want 0", outcome.PrecisionAtK[1])
	}
	if !approxEqual(outcome.PrecisionAtK[3], 1.0/3.0) {
		t.Errorf("precision@3 = %f, want 1/3", outcome.PrecisionAtK[3])
	}
	if !approxEqual(outcome.RecallAtK[1], 0) {
		t.Errorf("recall@1 = %f, want 0", outcome.RecallAtK[1])
	}
	if !approxEqual(outcome.RecallAtK[3], 1) {
		t.Errorf("recall@3 = %f, want 1 (the only relevant path was found)", outcome.RecallAtK[3])
	}
	// One relevant result at rank 2: dcg = 1/log2(3), idcg = 1.
	wantNDCG := 1.0 / math.Log2(3)
	if !approxEqual(outcome.NDCGAtK[3], wantNDCG) {
		t.Errorf("ndcg@3 = %f, want %f", outcome.NDCGAtK[3], wantNDCG)
	}
	if len(outcome.Hits) != 3 {
		t.Fatalf("Hits has %d records, want 3", len(outcome.Hits))
	}
	if outcome.Hits[0].Relevant || !outcome.Hits[1].Relevant {
		t.Errorf("relevance flags wrong: %+v", outcome.Hits)
	}
}

func TestEvaluateAmbiguousQueriesExcluded(t *testing.T) {
	ctx := context.Background()
	queries := []Query{
		{ID: "good", Query: "alarms", RelevantSectionPaths: []string{"Alarms"}},
		{ID: "no-truth", Query: "something vague"},
	}
	retrieveFn := fixedRetriever("Alarms")

	report, err := Evaluate(ctx, queries, retrieveFn, 0, Options{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.TotalQueries != 2 {
		t.Errorf("TotalQueries = %d, want 2", report.TotalQueries)
	}
	if report.Evaluated != 1 {
		t.Errorf("Evaluated = %d, ambiguous query must not count", report.Evaluated)
	}
	if !approxEqual(report.HitRate, 1) {
		t.Errorf("HitRate = %f, want 1 (denominator excludes ambiguous)", report.HitRate)
	}
	if !report.Queries[1].Ambiguous {
		t.Error("query without ground truth not marked ambiguous")
	}
}

func TestEvaluateRetrievalErrorCountsAsMiss(t *testing.T) {
	ctx := context.Background()
	queries := []Query{{ID: "q1", Query: "anything", RelevantSectionPaths: []string{"A"}}}
	retrieveFn := func(context.Context, string) (*retrieval.Result, error) {
		return nil, errors.New("index unavailable")
	}

	report, err := Evaluate(ctx, queries, retrieveFn, 0, Options{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v, a per-query failure must not abort the run", err)
	}
	if report.Evaluated != 1 {
		t.Errorf("Evaluated = %d, failed query still counts toward the denominator", report.Evaluated)
	}
	if report.Hits != 0 {
		t.Errorf("Hits = %d, want 0", report.Hits)
	}
	if report.Queries[0].Error == "" {
		t.Error("outcome missing the retrieval error")
	}
}

func TestEvaluateKeywordRelevance(t *testing.T) {
	ctx := context.Background()
	queries := []Query{{
		ID:       "kw",
		Query:    "carrier stuck",
		Keywords: []string{"OVERVIEW"},
	}}
	// No path ground truth; the keyword matches case-insensitively against
	// path and text.
	retrieveFn := fixedRetriever("Overview", "Glossary > AMHS")

	report, err := Evaluate(ctx, queries, retrieveFn, 0, Options{K: 5, KValues: []int{1}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	outcome := report.Queries[0]
	if outcome.Ambiguous {
		t.Fatal("keyword-only query marked ambiguous")
	}
	if !outcome.Hit {
		t.Error("keyword match at rank 1 must be a hit")
	}
	if !approxEqual(outcome.RecallAtK[1], 1) {
		t.Errorf("recall@1 = %f, keyword-only recall is binary", outcome.RecallAtK[1])
	}
}

func TestEvaluateReproducible(t *testing.T) {
	ctx := context.Background()
	queries := []Query{
		{ID: "q1", Query: "transfer errors", RelevantSectionPaths: []string{"Troubleshooting > Transfer Errors"}},
		{ID: "q2", Query: "alarms", RelevantSectionPaths: []string{"Alarms"}},
	}
	retrieveFn := fixedRetriever("Troubleshooting > Transfer Errors", "Alarms", "Overview")

	first, err := Evaluate(ctx, queries, retrieveFn, 0, Options{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	second, err := Evaluate(ctx, queries, retrieveFn, 0, Options{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if !approxEqual(first.HitRate, second.HitRate) || !approxEqual(first.MeanMRR, second.MeanMRR) {
		t.Errorf("aggregate metrics differ across identical runs: %+v vs %+v", first, second)
	}
	for k, v := range first.NDCGAtK {
		if !approxEqual(v, second.NDCGAtK[k]) {
			t.Errorf("ndcg@%d differs across identical runs", k)
		}
	}
	if first.RunID == second.RunID {
		t.Error("each run must get its own id")
	}
}
