package evalrun

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"vocrag/internal/contextutil"
	"vocrag/internal/retrieval"
)

// RetrieveFunc produces ranked results for a query text. The evaluator
// treats it as a black box; with a deterministic function, identical inputs
// reproduce identical reports.
type RetrieveFunc func(ctx context.Context, query string) (*retrieval.Result, error)

// Options tunes the evaluation run.
type Options struct {
	// K is the top-k window used for the hit/miss outcome. Default 5.
	K int
	// KValues are the cutoffs for precision/recall/nDCG. Default {1, 3, 5, 10}.
	KValues []int
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = 5
	}
	if len(o.KValues) == 0 {
		o.KValues = []int{1, 3, 5, 10}
	}
	sort.Ints(o.KValues)
	return o
}

// RankedHit records relevance of one retrieved result.
type RankedHit struct {
	Rank        int     `json:"rank"`
	SectionPath string  `json:"section_path"`
	Score       float32 `json:"score"`
	Relevant    bool    `json:"relevant"`
}

// QueryOutcome is the per-query evaluation record.
type QueryOutcome struct {
	ID    string `json:"id"`
	Query string `json:"query"`
	// Hit is true when at least one relevant result appears within the
	// top-k window.
	Hit bool `json:"hit"`
	// Ambiguous marks queries with no ground truth; they are excluded
	// from the hit-rate denominator.
	Ambiguous bool `json:"ambiguous,omitempty"`
	// Error records a failed retrieval; the failure aborts this query
	// only, never the run.
	Error string      `json:"error,omitempty"`
	MRR   float64     `json:"mrr"`
	Hits  []RankedHit `json:"hits,omitempty"`

	PrecisionAtK map[int]float64 `json:"precision_at_k,omitempty"`
	RecallAtK    map[int]float64 `json:"recall_at_k,omitempty"`
	NDCGAtK      map[int]float64 `json:"ndcg_at_k,omitempty"`
}

// Report is the aggregate outcome of one evaluation run. It is created
// fresh per run and never mutated after return.
type Report struct {
	RunID string `json:"run_id"`
	// TotalQueries counts all evaluated records; Evaluated excludes
	// ambiguous ones and is the hit-rate denominator.
	TotalQueries int     `json:"total_queries"`
	Evaluated    int     `json:"evaluated"`
	Hits         int     `json:"hits"`
	HitRate      float64 `json:"hit_rate"`
	MeanMRR      float64 `json:"mean_mrr"`
	SkippedLines int     `json:"skipped_lines"`

	PrecisionAtK map[int]float64 `json:"precision_at_k"`
	RecallAtK    map[int]float64 `json:"recall_at_k"`
	NDCGAtK      map[int]float64 `json:"ndcg_at_k"`

	Queries []QueryOutcome `json:"queries"`
}

// Evaluate runs every query through retrieveFn and scores the ranked
// output against the ground truth. Relevance is an exact section-path
// match against the canonicalized path, with keyword containment as a
// secondary signal. skippedLines is carried into the report for
// observability.
func Evaluate(ctx context.Context, queries []Query, retrieveFn RetrieveFunc, skippedLines int, opts Options) (*Report, error) {
	logger := contextutil.LoggerFromContext(ctx)
	opts = opts.withDefaults()

	report := &Report{
		RunID:        uuid.New().String(),
		TotalQueries: len(queries),
		SkippedLines: skippedLines,
		PrecisionAtK: make(map[int]float64),
		RecallAtK:    make(map[int]float64),
		NDCGAtK:      make(map[int]float64),
		Queries:      make([]QueryOutcome, 0, len(queries)),
	}

	for _, q := range queries {
		outcome := evaluateQuery(ctx, q, retrieveFn, opts)
		report.Queries = append(report.Queries, outcome)

		if outcome.Ambiguous {
			continue
		}
		report.Evaluated++
		if outcome.Hit {
			report.Hits++
		}
		report.MeanMRR += outcome.MRR
		for _, k := range opts.KValues {
			report.PrecisionAtK[k] += outcome.PrecisionAtK[k]
			report.RecallAtK[k] += outcome.RecallAtK[k]
			report.NDCGAtK[k] += outcome.NDCGAtK[k]
		}
	}

	if report.Evaluated > 0 {
		n := float64(report.Evaluated)
		report.HitRate = float64(report.Hits) / n
		report.MeanMRR /= n
		for _, k := range opts.KValues {
			report.PrecisionAtK[k] /= n
			report.RecallAtK[k] /= n
			report.NDCGAtK[k] /= n
		}
	}

	logger.InfoContext(ctx, "evaluation completed",
		"run_id", report.RunID,
		"queries", report.TotalQueries,
		"evaluated", report.Evaluated,
		"hit_rate", report.HitRate,
		"skipped_lines", report.SkippedLines,
	)
	return report, nil
}

func evaluateQuery(ctx context.Context, q Query, retrieveFn RetrieveFunc, opts Options) QueryOutcome {
	outcome := QueryOutcome{
		ID:           q.ID,
		Query:        q.Query,
		PrecisionAtK: make(map[int]float64),
		RecallAtK:    make(map[int]float64),
		NDCGAtK:      make(map[int]float64),
	}

	if len(q.RelevantSectionPaths) == 0 && len(q.Keywords) == 0 {
		outcome.Ambiguous = true
		return outcome
	}

	result, err := retrieveFn(ctx, q.Query)
	if err != nil {
		outcome.Error = err.Error()
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "retrieval failed for eval query",
			"id", q.ID, "error", err)
		return outcome
	}

	relevantPaths := make(map[string]struct{}, len(q.RelevantSectionPaths))
	for _, p := range q.RelevantSectionPaths {
		relevantPaths[p] = struct{}{}
	}

	relevances := make([]int, len(result.Results))
	matchedPaths := make([]string, len(result.Results))
	for i, r := range result.Results {
		relevant := false
		if _, ok := relevantPaths[r.Chunk.SectionPath]; ok {
			relevant = true
			matchedPaths[i] = r.Chunk.SectionPath
		} else if keywordMatch(q.Keywords, r.Chunk.SectionPath, r.Chunk.Text) {
			relevant = true
		}
		if relevant {
			relevances[i] = 1
		}
		outcome.Hits = append(outcome.Hits, RankedHit{
			Rank:        i + 1,
			SectionPath: r.Chunk.SectionPath,
			Score:       r.Score,
			Relevant:    relevant,
		})
	}

	window := opts.K
	if window > len(relevances) {
		window = len(relevances)
	}
	for i := 0; i < window; i++ {
		if relevances[i] == 1 {
			outcome.Hit = true
			break
		}
	}
	outcome.MRR = mrr(relevances)

	totalRelevant := len(q.RelevantSectionPaths)
	if totalRelevant == 0 {
		totalRelevant = len(q.Keywords)
	}
	for _, k := range opts.KValues {
		outcome.PrecisionAtK[k] = precisionAtK(relevances, k)
		outcome.RecallAtK[k] = recallAtK(relevances, matchedPaths, k, q.RelevantSectionPaths)
		outcome.NDCGAtK[k] = ndcg(relevances, k, totalRelevant)
	}
	return outcome
}

// keywordMatch reports whether any keyword occurs, case-insensitively, in
// the section path or chunk text.
func keywordMatch(keywords []string, sectionPath, text string) bool {
	if len(keywords) == 0 {
		return false
	}
	combined := strings.ToLower(sectionPath + "\n" + text)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(combined, kw) {
			return true
		}
	}
	return false
}

func mrr(relevances []int) float64 {
	for i, rel := range relevances {
		if rel == 1 {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

func precisionAtK(relevances []int, k int) float64 {
	if k <= 0 {
		return 0
	}
	window := k
	if window > len(relevances) {
		window = len(relevances)
	}
	hits := 0
	for i := 0; i < window; i++ {
		hits += relevances[i]
	}
	return float64(hits) / float64(k)
}

// recallAtK counts distinct relevant section paths found in the top k,
// against the known ground-truth cardinality. Keyword-only queries fall
// back to binary found-anything recall.
func recallAtK(relevances []int, matchedPaths []string, k int, relevantPaths []string) float64 {
	window := k
	if window > len(relevances) {
		window = len(relevances)
	}
	if len(relevantPaths) == 0 {
		for i := 0; i < window; i++ {
			if relevances[i] == 1 {
				return 1
			}
		}
		return 0
	}
	found := make(map[string]struct{})
	for i := 0; i < window; i++ {
		if matchedPaths[i] != "" {
			found[matchedPaths[i]] = struct{}{}
		}
	}
	return float64(len(found)) / float64(len(relevantPaths))
}

func dcg(relevances []int, k int) float64 {
	var score float64
	window := k
	if window > len(relevances) {
		window = len(relevances)
	}
	for i := 0; i < window; i++ {
		if relevances[i] == 1 {
			score += 1.0 / math.Log2(float64(i)+2)
		}
	}
	return score
}

func ndcg(relevances []int, k int, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	ideal := make([]int, min(totalRelevant, k))
	for i := range ideal {
		ideal[i] = 1
	}
	idcg := dcg(ideal, k)
	if idcg == 0 {
		return 0
	}
	return dcg(relevances, k) / idcg
}

// Format renders a short human-readable summary.
func (r *Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d queries (%d evaluated, %d skipped lines)\n",
		r.RunID, r.TotalQueries, r.Evaluated, r.SkippedLines)
	fmt.Fprintf(&b, "hit_rate=%.4f mean_mrr=%.4f\n", r.HitRate, r.MeanMRR)
	ks := make([]int, 0, len(r.RecallAtK))
	for k := range r.RecallAtK {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		fmt.Fprintf(&b, "precision@%d=%.4f recall@%d=%.4f ndcg@%d=%.4f\n",
			k, r.PrecisionAtK[k], k, r.RecallAtK[k], k, r.NDCGAtK[k])
	}
	return b.String()
}
