package retrieval

import "vocrag/internal/segment"

// RankedResult is one retrieved chunk with its similarity score and, when
// reranking ran, the reranker's score.
type RankedResult struct {
	Chunk       segment.Chunk `json:"chunk"`
	Score       float32       `json:"score"`
	RerankScore *float64      `json:"rerank_score,omitempty"`
}

// Result is the outcome of one retrieval query. An empty Results slice is a
// valid outcome, not an error. Reranked reports whether the rerank stage
// actually ran; a disabled or failed reranker leaves the vector index
// ordering in place with Reranked=false.
type Result struct {
	Query    string         `json:"query"`
	Results  []RankedResult `json:"results"`
	Reranked bool           `json:"reranked"`
}

// Options tunes the pipeline. Zero values select documented defaults; the
// right production values depend on the corpus and must be tuned
// empirically.
type Options struct {
	// ModelID is the embedding model identity; all cached vectors and
	// index entries are bound to it.
	ModelID string
	// TopK is the candidate count requested from the vector index.
	// Default 6.
	TopK int
	// RerankLimit caps how many candidates survive reranking.
	// Default TopK.
	RerankLimit int
	// Workers bounds concurrent embedding calls during ingest. Default 6.
	Workers int
}

const (
	defaultTopK    = 6
	defaultWorkers = 6
)

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.RerankLimit <= 0 {
		o.RerankLimit = o.TopK
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	return o
}
