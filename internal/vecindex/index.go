package vecindex

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index.go -package=mocks vocrag/internal/vecindex Index

import (
	"context"
	"errors"

	"vocrag/internal/segment"
)

var (
	// ErrModelMismatch is returned when a vector's dimension does not match
	// the index's embedding model. Vectors from different models are never
	// comparable; this is a programming or configuration error.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrInvalidTopK is returned for Query calls with topK <= 0.
	ErrInvalidTopK = errors.New("top_k must be greater than 0")
	// ErrInconsistent is returned when an upsert batch violates internal
	// invariants; the prior index state is fully retained.
	ErrInconsistent = errors.New("inconsistent index entries")
)

// Entry is a chunk plus its embedding vector, as submitted to the index.
// The index copies entries in; callers may reuse the slice afterwards.
type Entry struct {
	Chunk  segment.Chunk
	Vector []float32
}

// Result is one ranked query answer.
type Result struct {
	Chunk segment.Chunk
	Score float32
}

// Index stores chunk vectors and answers nearest-neighbor queries by cosine
// similarity. Backends are interchangeable and selected once at startup;
// Memory is the reference implementation of the contract.
type Index interface {
	// Upsert atomically replaces all entries for sourceID: after it
	// returns, either all new entries are visible and all old ones gone,
	// or (on error) the prior state is fully retained.
	Upsert(ctx context.Context, sourceID string, entries []Entry) error

	// Delete removes all entries for sourceID.
	Delete(ctx context.Context, sourceID string) error

	// Query returns up to topK entries by descending similarity. Ties are
	// broken by insertion order, first-inserted wins. topK larger than the
	// population returns everything; an empty index returns an empty
	// slice, not an error.
	Query(ctx context.Context, vector []float32, topK int) ([]Result, error)
}
