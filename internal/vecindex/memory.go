package vecindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"vocrag/internal/contextutil"
)

// row is one indexed entry inside a snapshot. seq is the global insertion
// order used for deterministic tie-breaking.
type row struct {
	entry Entry
	seq   uint64
}

// memSnapshot is an immutable view of the index. Queries read a snapshot
// without locking; writers build a new snapshot and swap the pointer, so a
// concurrent query observes either the fully old or fully new entry set.
type memSnapshot struct {
	rows []row
}

// Memory is the in-memory vector index. It is locked to one embedding
// model: the vector dimension is fixed at construction and every entry and
// query vector must match it. Vectors are L2-normalized at upsert time so
// cosine similarity reduces to a dot product at query time.
type Memory struct {
	modelID string
	dim     int

	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[memSnapshot]
	nextSeq  uint64
	nextGen  uint64
}

// NewMemory creates an empty in-memory index for the given model.
func NewMemory(modelID string, dim int) *Memory {
	m := &Memory{
		modelID: modelID,
		dim:     dim,
	}
	m.snapshot.Store(&memSnapshot{})
	return m
}

// ModelID reports the embedding model this index is locked to.
func (m *Memory) ModelID() string { return m.modelID }

// Len reports the current entry count.
func (m *Memory) Len() int {
	return len(m.snapshot.Load().rows)
}

// Upsert atomically replaces all entries for sourceID. The batch is
// validated and normalized before any visible mutation; on error the prior
// snapshot stays in place untouched.
func (m *Memory) Upsert(ctx context.Context, sourceID string, entries []Entry) error {
	if sourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInconsistent)
	}

	normalized := make([][]float32, len(entries))
	for i, e := range entries {
		if len(e.Vector) != m.dim {
			return fmt.Errorf("%w: entry %d has dimension %d, index expects %d for model %s",
				ErrModelMismatch, i, len(e.Vector), m.dim, m.modelID)
		}
		if e.Chunk.ID == "" || e.Chunk.Text == "" {
			return fmt.Errorf("%w: entry %d has empty chunk id or text", ErrInconsistent, i)
		}
		vec, ok := normalize(e.Vector)
		if !ok {
			return fmt.Errorf("%w: entry %d has zero-norm vector", ErrInconsistent, i)
		}
		normalized[i] = vec
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextGen++
	gen := m.nextGen

	old := m.snapshot.Load()
	rows := make([]row, 0, len(old.rows)+len(entries))
	for _, r := range old.rows {
		if r.entry.Chunk.SourceID == sourceID {
			continue
		}
		rows = append(rows, r)
	}
	for i, e := range entries {
		m.nextSeq++
		rows = append(rows, row{
			entry: Entry{Chunk: e.Chunk, Vector: normalized[i]},
			seq:   m.nextSeq,
		})
	}
	m.snapshot.Store(&memSnapshot{rows: rows})

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "index upsert",
		"source_id", sourceID, "entries", len(entries), "generation", gen)
	return nil
}

// Delete removes all entries for sourceID. Deleting an absent source is a
// no-op.
func (m *Memory) Delete(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snapshot.Load()
	rows := make([]row, 0, len(old.rows))
	for _, r := range old.rows {
		if r.entry.Chunk.SourceID == sourceID {
			continue
		}
		rows = append(rows, r)
	}
	m.snapshot.Store(&memSnapshot{rows: rows})

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "index delete", "source_id", sourceID)
	return nil
}

// Query returns the topK entries by descending cosine similarity against an
// immutable snapshot. Identical inputs against identical index state yield
// identical output.
func (m *Memory) Query(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d for model %s",
			ErrModelMismatch, len(vector), m.dim, m.modelID)
	}

	query, ok := normalize(vector)
	if !ok {
		return nil, fmt.Errorf("%w: zero-norm query vector", ErrModelMismatch)
	}

	snap := m.snapshot.Load()
	if len(snap.rows) == 0 {
		return []Result{}, nil
	}

	type scored struct {
		r     row
		score float32
	}
	candidates := make([]scored, len(snap.rows))
	for i, r := range snap.rows {
		candidates[i] = scored{r: r, score: dot(query, r.entry.Vector)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].r.seq < candidates[j].r.seq
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]Result, topK)
	for i := 0; i < topK; i++ {
		results[i] = Result{Chunk: candidates[i].r.entry.Chunk, Score: candidates[i].score}
	}
	return results, nil
}

// normalize returns an L2-normalized copy of vec. ok is false for a
// zero-norm vector, which cannot participate in cosine similarity.
func normalize(vec []float32) ([]float32, bool) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, false
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out, true
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ Index = (*Memory)(nil)
