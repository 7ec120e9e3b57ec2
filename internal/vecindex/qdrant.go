package vecindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"vocrag/internal/contextutil"
	"vocrag/internal/segment"
)

// Qdrant implements Index against a remote Qdrant collection, for corpora
// too large to hold in memory. Source replacement is delete-then-upsert on
// the remote side; the Memory index remains the reference implementation of
// the snapshot-atomicity contract.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	modelID    string
	dim        int
}

// NewQdrant creates a Qdrant-backed index. urlStr is the HTTP endpoint
// ("http://host:6333"); the gRPC port is derived from it.
func NewQdrant(urlStr, collection, modelID string, dim int) (*Qdrant, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if parsed.Port() != "" {
		if httpPort, err := strconv.Atoi(parsed.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	return &Qdrant{client: client, collection: collection, modelID: modelID, dim: dim}, nil
}

// EnsureCollection creates the collection if it does not exist, configured
// for cosine distance at the index's vector dimension.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// pointID derives a deterministic UUID from a chunk id, since Qdrant point
// ids must be UUIDs. Re-ingestion of unchanged content maps to the same
// points.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// Upsert replaces all points for sourceID with the given entries.
func (q *Qdrant) Upsert(ctx context.Context, sourceID string, entries []Entry) error {
	logger := contextutil.LoggerFromContext(ctx)

	for i, e := range entries {
		if len(e.Vector) != q.dim {
			return fmt.Errorf("%w: entry %d has dimension %d, index expects %d for model %s",
				ErrModelMismatch, i, len(e.Vector), q.dim, q.modelID)
		}
	}

	if err := q.Delete(ctx, sourceID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(e.Chunk.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":     e.Chunk.ID,
				"source_id":    e.Chunk.SourceID,
				"section_path": e.Chunk.SectionPath,
				"ordinal":      e.Chunk.Ordinal,
				"text":         e.Chunk.Text,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", q.collection, "source_id", sourceID, "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.InfoContext(ctx, "upserted points", "collection", q.collection, "source_id", sourceID, "count", len(points))
	return nil
}

// Delete removes all points belonging to sourceID.
func (q *Qdrant) Delete(ctx context.Context, sourceID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("source_id", sourceID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for source %s: %w", sourceID, err)
	}
	return nil
}

// Query returns the topK nearest points.
func (q *Qdrant) Query(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if len(vector) != q.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d for model %s",
			ErrModelMismatch, len(vector), q.dim, q.modelID)
	}

	limit := uint64(topK)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to query points", "collection", q.collection, "top_k", topK, "error", err)
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	results := make([]Result, 0, len(scored))
	for _, point := range scored {
		payload := point.Payload
		chunk := segment.Chunk{}
		if payload != nil {
			if v, ok := payload["chunk_id"]; ok {
				chunk.ID = v.GetStringValue()
			}
			if v, ok := payload["source_id"]; ok {
				chunk.SourceID = v.GetStringValue()
			}
			if v, ok := payload["section_path"]; ok {
				chunk.SectionPath = v.GetStringValue()
			}
			if v, ok := payload["ordinal"]; ok {
				chunk.Ordinal = int(v.GetIntegerValue())
			}
			if v, ok := payload["text"]; ok {
				chunk.Text = v.GetStringValue()
			}
		}
		results = append(results, Result{Chunk: chunk, Score: point.Score})
	}
	return results, nil
}

var _ Index = (*Qdrant)(nil)
