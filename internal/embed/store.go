package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// StoredEntry is one persisted cache row.
type StoredEntry struct {
	Key     string `db:"cache_key"`
	ModelID string `db:"model_id"`
	Vector  []float32
}

type storedRow struct {
	Key     string `db:"cache_key"`
	ModelID string `db:"model_id"`
	Dim     int    `db:"dim"`
	Vector  []byte `db:"vector"`
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	cache_key  TEXT PRIMARY KEY,
	model_id   TEXT NOT NULL,
	dim        INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store persists cache entries in SQLite so re-ingestion across process
// restarts does not re-embed unchanged content. Entries are write-once:
// an embedding is immutable once cached.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (and migrates) the SQLite-backed cache store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate cache store: %w", err)
	}
	return &Store{db: db}, nil
}

// Put inserts an entry. Existing keys are left untouched.
func (s *Store) Put(ctx context.Context, key, modelID string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO embedding_cache (cache_key, model_id, dim, vector) VALUES (?, ?, ?, ?)",
		key, modelID, len(vec), encodeVector(vec),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// All returns every persisted entry.
func (s *Store) All(ctx context.Context) ([]StoredEntry, error) {
	var rows []storedRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT cache_key, model_id, dim, vector FROM embedding_cache"); err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %w", err)
	}

	entries := make([]StoredEntry, 0, len(rows))
	for _, row := range rows {
		vec, err := decodeVector(row.Vector, row.Dim)
		if err != nil {
			return nil, fmt.Errorf("corrupt cache entry %s: %w", row.Key, err)
		}
		entries = append(entries, StoredEntry{Key: row.Key, ModelID: row.ModelID, Vector: vec})
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeVector packs float32 values as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("vector blob has %d bytes, expected %d", len(buf), 4*dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
