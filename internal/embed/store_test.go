package embed

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	vec := []float32{0.25, -1.5, 3.0}
	if err := store.Put(ctx, "key-1", "model-a", vec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entries, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("All() returned %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.Key != "key-1" || got.ModelID != "model-a" {
		t.Errorf("entry metadata = %q/%q", got.Key, got.ModelID)
	}
	if len(got.Vector) != len(vec) {
		t.Fatalf("vector length = %d, want %d", len(got.Vector), len(vec))
	}
	for i := range vec {
		if got.Vector[i] != vec[i] {
			t.Errorf("vector[%d] = %f, want %f (round trip must be bit-exact)", i, got.Vector[i], vec[i])
		}
	}
}

func TestStorePutIgnoresExistingKey(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	if err := store.Put(ctx, "key-1", "model-a", []float32{1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	// Cached embeddings are write-once: a second put on the same key is a
	// no-op, not an overwrite.
	if err := store.Put(ctx, "key-1", "model-a", []float32{2}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entries, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("All() returned %d entries, want 1", len(entries))
	}
	if entries[0].Vector[0] != 1 {
		t.Errorf("vector = %v, original entry must survive", entries[0].Vector)
	}
}

func TestStoreWarmPopulatesCache(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	key := Key("model-a", "warm text")
	if err := store.Put(ctx, key, "model-a", []float32{7}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	provider := &fakeProvider{vec: []float32{0}}
	cache, err := NewCache(16, provider, nil, store)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	cache.Warm(ctx)

	vec, err := cache.GetOrCompute(ctx, "model-a", "warm text")
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if len(vec) != 1 || vec[0] != 7 {
		t.Errorf("vector = %v, want warmed value [7]", vec)
	}
	if got := provider.callCount(); got != 0 {
		t.Errorf("provider called %d times after warm, want 0", got)
	}
}
