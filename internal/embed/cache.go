package embed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"vocrag/internal/contextutil"
	"vocrag/internal/telemetry"
)

// DefaultCacheCapacity bounds the in-memory cache entry count. Tunable via
// configuration; the right value depends on corpus size and must be
// determined empirically.
const DefaultCacheCapacity = 4096

// Key derives the content-addressed cache key for (modelID, text).
// Identical inputs always produce the same key; embeddings from different
// models never collide because the model id is part of the hashed content.
func Key(modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(normalizeText(text)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func normalizeText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
}

// call tracks an in-flight computation so concurrent misses on the same key
// wait for the leader instead of issuing duplicate provider calls.
type call struct {
	done chan struct{}
	vec  []float32
	err  error
}

// Cache is a content-addressed embedding cache with LRU eviction and a
// single-flight guarantee per key. Stored vectors are immutable: callers
// always receive a copy, so eviction can never invalidate a reader.
type Cache struct {
	provider Provider
	recorder telemetry.Recorder
	store    *Store // optional persistence; nil means in-memory only

	mu       sync.Mutex
	entries  *lru.Cache[string, []float32]
	inflight map[string]*call
}

// NewCache creates a cache backed by the given provider. capacity <= 0
// selects DefaultCacheCapacity. store may be nil.
func NewCache(capacity int, provider Provider, recorder telemetry.Recorder, store *Store) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if recorder == nil {
		recorder = telemetry.Noop{}
	}
	entries, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Cache{
		provider: provider,
		recorder: recorder,
		store:    store,
		entries:  entries,
		inflight: make(map[string]*call),
	}, nil
}

// Warm preloads the LRU from the persistent store, if one is attached.
// Load failures are logged and ignored; the cache works without warm data.
func (c *Cache) Warm(ctx context.Context) {
	if c.store == nil {
		return
	}
	logger := contextutil.LoggerFromContext(ctx)

	entries, err := c.store.All(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to warm embedding cache", "error", err)
		return
	}
	c.mu.Lock()
	for _, e := range entries {
		c.entries.Add(e.Key, e.Vector)
	}
	c.mu.Unlock()
	logger.InfoContext(ctx, "warmed embedding cache", "entries", len(entries))
}

// GetOrCompute returns the cached vector for (modelID, text), computing and
// caching it via the provider on a miss. Provider failures propagate and
// cache nothing; a concurrent miss on the same key waits for the first
// computation. A caller deadline fails the waiting call without leaking the
// in-flight marker, which the computing goroutine always releases.
func (c *Cache) GetOrCompute(ctx context.Context, modelID, text string) ([]float32, error) {
	key := Key(modelID, text)

	c.mu.Lock()
	if vec, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		c.recorder.Record(ctx, telemetry.NewEvent(telemetry.KindCacheHit, map[string]any{"model_id": modelID}))
		return cloneVector(vec), nil
	}
	if inflight, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, inflight)
	}
	leader := &call{done: make(chan struct{})}
	c.inflight[key] = leader
	c.mu.Unlock()

	c.recorder.Record(ctx, telemetry.NewEvent(telemetry.KindCacheMiss, map[string]any{"model_id": modelID}))

	vec, err := c.provider.Embed(ctx, modelID, text)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		c.entries.Add(key, cloneVector(vec))
	}
	c.mu.Unlock()

	leader.vec = vec
	leader.err = err
	close(leader.done)

	if err != nil {
		return nil, err
	}
	if c.store != nil {
		if storeErr := c.store.Put(ctx, key, modelID, vec); storeErr != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to persist embedding", "error", storeErr)
		}
	}
	return cloneVector(vec), nil
}

// wait blocks until the in-flight computation finishes or the caller's
// context expires.
func (c *Cache) wait(ctx context.Context, inflight *call) ([]float32, error) {
	select {
	case <-inflight.done:
		if inflight.err != nil {
			return nil, inflight.err
		}
		return cloneVector(inflight.vec), nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
