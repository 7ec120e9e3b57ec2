package config

import (
	"log/slog"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOCS_DIR", "EMBEDDING_BASE_URL", "EMBEDDING_API_KEY", "EMBEDDING_MODEL_ID",
		"VECTOR_SIZE", "EMBED_TIMEOUT", "EMBED_MAX_RETRIES",
		"INDEX_BACKEND", "QDRANT_URL", "QDRANT_COLLECTION",
		"CACHE_CAPACITY", "CACHE_DB_PATH",
		"RETRIEVE_TOP_K", "RERANK_LIMIT", "RERANK_ENABLED", "EMBED_MAX_WORKERS",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("VECTOR_SIZE", "768")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VectorSize != 768 {
		t.Errorf("VectorSize = %d", cfg.VectorSize)
	}
	if cfg.IndexBackend != IndexBackendMemory {
		t.Errorf("IndexBackend = %q, want memory default", cfg.IndexBackend)
	}
	if cfg.EmbedTimeout != 120*time.Second {
		t.Errorf("EmbedTimeout = %v", cfg.EmbedTimeout)
	}
	if cfg.EmbedMaxRetries != 2 {
		t.Errorf("EmbedMaxRetries = %d", cfg.EmbedMaxRetries)
	}
	if cfg.CacheCapacity != 4096 {
		t.Errorf("CacheCapacity = %d", cfg.CacheCapacity)
	}
	if cfg.TopK != 6 {
		t.Errorf("TopK = %d", cfg.TopK)
	}
	if cfg.Workers != 6 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if !cfg.RerankEnabled {
		t.Error("RerankEnabled = false, want true default")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadRequiresVectorSize(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("Load() without VECTOR_SIZE expected error")
	}

	t.Setenv("VECTOR_SIZE", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with non-numeric VECTOR_SIZE expected error")
	}

	t.Setenv("VECTOR_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with zero VECTOR_SIZE expected error")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VECTOR_SIZE", "1024")
	t.Setenv("INDEX_BACKEND", "qdrant")
	t.Setenv("QDRANT_COLLECTION", "custom_docs")
	t.Setenv("EMBED_TIMEOUT", "30s")
	t.Setenv("RETRIEVE_TOP_K", "10")
	t.Setenv("RERANK_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IndexBackend != IndexBackendQdrant {
		t.Errorf("IndexBackend = %q", cfg.IndexBackend)
	}
	if cfg.QdrantCollection != "custom_docs" {
		t.Errorf("QdrantCollection = %q", cfg.QdrantCollection)
	}
	if cfg.EmbedTimeout != 30*time.Second {
		t.Errorf("EmbedTimeout = %v", cfg.EmbedTimeout)
	}
	if cfg.TopK != 10 {
		t.Errorf("TopK = %d", cfg.TopK)
	}
	if cfg.RerankEnabled {
		t.Error("RerankEnabled = true, want false")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown index backend", key: "INDEX_BACKEND", value: "postgres"},
		{name: "unknown log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "bad timeout", key: "EMBED_TIMEOUT", value: "soon"},
		{name: "negative retries", key: "EMBED_MAX_RETRIES", value: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("VECTOR_SIZE", "768")
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q expected error", tt.key, tt.value)
			}
		})
	}
}
