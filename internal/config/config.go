package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Index backends selectable at startup.
const (
	IndexBackendMemory = "memory"
	IndexBackendQdrant = "qdrant"
)

// Config holds all tunable knobs for the retrieval core and its CLIs.
// Defaults are documented on each env var; production values must be tuned
// empirically against the corpus.
type Config struct {
	DocsDir string

	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModelID string
	VectorSize       int
	EmbedTimeout     time.Duration
	EmbedMaxRetries  uint64

	IndexBackend     string
	QdrantURL        string
	QdrantCollection string

	CacheCapacity int
	CacheDBPath   string // empty disables cache persistence

	TopK          int
	RerankLimit   int
	RerankEnabled bool
	Workers       int

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults
// for optional fields and validating required ones. A .env file in the
// current directory or a parent is loaded automatically; variables already
// set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		DocsDir:          getEnv("DOCS_DIR", "./data/docs"),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModelID: getEnv("EMBEDDING_MODEL_ID", "nomic-embed-text"),
		IndexBackend:     getEnv("INDEX_BACKEND", IndexBackendMemory),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "voc_docs"),
		CacheDBPath:      getEnv("CACHE_DB_PATH", ""),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	var err error
	// VECTOR_SIZE must match the embedding model's output dimension; there
	// is no safe default because a mismatch poisons the whole index.
	vectorSizeStr := getEnv("VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("VECTOR_SIZE is required")
	}
	cfg.VectorSize, err = strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("VECTOR_SIZE must be a valid integer: %w", err)
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}

	if cfg.IndexBackend != IndexBackendMemory && cfg.IndexBackend != IndexBackendQdrant {
		return nil, fmt.Errorf("INDEX_BACKEND must be %q or %q, got %q",
			IndexBackendMemory, IndexBackendQdrant, cfg.IndexBackend)
	}

	if cfg.EmbedTimeout, err = getEnvDuration("EMBED_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	retries, err := getEnvInt("EMBED_MAX_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		return nil, fmt.Errorf("EMBED_MAX_RETRIES must not be negative")
	}
	cfg.EmbedMaxRetries = uint64(retries)

	if cfg.CacheCapacity, err = getEnvInt("CACHE_CAPACITY", 4096); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getEnvInt("RETRIEVE_TOP_K", 6); err != nil {
		return nil, err
	}
	if cfg.RerankLimit, err = getEnvInt("RERANK_LIMIT", 0); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("EMBED_MAX_WORKERS", 6); err != nil {
		return nil, err
	}
	cfg.RerankEnabled = getEnv("RERANK_ENABLED", "true") == "true"

	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return value, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return value, nil
}
