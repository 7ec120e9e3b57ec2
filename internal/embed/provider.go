package embed

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_provider.go -package=mocks vocrag/internal/embed Provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

var (
	// ErrComputeFailed is returned when the embedding provider fails to
	// produce a vector. Nothing is cached on this error.
	ErrComputeFailed = errors.New("embedding compute failed")
	// ErrTimeout is returned when a provider call exceeds the caller's
	// deadline. Retryable by the caller.
	ErrTimeout = errors.New("embedding timeout")
)

// Provider computes a dense vector for a text under a given model.
// Implementations are injected once at construction time so tests can
// substitute deterministic doubles.
type Provider interface {
	Embed(ctx context.Context, modelID, text string) ([]float32, error)
}

// HTTPProviderConfig configures the OpenAI-compatible embeddings client.
type HTTPProviderConfig struct {
	BaseURL string
	APIKey  string
	// ExpectedSize is the vector dimension the model must return; a
	// mismatch is a provider failure, not a silently accepted vector.
	ExpectedSize int
	// Timeout bounds a single provider call including retries.
	Timeout time.Duration
	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries uint64
}

// HTTPProvider calls an OpenAI-compatible /v1/embeddings endpoint with
// exponential-backoff retries and a circuit breaker so a dead provider
// fails fast instead of stalling every ingest worker.
type HTTPProvider struct {
	cfg     HTTPProviderConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPProvider creates an embeddings client.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: http.DefaultClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "embeddings",
		}),
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed computes a vector for text under modelID. Transient failures are
// retried with exponential backoff; exhausted retries surface as
// ErrComputeFailed, deadline expiry as ErrTimeout.
func (p *HTTPProvider) Embed(ctx context.Context, modelID, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.cfg.MaxRetries),
		callCtx,
	)

	vec, err := backoff.RetryWithData(func() ([]float32, error) {
		out, err := p.breaker.Execute(func() (any, error) {
			return p.embedOnce(callCtx, modelID, text)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return out.([]float32), nil
	}, policy)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrComputeFailed, err)
	}
	return vec, nil
}

func (p *HTTPProvider) embedOnce(ctx context.Context, modelID, text string) ([]float32, error) {
	payload := embeddingsRequest{Model: modelID, Input: []string{text}}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/v1/embeddings", p.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.cfg.APIKey))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		reqErr := fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(reqErr)
		}
		return nil, reqErr
	}

	var decoded embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Data) != 1 {
		return nil, backoff.Permanent(fmt.Errorf("expected 1 embedding, got %d", len(decoded.Data)))
	}

	raw := decoded.Data[0].Embedding
	if p.cfg.ExpectedSize > 0 && len(raw) != p.cfg.ExpectedSize {
		return nil, backoff.Permanent(fmt.Errorf("embedding has size %d, expected %d", len(raw), p.cfg.ExpectedSize))
	}
	if len(raw) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("embedding missing or empty"))
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

var _ Provider = (*HTTPProvider)(nil)
