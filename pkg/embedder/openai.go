package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder uses the OpenAI embeddings API, or any server speaking it.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	retry   RetryPolicy

	mu          sync.Mutex
	dim         int
	fixedDim    bool
	initialized bool
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrProviderUnavailable)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	e := &OpenAIEmbedder{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		retry:    DefaultRetryPolicy(),
		dim:      cfg.Dimensions,
		fixedDim: cfg.Dimensions > 0,
	}
	e.retry.MaxRetries = cfg.MaxRetries
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return e, nil
}

// Initialize issues a test request to verify the endpoint and learn the
// embedding dimension.
func (e *OpenAIEmbedder) Initialize(ctx context.Context) error {
	e.mu.Lock()
	done := e.initialized
	e.mu.Unlock()
	if done {
		return nil
	}

	if _, err := e.Embed(ctx, "health check"); err != nil {
		return fmt.Errorf("initialize %s: %w", e.ModelInfo(), err)
	}

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
	return nil
}

// Embed generates an embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	// Validate input
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: cannot embed empty text", ErrProviderError)
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	if e.fixedDim {
		req.Dimensions = e.dim
	}

	var resp openai.EmbeddingResponse
	err := withRetry(ctx, e.retry, func(ctx context.Context) error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, req)
		return err
	}, isTransient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding data returned from API", ErrProviderError)
	}

	v := make([]float32, len(resp.Data[0].Embedding))
	copy(v, resp.Data[0].Embedding)

	e.mu.Lock()
	if e.dim == 0 {
		e.dim = len(v)
	}
	dim := e.dim
	e.mu.Unlock()

	if len(v) != dim {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrProviderError, dim, len(v))
	}

	// L2 normalize (important for cosine similarity)
	l2normalize(v)

	return v, nil
}

// Dimension returns the embedding dimension
func (e *OpenAIEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// ModelInfo returns model information. A requested dimension is part of
// the identity, since the same model then yields differently sized vectors.
func (e *OpenAIEmbedder) ModelInfo() string {
	if e.fixedDim {
		return fmt.Sprintf("openai-%s-%d", e.model, e.dim)
	}
	return "openai-" + e.model
}

// isTransient reports whether a failed request is worth repeating.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	// Transport level failures
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// DefaultRetryPolicy is the backoff used for remote embedding calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}
