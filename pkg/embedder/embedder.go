package embedder

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is returned when setup of, or a call to, the
	// embedding backend fails.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderError is returned when the backend answers with something
	// that is not a usable embedding.
	ErrProviderError = errors.New("embedding provider error")
)

// Provider turns text into fixed-dimension vectors.
type Provider interface {
	// Initialize performs one-time setup. It is safe to call repeatedly.
	Initialize(ctx context.Context) error

	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension, or 0 while it is unknown.
	Dimension() int

	// ModelInfo identifies the backend and model that produced the vectors.
	ModelInfo() string
}

// Backend selects a Provider implementation.
type Backend string

const (
	BackendOpenAI Backend = "openai" // Remote, any OpenAI-compatible endpoint
	BackendHash   Backend = "hash"   // Local, offline feature hashing
)

// Config describes which provider to build and how.
type Config struct {
	Backend           Backend
	Model             string
	APIKey            string
	BaseURL           string  // Optional override, e.g. http://localhost:11434/v1 for Ollama
	Dimensions        int     // 0 lets the backend decide
	RequestsPerSecond float64 // 0 disables rate limiting
	MaxRetries        int
}

// New builds the provider selected by cfg.Backend.
func New(cfg Config) (Provider, error) {
	switch cfg.Backend {
	case BackendOpenAI, "":
		return NewOpenAIEmbedder(cfg)
	case BackendHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}
