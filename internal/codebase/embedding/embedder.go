// Package embedding converts text into vectors for similarity search.
package embedding

import (
	"context"
	"net/http"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	pgvector "github.com/pgvector/pgvector-go"
)

// Provider names accepted by New.
const (
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderHashing = "hashing"
)

// Embedder converts text into vector representations.
// The same Embedder must be used for indexing and querying one codebase.
type Embedder interface {
	EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error)
	// Model identifies the embedding space, e.g. "openai:text-embedding-3-small".
	Model() string
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	// MaxRetries bounds retries of failed calls; zero disables retrying.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// New builds the configured provider wrapped with bounded retries.
func New(cfg Config) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		var httpClient *http.Client
		if httpClient, err = newHTTPClient(cfg.Timeout); err != nil {
			return nil, err
		}
		inner, err = NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.BatchSize, httpClient)
	case ProviderOllama:
		var httpClient *http.Client
		if httpClient, err = newHTTPClient(cfg.Timeout); err != nil {
			return nil, err
		}
		inner, err = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.BatchSize, httpClient)
	case "", ProviderHashing:
		inner = NewHashingEmbedder(cfg.Dimensions)
	default:
		return nil, errors.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries <= 0 {
		return inner, nil
	}
	return NewRetryEmbedder(inner, cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay), nil
}

func newHTTPClient(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	httpClient, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(timeout))
	if err != nil {
		return nil, errors.Wrap(err, "new http client")
	}
	return httpClient, nil
}

func batches(inputs []string, size int, fn func(batch []string) error) error {
	if size <= 0 {
		size = 32
	}
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}
		if err := fn(inputs[start:end]); err != nil {
			return err
		}
	}
	return nil
}
