// Package llm provides text generation clients for OpenAI-compatible and Ollama endpoints.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
)

// Provider names accepted by NewClient.
const (
	ProviderResponses = "responses"
	ProviderChat      = "chat"
	ProviderOllama    = "ollama"
)

// Request describes one text generation request independent of the wire protocol.
type Request struct {
	Model       string
	System      string
	Prompt      string
	CacheKey    string
	MaxTokens   int
	Temperature float64
}

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Temporary reports whether the call may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NewClient builds a generation client for provider.
func NewClient(provider, apiBase, apiKey string, timeout time.Duration) (Client, error) {
	httpClient, err := newHTTPClient(timeout)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderResponses:
		return NewResponsesClient(apiBase, apiKey, httpClient), nil
	case ProviderChat:
		return NewChatClient(apiBase, apiKey, httpClient), nil
	case ProviderOllama:
		return NewOllamaClient(apiBase, httpClient), nil
	default:
		return nil, errors.Errorf("unknown llm provider %q", provider)
	}
}

func newHTTPClient(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(timeout))
	if err != nil {
		return nil, errors.Wrap(err, "new http client")
	}

	return httpClient, nil
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("missing model")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return errors.New("missing prompt")
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
