package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	pgvector "github.com/pgvector/pgvector-go"
)

// StatusError is returned when an embeddings endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("embeddings endpoint status %d", e.StatusCode)
	}
	return fmt.Sprintf("embeddings endpoint status %d: %s", e.StatusCode, body)
}

// Temporary reports whether the call may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func parseRetryAfter(header http.Header) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// RetryEmbedder retries failed calls of the wrapped embedder with capped exponential backoff.
type RetryEmbedder struct {
	inner      Embedder
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetryEmbedder wraps inner. maxRetries is the number of retries after the first attempt.
func NewRetryEmbedder(inner Embedder, maxRetries int, baseDelay, maxDelay time.Duration) *RetryEmbedder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &RetryEmbedder{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		sleep:      sleepContext,
	}
}

// Model implements Embedder.
func (r *RetryEmbedder) Model() string {
	return r.inner.Model()
}

// EmbedTexts implements Embedder.
func (r *RetryEmbedder) EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		vectors, err := r.inner.EmbedTexts(ctx, inputs)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !isRetryable(ctx, err) || attempt == r.maxRetries {
			break
		}
		if err := r.sleep(ctx, r.delay(attempt, err)); err != nil {
			return nil, errors.Wrapf(lastErr, "embedding aborted after %d attempts", attempt+1)
		}
	}

	return nil, errors.Wrap(lastErr, "embedding failed")
}

func (r *RetryEmbedder) delay(attempt int, err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		if statusErr.RetryAfter > r.maxDelay {
			return r.maxDelay
		}
		return statusErr.RetryAfter
	}

	d := r.baseDelay << attempt
	if d <= 0 || d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
