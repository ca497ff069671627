package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	errors "github.com/Laisky/errors/v2"
	pgvector "github.com/pgvector/pgvector-go"
)

// OllamaEmbedder calls the Ollama /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	batchSize  int
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder targeting the given Ollama instance and model.
func NewOllamaEmbedder(baseURL, model string, batchSize int, httpClient *http.Client) (*OllamaEmbedder, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(model) == "" {
		model = "nomic-embed-text"
	}

	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      strings.TrimSpace(model),
		batchSize:  batchSize,
		httpClient: httpClient,
	}, nil
}

// Model implements Embedder.
func (e *OllamaEmbedder) Model() string {
	return ProviderOllama + ":" + e.model
}

// EmbedTexts returns one vector per input.
func (e *OllamaEmbedder) EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no inputs provided for embedding")
	}

	vectors := make([]pgvector.Vector, 0, len(inputs))
	err := batches(inputs, e.batchSize, func(batch []string) error {
		embeddings, err := e.embed(ctx, batch)
		if err != nil {
			return err
		}
		if len(embeddings) != len(batch) {
			return errors.Errorf("ollama returned %d embeddings for %d inputs", len(embeddings), len(batch))
		}
		for _, values := range embeddings {
			vectors = append(vectors, pgvector.NewVector(values))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: batch})
	if err != nil {
		return nil, errors.Wrap(err, "marshal embed request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build embed request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "ollama embed request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, RetryAfter: parseRetryAfter(resp.Header), Body: string(respBody)}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode embed response")
	}

	return result.Embeddings, nil
}
