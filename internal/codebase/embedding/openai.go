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

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	httpClient *http.Client
}

// NewOpenAIEmbedder constructs an embedder for the configured model.
func NewOpenAIEmbedder(baseURL, apiKey, model string, batchSize int, httpClient *http.Client) (*OpenAIEmbedder, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBaseURL == "" {
		trimmedBaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing api key for embeddings")
	}
	if strings.TrimSpace(model) == "" {
		model = "text-embedding-3-small"
	}

	return &OpenAIEmbedder{
		baseURL:    trimmedBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		batchSize:  batchSize,
		httpClient: httpClient,
	}, nil
}

// Model implements Embedder.
func (e *OpenAIEmbedder) Model() string {
	return ProviderOpenAI + ":" + e.model
}

// EmbedTexts batches the input strings and returns their vector representations.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no inputs provided for embedding")
	}

	vectors := make([]pgvector.Vector, 0, len(inputs))
	err := batches(inputs, e.batchSize, func(batch []string) error {
		resp, err := e.createEmbeddings(ctx, batch)
		if err != nil {
			return errors.Wrap(err, "create embeddings")
		}
		if len(resp.Data) != len(batch) {
			return errors.Errorf("embeddings endpoint returned %d vectors for %d inputs", len(resp.Data), len(batch))
		}
		for _, data := range resp.Data {
			values := make([]float32, len(data.Embedding))
			for i, value := range data.Embedding {
				values[i] = float32(value)
			}
			vectors = append(vectors, pgvector.NewVector(values))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []embeddingsDataItem `json:"data"`
}

type embeddingsDataItem struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// createEmbeddings sends one embeddings batch request and parses vectors from response.
func (e *OpenAIEmbedder) createEmbeddings(ctx context.Context, batch []string) (*embeddingsResponse, error) {
	body, err := json.Marshal(embeddingsRequest{Model: e.model, Input: batch})
	if err != nil {
		return nil, errors.Wrap(err, "marshal embeddings request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build embeddings request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "call embeddings endpoint")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, &StatusError{StatusCode: httpResp.StatusCode, RetryAfter: parseRetryAfter(httpResp.Header), Body: string(respBody)}
	}

	var decoded embeddingsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "decode embeddings response")
	}

	// the API may answer out of order
	ordered := make([]embeddingsDataItem, len(decoded.Data))
	for i, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(ordered) {
			ordered[i] = item
			continue
		}
		ordered[item.Index] = item
	}
	decoded.Data = ordered

	return &decoded, nil
}
