package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	errors "github.com/Laisky/errors/v2"
)

const defaultOllamaBase = "http://localhost:11434"

// OllamaClient calls the Ollama /api/chat endpoint.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
}

// NewOllamaClient creates a chat client targeting the given Ollama instance.
func NewOllamaClient(baseURL string, httpClient *http.Client) *OllamaClient {
	trimmedBase := strings.TrimSpace(baseURL)
	if trimmedBase == "" {
		trimmedBase = defaultOllamaBase
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OllamaClient{
		baseURL:    strings.TrimRight(trimmedBase, "/"),
		httpClient: httpClient,
	}
}

// Generate sends the conversation to Ollama and returns the assistant's response.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	if c == nil {
		return "", errors.New("ollama client is nil")
	}
	if err := validateRequest(req); err != nil {
		return "", err
	}

	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature >= 0 {
		options["temperature"] = req.Temperature
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: buildMessages(req),
		Options:  options,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal ollama chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build ollama chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "ollama chat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Endpoint: "ollama chat", StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, "decode ollama chat response")
	}

	text := strings.TrimSpace(result.Message.Content)
	if text == "" {
		return "", errors.New("ollama output text is empty")
	}

	return text, nil
}
