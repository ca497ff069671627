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

const (
	defaultOpenAIBase = "https://api.openai.com"
)

// ResponsesClient wraps OpenAI-compatible Responses API calls.
type ResponsesClient struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
}

// NewResponsesClient creates a Responses API client with safe defaults.
func NewResponsesClient(apiBase, apiKey string, httpClient *http.Client) *ResponsesClient {
	trimmedBase := strings.TrimSpace(apiBase)
	if trimmedBase == "" {
		trimmedBase = defaultOpenAIBase
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &ResponsesClient{
		apiBase:    strings.TrimRight(trimmedBase, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

// Generate sends a Responses API request and returns aggregated text output.
func (c *ResponsesClient) Generate(ctx context.Context, req Request) (string, error) {
	if c == nil {
		return "", errors.New("responses client is nil")
	}
	if c.apiKey == "" {
		return "", errors.New("missing api key")
	}
	if err := validateRequest(req); err != nil {
		return "", err
	}

	payload := map[string]any{
		"model": req.Model,
		"input": req.Prompt,
	}
	if strings.TrimSpace(req.System) != "" {
		payload["instructions"] = req.System
	}
	if strings.TrimSpace(req.CacheKey) != "" {
		payload["prompt_cache_key"] = req.CacheKey
	}
	if req.MaxTokens > 0 {
		payload["max_output_tokens"] = req.MaxTokens
	}
	if req.Temperature >= 0 {
		payload["temperature"] = req.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal responses request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build responses request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "call responses endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Endpoint: "responses", StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var decoded responsesCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.Wrap(err, "decode responses response")
	}

	text := strings.TrimSpace(decoded.OutputText)
	if text != "" {
		return text, nil
	}

	text = strings.TrimSpace(decoded.AggregatedText())
	if text == "" {
		return "", errors.New("responses output text is empty")
	}

	return text, nil
}

type responsesCreateResponse struct {
	OutputText string                `json:"output_text"`
	Output     []responsesOutputItem `json:"output"`
}

func (r responsesCreateResponse) AggregatedText() string {
	parts := make([]string, 0, len(r.Output))
	for _, item := range r.Output {
		for _, content := range item.Content {
			if strings.EqualFold(content.Type, "output_text") || strings.EqualFold(content.Type, "text") {
				if text := strings.TrimSpace(content.Text); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}

	return strings.Join(parts, "\n")
}

type responsesOutputItem struct {
	Type    string                   `json:"type"`
	Content []responsesOutputContent `json:"content"`
}

type responsesOutputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
