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

// ChatClient calls an OpenAI-compatible /v1/chat/completions endpoint (OpenAI, Groq, one-api).
type ChatClient struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// NewChatClient creates a chat completions client.
func NewChatClient(apiBase, apiKey string, httpClient *http.Client) *ChatClient {
	trimmedBase := strings.TrimSpace(apiBase)
	if trimmedBase == "" {
		trimmedBase = defaultOpenAIBase
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &ChatClient{
		apiBase:    strings.TrimRight(trimmedBase, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

// Generate sends the system and user prompts as one completion request.
func (c *ChatClient) Generate(ctx context.Context, req Request) (string, error) {
	if c == nil {
		return "", errors.New("chat client is nil")
	}
	if c.apiKey == "" {
		return "", errors.New("missing api key")
	}
	if err := validateRequest(req); err != nil {
		return "", err
	}

	payload := chatCompletionRequest{
		Model:     req.Model,
		Messages:  buildMessages(req),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature >= 0 {
		temperature := req.Temperature
		payload.Temperature = &temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build chat request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "call chat endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Endpoint: "chat", StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.Wrap(err, "decode chat response")
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat output text is empty")
	}

	return text, nil
}

func buildMessages(req Request) []Message {
	messages := make([]Message, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	return append(messages, Message{Role: "user", Content: req.Prompt})
}
