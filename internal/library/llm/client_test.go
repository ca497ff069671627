package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

// TestResponsesClientGenerate verifies the client parses output_text and sends the expected request shape.
func TestResponsesClientGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/responses", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "gpt-4o-mini", payload["model"])
		require.Equal(t, "hello", payload["input"])
		require.Equal(t, "be brief", payload["instructions"])
		require.EqualValues(t, 64, payload["max_output_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output_text":"ok"}`))
	}))
	defer server.Close()

	client := NewResponsesClient(server.URL, "sk-test", nil)
	text, err := client.Generate(context.Background(), Request{
		Model:     "gpt-4o-mini",
		System:    "be brief",
		Prompt:    "hello",
		MaxTokens: 64,
	})
	require.NoError(t, err)
	require.Equal(t, "ok", text)
}

// TestResponsesCreateResponseAggregatedText verifies fallback aggregation from output content.
func TestResponsesCreateResponseAggregatedText(t *testing.T) {
	t.Parallel()

	resp := responsesCreateResponse{
		Output: []responsesOutputItem{
			{
				Type: "message",
				Content: []responsesOutputContent{
					{Type: "output_text", Text: "line1"},
					{Type: "text", Text: "line2"},
				},
			},
		},
	}

	require.Equal(t, "line1\nline2", resp.AggregatedText())
}

// TestChatClientGenerate verifies chat completions requests carry system and user turns.
func TestChatClientGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var payload chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Messages, 2)
		require.Equal(t, "system", payload.Messages[0].Role)
		require.Equal(t, "user", payload.Messages[1].Role)
		require.NotNil(t, payload.Temperature)
		require.InDelta(t, 0.1, *payload.Temperature, 1e-9)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" explained "}}]}`))
	}))
	defer server.Close()

	client := NewChatClient(server.URL, "gsk-test", nil)
	text, err := client.Generate(context.Background(), Request{
		Model:       "llama3-8b-8192",
		System:      "you explain code",
		Prompt:      "what does login do",
		Temperature: 0.1,
	})
	require.NoError(t, err)
	require.Equal(t, "explained", text)
}

// TestChatClientStatusError verifies non-2xx answers surface a StatusError.
func TestChatClientStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	client := NewChatClient(server.URL, "gsk-test", nil)
	_, err := client.Generate(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	require.True(t, statusErr.Temporary())
}

// TestOllamaClientGenerate verifies the ollama chat request shape and response parsing.
func TestOllamaClientGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var payload ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.False(t, payload.Stream)
		require.EqualValues(t, 200, payload.Options["num_predict"])

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ollama says hi"}}`))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, nil)
	text, err := client.Generate(context.Background(), Request{Model: "llama3", Prompt: "hi", MaxTokens: 200})
	require.NoError(t, err)
	require.Equal(t, "ollama says hi", text)
}

// TestNewClientProviders verifies provider selection and rejection of unknown providers.
func TestNewClientProviders(t *testing.T) {
	t.Parallel()

	client, err := NewClient("", "", "k", time.Second)
	require.NoError(t, err)
	require.IsType(t, &ResponsesClient{}, client)

	client, err = NewClient("chat", "", "k", time.Second)
	require.NoError(t, err)
	require.IsType(t, &ChatClient{}, client)

	client, err = NewClient("OLLAMA", "", "", time.Second)
	require.NoError(t, err)
	require.IsType(t, &OllamaClient{}, client)

	_, err = NewClient("bard", "", "", time.Second)
	require.Error(t, err)
}

// TestValidateRequest verifies model and prompt are required.
func TestValidateRequest(t *testing.T) {
	t.Parallel()

	require.Error(t, validateRequest(Request{Prompt: "p"}))
	require.Error(t, validateRequest(Request{Model: "m", Prompt: "  "}))
	require.NoError(t, validateRequest(Request{Model: "m", Prompt: "p"}))
}
