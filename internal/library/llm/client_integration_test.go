package llm

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClientGenerateWithRealAPI optionally verifies real external API connectivity.
func TestClientGenerateWithRealAPI(t *testing.T) {
	t.Parallel()

	apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	apiBase := strings.TrimSpace(os.Getenv("LLM_API_BASE"))
	provider := strings.TrimSpace(os.Getenv("LLM_PROVIDER"))
	model := strings.TrimSpace(os.Getenv("LLM_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}

	if apiKey == "" {
		t.Skip("skip real API test: LLM_API_KEY is not set")
	}

	client, err := NewClient(provider, apiBase, apiKey, 20*time.Second)
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), Request{
		Model:       model,
		System:      "Return only one short sentence.",
		Prompt:      "Say hello in one short sentence.",
		MaxTokens:   64,
		Temperature: 0.1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(text))
}
