package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidateStartupConfigWithGetterEmpty verifies empty configuration passes validation.
func TestValidateStartupConfigWithGetterEmpty(t *testing.T) {
	err := validateStartupConfigWithGetter(newMapConfigGetter(map[string]any{}))
	require.NoError(t, err)
}

// TestValidateStartupConfigWithGetterInvalidBoolean verifies invalid boolean configuration fails validation.
func TestValidateStartupConfigWithGetterInvalidBoolean(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"codebase": map[string]any{
				"synthesis": map[string]any{
					"enabled": "not-a-bool",
				},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "settings.codebase.synthesis.enabled")
}

// TestValidateStartupConfigWithGetterCollectsAllErrors verifies every violation is reported at once.
func TestValidateStartupConfigWithGetterCollectsAllErrors(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"codebase": map[string]any{
				"search": map[string]any{
					"backend":       "faiss",
					"top_k_default": 80,
					"top_k_max":     20,
					"min_score":     1.5,
				},
				"index": map[string]any{
					"concurrency":         0,
					"claim_lease_seconds": 0,
				},
			},
			"embedding": map[string]any{
				"provider": "word2vec",
				"base_url": "localhost:11434",
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	for _, key := range []string{
		"settings.codebase.search.backend",
		"settings.codebase.search.top_k_default must be <=",
		"settings.codebase.index.concurrency",
		"settings.codebase.search.min_score",
		"settings.codebase.index.claim_lease_seconds",
		"settings.embedding.provider",
		"settings.embedding.base_url",
	} {
		require.Contains(t, err.Error(), key)
	}
}

// TestValidateStartupConfigWithGetterConditionalRequirements verifies keys required by a selected feature.
func TestValidateStartupConfigWithGetterConditionalRequirements(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"db": map[string]any{
				"driver": "postgres",
			},
			"codebase": map[string]any{
				"search": map[string]any{
					"backend": "qdrant",
				},
				"archive": map[string]any{
					"enabled": true,
				},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "settings.db.postgres.addr is required")
	require.Contains(t, err.Error(), "settings.codebase.search.qdrant.host is required")
	require.Contains(t, err.Error(), "settings.codebase.archive.endpoint is required")
	require.Contains(t, err.Error(), "settings.codebase.archive.bucket is required")
}

// TestValidateStartupConfigWithGetterInvalidOrigins verifies CORS origins must be absolute.
func TestValidateStartupConfigWithGetterInvalidOrigins(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"web": map[string]any{
				"allowed_origins": []any{"*", "http://localhost:3000", "example.com"},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), `"example.com"`)
	require.NotContains(t, err.Error(), "localhost:3000")
}

// TestValidateStartupConfigWithGetterValidConfig verifies a complete valid configuration passes validation.
func TestValidateStartupConfigWithGetterValidConfig(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"db": map[string]any{
				"driver": "postgres",
				"postgres": map[string]any{
					"addr": "localhost:5432",
					"db":   "codebase",
				},
				"redis": map[string]any{
					"addr": "localhost:6379",
					"db":   0,
				},
			},
			"codebase": map[string]any{
				"upload": map[string]any{
					"max_file_bytes": 1048576,
					"extensions":     []any{".go", ".py"},
				},
				"index": map[string]any{
					"workers":         2,
					"chunk_max_lines": 80,
					"chunk_max_bytes": 3000,
				},
				"search": map[string]any{
					"backend":       "qdrant",
					"top_k_default": 10,
					"top_k_max":     50,
					"qdrant": map[string]any{
						"host": "qdrant",
						"port": 6334,
					},
				},
				"synthesis": map[string]any{
					"enabled":     "true",
					"temperature": 0.2,
				},
				"archive": map[string]any{
					"enabled":  true,
					"endpoint": "minio:9000",
					"bucket":   "codebases",
				},
			},
			"embedding": map[string]any{
				"provider": "openai",
				"base_url": "https://api.openai.com/v1",
				"model":    "text-embedding-3-small",
			},
			"llm": map[string]any{
				"provider": "chat",
				"model":    "gpt-4o-mini",
			},
			"web": map[string]any{
				"allowed_origins": []any{"http://localhost:3000"},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.NoError(t, err)
}

// newMapConfigGetter builds a dotted-path getter for nested map-based test configuration.
// It accepts a nested map and returns a getter function compatible with validateStartupConfigWithGetter.
func newMapConfigGetter(root map[string]any) configGetter {
	return func(key string) any {
		if key == "" {
			return nil
		}

		parts := strings.Split(key, ".")
		var current any = root
		for _, part := range parts {
			nextMap, ok := current.(map[string]any)
			if !ok {
				return nil
			}

			next, exists := nextMap[part]
			if !exists {
				return nil
			}
			current = next
		}

		return current
	}
}
