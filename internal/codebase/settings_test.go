package codebase

import (
	"testing"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/stretchr/testify/require"

	"github.com/JxTIN21/Codebase/internal/codebase/chunker"
)

func TestLoadSettingsDefaults(t *testing.T) {
	settings := LoadSettingsFromConfig()

	require.Equal(t, BackendSQL, settings.Search.Backend)
	require.Equal(t, 10, settings.Search.TopKDefault)
	require.Equal(t, 50, settings.Search.TopKMax)
	require.EqualValues(t, 8192, settings.Search.InlineContentBytes)
	require.Equal(t, 24*time.Hour, settings.Retention.TTL)
	require.Equal(t, chunker.DefaultSupportedExtensions, settings.Upload.Extensions)
	require.Equal(t, "codebase_", settings.Search.Qdrant.CollectionPrefix)
	require.True(t, settings.Synthesis.Enabled)
	require.Equal(t, 5*time.Minute, settings.Index.ClaimLease)
	require.Zero(t, settings.Search.MinScore)
}

func TestLoadSettingsFromConfigValues(t *testing.T) {
	gconfig.S.Set("settings.codebase.search.top_k_default", "80")
	gconfig.S.Set("settings.codebase.search.top_k_max", 20)
	gconfig.S.Set("settings.codebase.synthesis.enabled", "no")
	gconfig.S.Set("settings.codebase.retention.ttl_minutes", 0)
	t.Cleanup(func() {
		gconfig.S.Set("settings.codebase.search.top_k_default", nil)
		gconfig.S.Set("settings.codebase.search.top_k_max", nil)
		gconfig.S.Set("settings.codebase.synthesis.enabled", nil)
		gconfig.S.Set("settings.codebase.retention.ttl_minutes", nil)
	})

	settings := LoadSettingsFromConfig()
	require.Equal(t, 20, settings.Search.TopKMax)
	require.Equal(t, 20, settings.Search.TopKDefault, "default is clamped to max")
	require.False(t, settings.Synthesis.Enabled)
	require.Zero(t, settings.Retention.TTL)
}

func TestApplyDefaultsClampsInvalid(t *testing.T) {
	settings := Settings{
		Index: IndexSettings{Workers: -3, RetryMax: -1, ClaimLease: -time.Second},
		Search: SearchSettings{
			QueryTimeout:     time.Second,
			RetrievalTimeout: time.Minute,
			MinScore:         1.5,
		},
		Synthesis: SynthesisSettings{Temperature: 5},
	}
	settings.applyDefaults()

	require.Zero(t, settings.Index.Workers)
	require.Zero(t, settings.Index.RetryMax)
	require.Equal(t, time.Second, settings.Search.RetrievalTimeout)
	require.Equal(t, 0.1, settings.Synthesis.Temperature)
	require.Equal(t, 500, settings.Search.SnippetChars)
	require.Equal(t, 5*time.Minute, settings.Index.ClaimLease)
	require.Zero(t, settings.Search.MinScore)
}

func TestLoadSettingsMinScore(t *testing.T) {
	gconfig.S.Set("settings.codebase.search.min_score", 0.625)
	gconfig.S.Set("settings.codebase.index.claim_lease_seconds", 30)
	t.Cleanup(func() {
		gconfig.S.Set("settings.codebase.search.min_score", nil)
		gconfig.S.Set("settings.codebase.index.claim_lease_seconds", nil)
	})

	settings := LoadSettingsFromConfig()
	require.Equal(t, 0.625, settings.Search.MinScore)
	require.Equal(t, 30*time.Second, settings.Index.ClaimLease)
}
