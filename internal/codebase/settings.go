package codebase

import (
	"fmt"
	"os"
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"

	"github.com/JxTIN21/Codebase/internal/codebase/chunker"
	"github.com/JxTIN21/Codebase/internal/codebase/embedding"
)

// Vector index backends.
const (
	BackendSQL    = "sql"
	BackendQdrant = "qdrant"
)

// Settings captures runtime configuration for codebase indexing and search.
type Settings struct {
	LockTimeout    time.Duration
	StatusCacheTTL time.Duration
	Upload         UploadSettings
	Index          IndexSettings
	Search         SearchSettings
	Synthesis      SynthesisSettings
	Retention      RetentionSettings
	Archive        ArchiveSettings
	Embedding      embedding.Config
	LLM            LLMSettings
}

// UploadSettings bounds what an upload may contain.
type UploadSettings struct {
	MaxFileBytes   int64
	MaxUploadBytes int64
	MaxFiles       int
	Extensions     []string
}

// IndexSettings configures index worker behavior.
type IndexSettings struct {
	Workers       int
	BatchSize     int
	Concurrency   int
	RetryMax      int
	RetryBackoff  time.Duration
	PollInterval  time.Duration
	// ClaimLease is how long a claimed job may stay processing before
	// another worker takes it over.
	ClaimLease    time.Duration
	ChunkMaxLines int
	ChunkMaxBytes int
}

// SearchSettings captures query-time configuration.
type SearchSettings struct {
	Backend            string
	TopKDefault        int
	TopKMax            int
	SnippetChars       int
	// MinScore drops hits whose normalized score is below it. Zero keeps every hit.
	MinScore           float64
	InlineContentBytes int64
	QueryTimeout       time.Duration
	RetrievalTimeout   time.Duration
	Qdrant             QdrantSettings
}

// QdrantSettings configures the external vector index.
type QdrantSettings struct {
	Host             string
	Port             int
	APIKey           string
	UseTLS           bool
	CollectionPrefix string
}

// SynthesisSettings configures explanation generation.
type SynthesisSettings struct {
	Enabled              bool
	Timeout              time.Duration
	ContextChunks        int
	ContextCharsPerChunk int
	ContextBudgetChars   int
	MaxTokens            int
	Temperature          float64
	Examples             int
	ExampleChars         int
	ExampleMaxTokens     int
}

// RetentionSettings configures eviction of idle codebases. A zero TTL keeps codebases forever.
type RetentionSettings struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// ArchiveSettings configures the optional object-store copy of raw uploads.
type ArchiveSettings struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// LLMSettings selects the generation provider.
type LLMSettings struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// LoadSettingsFromConfig reads configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		LockTimeout:    time.Duration(intFromConfig("settings.codebase.lock_timeout_ms", 5000)) * time.Millisecond,
		StatusCacheTTL: time.Duration(intFromConfig("settings.codebase.status_cache_ttl_seconds", 3600)) * time.Second,
		Upload: UploadSettings{
			MaxFileBytes:   int64FromConfig("settings.codebase.upload.max_file_bytes", 10*1024*1024),
			MaxUploadBytes: int64FromConfig("settings.codebase.upload.max_upload_bytes", 200*1024*1024),
			MaxFiles:       intFromConfig("settings.codebase.upload.max_files", 5000),
			Extensions:     gconfig.S.GetStringSlice("settings.codebase.upload.extensions"),
		},
		Index: IndexSettings{
			Workers:       intFromConfig("settings.codebase.index.workers", 2),
			BatchSize:     intFromConfig("settings.codebase.index.batch_size", 32),
			Concurrency:   intFromConfig("settings.codebase.index.concurrency", 4),
			RetryMax:      intFromConfig("settings.codebase.index.retry_max", 2),
			RetryBackoff:  time.Duration(intFromConfig("settings.codebase.index.retry_backoff_ms", 1000)) * time.Millisecond,
			PollInterval:  time.Duration(intFromConfig("settings.codebase.index.poll_interval_ms", 500)) * time.Millisecond,
			ClaimLease:    time.Duration(intFromConfig("settings.codebase.index.claim_lease_seconds", 300)) * time.Second,
			ChunkMaxLines: intFromConfig("settings.codebase.index.chunk_max_lines", chunker.DefaultMaxLines),
			ChunkMaxBytes: intFromConfig("settings.codebase.index.chunk_max_bytes", chunker.DefaultMaxBytes),
		},
		Search: SearchSettings{
			Backend:            strings.ToLower(strings.TrimSpace(gconfig.S.GetString("settings.codebase.search.backend"))),
			TopKDefault:        intFromConfig("settings.codebase.search.top_k_default", 10),
			TopKMax:            intFromConfig("settings.codebase.search.top_k_max", 50),
			SnippetChars:       intFromConfig("settings.codebase.search.snippet_chars", 500),
			MinScore:           floatFromConfig("settings.codebase.search.min_score", 0),
			InlineContentBytes: int64FromConfig("settings.codebase.search.inline_content_bytes", 8192),
			QueryTimeout:       time.Duration(intFromConfig("settings.codebase.search.query_timeout_ms", 30000)) * time.Millisecond,
			RetrievalTimeout:   time.Duration(intFromConfig("settings.codebase.search.retrieval_timeout_ms", 10000)) * time.Millisecond,
			Qdrant: QdrantSettings{
				Host:             strings.TrimSpace(gconfig.S.GetString("settings.codebase.search.qdrant.host")),
				Port:             intFromConfig("settings.codebase.search.qdrant.port", 6334),
				APIKey:           strings.TrimSpace(gconfig.S.GetString("settings.codebase.search.qdrant.api_key")),
				UseTLS:           boolFromConfig("settings.codebase.search.qdrant.use_tls", false),
				CollectionPrefix: strings.TrimSpace(gconfig.S.GetString("settings.codebase.search.qdrant.collection_prefix")),
			},
		},
		Synthesis: SynthesisSettings{
			Enabled:              boolFromConfig("settings.codebase.synthesis.enabled", true),
			Timeout:              time.Duration(intFromConfig("settings.codebase.synthesis.timeout_ms", 20000)) * time.Millisecond,
			ContextChunks:        intFromConfig("settings.codebase.synthesis.context_chunks", 5),
			ContextCharsPerChunk: intFromConfig("settings.codebase.synthesis.context_chars_per_chunk", 800),
			ContextBudgetChars:   intFromConfig("settings.codebase.synthesis.context_budget_chars", 6000),
			MaxTokens:            intFromConfig("settings.codebase.synthesis.max_tokens", 1024),
			Temperature:          floatFromConfig("settings.codebase.synthesis.temperature", 0.1),
			Examples:             intFromConfig("settings.codebase.synthesis.examples", 3),
			ExampleChars:         intFromConfig("settings.codebase.synthesis.example_chars", 500),
			ExampleMaxTokens:     intFromConfig("settings.codebase.synthesis.example_max_tokens", 200),
		},
		Retention: RetentionSettings{
			TTL:           time.Duration(intFromConfig("settings.codebase.retention.ttl_minutes", 24*60)) * time.Minute,
			SweepInterval: time.Duration(intFromConfig("settings.codebase.retention.sweep_interval_seconds", 600)) * time.Second,
		},
		Archive: ArchiveSettings{
			Enabled:   boolFromConfig("settings.codebase.archive.enabled", false),
			Endpoint:  strings.TrimSpace(gconfig.S.GetString("settings.codebase.archive.endpoint")),
			AccessKey: strings.TrimSpace(gconfig.S.GetString("settings.codebase.archive.access_key")),
			SecretKey: strings.TrimSpace(gconfig.S.GetString("settings.codebase.archive.secret_key")),
			Bucket:    strings.TrimSpace(gconfig.S.GetString("settings.codebase.archive.bucket")),
			Prefix:    strings.TrimSpace(gconfig.S.GetString("settings.codebase.archive.prefix")),
			UseSSL:    boolFromConfig("settings.codebase.archive.use_ssl", true),
		},
		Embedding: embedding.Config{
			Provider:       strings.ToLower(strings.TrimSpace(gconfig.S.GetString("settings.embedding.provider"))),
			BaseURL:        strings.TrimSpace(gconfig.S.GetString("settings.embedding.base_url")),
			APIKey:         stringFromConfigOrEnv("settings.embedding.api_key", "CODEBASE_EMBEDDING_API_KEY"),
			Model:          strings.TrimSpace(gconfig.S.GetString("settings.embedding.model")),
			Dimensions:     intFromConfig("settings.embedding.dimensions", 384),
			BatchSize:      intFromConfig("settings.embedding.batch_size", 32),
			Timeout:        time.Duration(intFromConfig("settings.embedding.timeout_ms", 60000)) * time.Millisecond,
			MaxRetries:     intFromConfig("settings.embedding.retry_max", 3),
			RetryBaseDelay: time.Duration(intFromConfig("settings.embedding.retry_base_delay_ms", 200)) * time.Millisecond,
			RetryMaxDelay:  time.Duration(intFromConfig("settings.embedding.retry_max_delay_ms", 5000)) * time.Millisecond,
		},
		LLM: LLMSettings{
			Provider: strings.ToLower(strings.TrimSpace(gconfig.S.GetString("settings.llm.provider"))),
			BaseURL:  strings.TrimSpace(gconfig.S.GetString("settings.llm.base_url")),
			APIKey:   stringFromConfigOrEnv("settings.llm.api_key", "CODEBASE_LLM_API_KEY"),
			Model:    strings.TrimSpace(gconfig.S.GetString("settings.llm.model")),
			Timeout:  time.Duration(intFromConfig("settings.llm.timeout_ms", 30000)) * time.Millisecond,
		},
	}

	settings.applyDefaults()
	return settings
}

// applyDefaults clamps invalid values back to their defaults.
func (settings *Settings) applyDefaults() {
	if settings.LockTimeout <= 0 {
		settings.LockTimeout = 5 * time.Second
	}
	if settings.StatusCacheTTL <= 0 {
		settings.StatusCacheTTL = time.Hour
	}
	if settings.Upload.MaxFileBytes <= 0 {
		settings.Upload.MaxFileBytes = 10 * 1024 * 1024
	}
	if settings.Upload.MaxUploadBytes <= 0 {
		settings.Upload.MaxUploadBytes = 200 * 1024 * 1024
	}
	if settings.Upload.MaxFiles <= 0 {
		settings.Upload.MaxFiles = 5000
	}
	if len(settings.Upload.Extensions) == 0 {
		settings.Upload.Extensions = append([]string(nil), chunker.DefaultSupportedExtensions...)
	}
	if settings.Index.Workers < 0 {
		settings.Index.Workers = 0
	}
	if settings.Index.BatchSize <= 0 {
		settings.Index.BatchSize = 32
	}
	if settings.Index.Concurrency <= 0 {
		settings.Index.Concurrency = 4
	}
	if settings.Index.RetryMax < 0 {
		settings.Index.RetryMax = 0
	}
	if settings.Index.RetryBackoff <= 0 {
		settings.Index.RetryBackoff = time.Second
	}
	if settings.Index.PollInterval <= 0 {
		settings.Index.PollInterval = 500 * time.Millisecond
	}
	if settings.Index.ClaimLease <= 0 {
		settings.Index.ClaimLease = 5 * time.Minute
	}
	if settings.Index.ChunkMaxLines <= 0 {
		settings.Index.ChunkMaxLines = chunker.DefaultMaxLines
	}
	if settings.Index.ChunkMaxBytes <= 0 {
		settings.Index.ChunkMaxBytes = chunker.DefaultMaxBytes
	}
	if settings.Search.Backend == "" {
		settings.Search.Backend = BackendSQL
	}
	if settings.Search.TopKMax <= 0 {
		settings.Search.TopKMax = 50
	}
	if settings.Search.TopKDefault <= 0 {
		settings.Search.TopKDefault = 10
	}
	if settings.Search.TopKDefault > settings.Search.TopKMax {
		settings.Search.TopKDefault = settings.Search.TopKMax
	}
	if settings.Search.SnippetChars <= 0 {
		settings.Search.SnippetChars = 500
	}
	if settings.Search.MinScore < 0 || settings.Search.MinScore > 1 {
		settings.Search.MinScore = 0
	}
	if settings.Search.InlineContentBytes < 0 {
		settings.Search.InlineContentBytes = 0
	}
	if settings.Search.QueryTimeout <= 0 {
		settings.Search.QueryTimeout = 30 * time.Second
	}
	if settings.Search.RetrievalTimeout <= 0 || settings.Search.RetrievalTimeout > settings.Search.QueryTimeout {
		settings.Search.RetrievalTimeout = settings.Search.QueryTimeout
	}
	if settings.Search.Qdrant.Port <= 0 {
		settings.Search.Qdrant.Port = 6334
	}
	if settings.Search.Qdrant.CollectionPrefix == "" {
		settings.Search.Qdrant.CollectionPrefix = "codebase_"
	}
	if settings.Synthesis.Timeout <= 0 {
		settings.Synthesis.Timeout = 20 * time.Second
	}
	if settings.Synthesis.ContextChunks <= 0 {
		settings.Synthesis.ContextChunks = 5
	}
	if settings.Synthesis.ContextCharsPerChunk <= 0 {
		settings.Synthesis.ContextCharsPerChunk = 800
	}
	if settings.Synthesis.ContextBudgetChars <= 0 {
		settings.Synthesis.ContextBudgetChars = 6000
	}
	if settings.Synthesis.MaxTokens <= 0 {
		settings.Synthesis.MaxTokens = 1024
	}
	if settings.Synthesis.Temperature < 0 || settings.Synthesis.Temperature > 2 {
		settings.Synthesis.Temperature = 0.1
	}
	if settings.Synthesis.Examples < 0 {
		settings.Synthesis.Examples = 0
	}
	if settings.Synthesis.ExampleChars <= 0 {
		settings.Synthesis.ExampleChars = 500
	}
	if settings.Synthesis.ExampleMaxTokens <= 0 {
		settings.Synthesis.ExampleMaxTokens = 200
	}
	if settings.Retention.TTL < 0 {
		settings.Retention.TTL = 0
	}
	if settings.Retention.SweepInterval <= 0 {
		settings.Retention.SweepInterval = 10 * time.Minute
	}
	if settings.Archive.Prefix == "" {
		settings.Archive.Prefix = "codebases"
	}
	if settings.Embedding.Provider == "" {
		settings.Embedding.Provider = embedding.ProviderHashing
	}
	if settings.LLM.Provider == "" {
		settings.LLM.Provider = "responses"
	}
	if settings.LLM.Model == "" {
		settings.LLM.Model = "gpt-4o-mini"
	}
	if settings.LLM.Timeout <= 0 {
		settings.LLM.Timeout = 30 * time.Second
	}
}

// stringFromConfigOrEnv reads a string configuration value, falling back to an environment variable.
func stringFromConfigOrEnv(key, env string) string {
	if value := strings.TrimSpace(gconfig.S.GetString(key)); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv(env))
}

// intFromConfig reads an int configuration value with a default fallback.
func intFromConfig(key string, def int) int {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed int
		_, err := fmt.Sscanf(trimmed, "%d", &parsed)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// int64FromConfig reads an int64 configuration value with a default fallback.
func int64FromConfig(key string, def int64) int64 {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed int64
		_, err := fmt.Sscanf(trimmed, "%d", &parsed)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// boolFromConfig reads a boolean configuration value with a default fallback.
func boolFromConfig(key string, def bool) bool {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		default:
			return def
		}
	default:
		return def
	}
}

// floatFromConfig reads a float64 configuration value with a default fallback.
func floatFromConfig(key string, def float64) float64 {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed float64
		_, err := fmt.Sscanf(trimmed, "%f", &parsed)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}
