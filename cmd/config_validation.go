package cmd

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/internal/codebase/embedding"
	"github.com/JxTIN21/Codebase/internal/global"
	"github.com/JxTIN21/Codebase/internal/library/llm"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// Every violation is collected so one run reports all of them.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateDBConfig(get, &validationErrs)
	validateUploadConfig(get, &validationErrs)
	validateIndexConfig(get, &validationErrs)
	validateSearchConfig(get, &validationErrs)
	validateSynthesisConfig(get, &validationErrs)
	validateRetentionConfig(get, &validationErrs)
	validateArchiveConfig(get, &validationErrs)
	validateEmbeddingConfig(get, &validationErrs)
	validateLLMConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateDBConfig validates database and redis settings.
func validateDBConfig(get configGetter, errs *[]string) {
	validateOptionalStringIn(get, "settings.db.driver", []string{global.DBDriverPostgres, global.DBDriverSQLite}, errs)
	validateOptionalStringNonEmpty(get, "settings.db.sqlite.path", errs)
	validateOptionalHost(get, "settings.db.postgres.addr", errs)
	validateOptionalStringNonEmpty(get, "settings.db.postgres.db", errs)
	validateOptionalHost(get, "settings.db.redis.addr", errs)
	validateOptionalIntMin(get, "settings.db.redis.db", 0, errs)
	validateOptionalIntMin(get, "settings.codebase.lock_timeout_ms", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.status_cache_ttl_seconds", 1, errs)

	if driver, _ := get("settings.db.driver").(string); strings.EqualFold(strings.TrimSpace(driver), global.DBDriverPostgres) {
		if addr, _ := get("settings.db.postgres.addr").(string); strings.TrimSpace(addr) == "" {
			appendValidationError(errs, "settings.db.postgres.addr is required when settings.db.driver is postgres")
		}
	}
}

// validateUploadConfig validates upload limits.
func validateUploadConfig(get configGetter, errs *[]string) {
	validateOptionalInt64Min(get, "settings.codebase.upload.max_file_bytes", 1, errs)
	validateOptionalInt64Min(get, "settings.codebase.upload.max_upload_bytes", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.upload.max_files", 1, errs)

	raw := get("settings.codebase.upload.extensions")
	if raw == nil {
		return
	}
	items, ok := raw.([]any)
	if !ok {
		if _, isStrings := raw.([]string); !isStrings {
			appendValidationError(errs, "settings.codebase.upload.extensions must be a list")
		}
		return
	}
	for _, item := range items {
		ext, err := parseStrictString(item)
		if err != nil || !strings.HasPrefix(strings.TrimSpace(ext), ".") {
			appendValidationError(errs, "settings.codebase.upload.extensions entries must start with '.'")
			return
		}
	}
}

// validateIndexConfig validates worker pool and chunking settings.
func validateIndexConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.codebase.index.workers", 0, errs)
	validateOptionalIntMin(get, "settings.codebase.index.batch_size", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.index.concurrency", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.index.retry_max", 0, errs)
	validateOptionalIntMin(get, "settings.codebase.index.retry_backoff_ms", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.index.poll_interval_ms", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.index.claim_lease_seconds", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.index.chunk_max_lines", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.index.chunk_max_bytes", 64, errs)
}

// validateSearchConfig validates retrieval settings and the vector backend.
func validateSearchConfig(get configGetter, errs *[]string) {
	validateOptionalStringIn(get, "settings.codebase.search.backend", []string{codebase.BackendSQL, codebase.BackendQdrant}, errs)
	validateOptionalIntMin(get, "settings.codebase.search.top_k_default", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.search.top_k_max", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.search.snippet_chars", 1, errs)
	validateOptionalInt64Min(get, "settings.codebase.search.inline_content_bytes", 0, errs)
	validateOptionalIntMin(get, "settings.codebase.search.query_timeout_ms", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.search.retrieval_timeout_ms", 1, errs)
	validateOptionalFloatRange(get, "settings.codebase.search.min_score", 0, 1, true, true, errs)
	validateOptionalHost(get, "settings.codebase.search.qdrant.host", errs)
	validateOptionalIntMin(get, "settings.codebase.search.qdrant.port", 1, errs)
	validateOptionalBool(get, "settings.codebase.search.qdrant.use_tls", errs)

	if defaultK, err := parseStrictInt(get("settings.codebase.search.top_k_default")); err == nil {
		if maxK, err := parseStrictInt(get("settings.codebase.search.top_k_max")); err == nil && defaultK > maxK {
			appendValidationError(errs, "settings.codebase.search.top_k_default must be <= settings.codebase.search.top_k_max")
		}
	}
	if backend, _ := get("settings.codebase.search.backend").(string); strings.EqualFold(strings.TrimSpace(backend), codebase.BackendQdrant) {
		if host, _ := get("settings.codebase.search.qdrant.host").(string); strings.TrimSpace(host) == "" {
			appendValidationError(errs, "settings.codebase.search.qdrant.host is required when the qdrant backend is selected")
		}
	}
}

// validateSynthesisConfig validates explanation generation settings.
func validateSynthesisConfig(get configGetter, errs *[]string) {
	validateOptionalBool(get, "settings.codebase.synthesis.enabled", errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.timeout_ms", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.context_chunks", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.context_chars_per_chunk", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.context_budget_chars", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.max_tokens", 1, errs)
	validateOptionalFloatRange(get, "settings.codebase.synthesis.temperature", 0, 2, true, true, errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.examples", 0, errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.example_chars", 1, errs)
	validateOptionalIntMin(get, "settings.codebase.synthesis.example_max_tokens", 1, errs)
}

// validateRetentionConfig validates idle codebase eviction.
func validateRetentionConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.codebase.retention.ttl_minutes", 0, errs)
	validateOptionalIntMin(get, "settings.codebase.retention.sweep_interval_seconds", 1, errs)
}

// validateArchiveConfig validates the object-store archive.
func validateArchiveConfig(get configGetter, errs *[]string) {
	validateOptionalBool(get, "settings.codebase.archive.enabled", errs)
	validateOptionalBool(get, "settings.codebase.archive.use_ssl", errs)
	validateOptionalHost(get, "settings.codebase.archive.endpoint", errs)
	validateOptionalStringNonEmpty(get, "settings.codebase.archive.bucket", errs)

	enabled, ok := parseStrictBool(get("settings.codebase.archive.enabled"))
	if !ok || !enabled {
		return
	}
	for _, key := range []string{"settings.codebase.archive.endpoint", "settings.codebase.archive.bucket"} {
		if value, _ := get(key).(string); strings.TrimSpace(value) == "" {
			appendValidationError(errs, "%s is required when the archive is enabled", key)
		}
	}
}

// validateEmbeddingConfig validates the embedding provider.
func validateEmbeddingConfig(get configGetter, errs *[]string) {
	validateOptionalStringIn(get, "settings.embedding.provider",
		[]string{embedding.ProviderHashing, embedding.ProviderOpenAI, embedding.ProviderOllama}, errs)
	validateOptionalURL(get, "settings.embedding.base_url", errs)
	validateOptionalStringNonEmpty(get, "settings.embedding.model", errs)
	validateOptionalIntMin(get, "settings.embedding.dimensions", 1, errs)
	validateOptionalIntMin(get, "settings.embedding.batch_size", 1, errs)
	validateOptionalIntMin(get, "settings.embedding.timeout_ms", 1, errs)
	validateOptionalIntMin(get, "settings.embedding.retry_max", 0, errs)
	validateOptionalIntMin(get, "settings.embedding.retry_base_delay_ms", 1, errs)
	validateOptionalIntMin(get, "settings.embedding.retry_max_delay_ms", 1, errs)
}

// validateLLMConfig validates the generation provider.
func validateLLMConfig(get configGetter, errs *[]string) {
	validateOptionalStringIn(get, "settings.llm.provider",
		[]string{global.LLMProviderNone, llm.ProviderResponses, llm.ProviderChat, llm.ProviderOllama}, errs)
	validateOptionalURL(get, "settings.llm.base_url", errs)
	validateOptionalStringNonEmpty(get, "settings.llm.model", errs)
	validateOptionalIntMin(get, "settings.llm.timeout_ms", 1, errs)
}

// validateWebConfig validates HTTP server settings.
func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalBool(get, "settings.web.metrics", errs)
	validateOptionalStringNonEmpty(get, "settings.web.frontend_dir", errs)
	validateOptionalIntMin(get, "settings.web.throttle.total_per_sec", 0, errs)
	validateOptionalIntMin(get, "settings.web.throttle.total_burst", 0, errs)
	validateOptionalIntMin(get, "settings.web.throttle.each_per_sec", 0, errs)
	validateOptionalIntMin(get, "settings.web.throttle.each_burst", 0, errs)

	raw := get("settings.web.allowed_origins")
	if raw == nil {
		return
	}
	var origins []string
	switch v := raw.(type) {
	case []string:
		origins = v
	case []any:
		for _, item := range v {
			origin, err := parseStrictString(item)
			if err != nil {
				appendValidationError(errs, "settings.web.allowed_origins entries must be strings")
				return
			}
			origins = append(origins, origin)
		}
	default:
		appendValidationError(errs, "settings.web.allowed_origins must be a list")
		return
	}
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			continue
		}
		parsed, err := url.Parse(strings.TrimSpace(origin))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			appendValidationError(errs, "settings.web.allowed_origins entry %q must be an absolute origin", origin)
		}
	}
}

// validateOptionalStringIn validates an optionally configured key against a fixed set of values.
func validateOptionalStringIn(get configGetter, key string, allowed []string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return
	}
	for _, candidate := range allowed {
		if value == candidate {
			return
		}
	}
	appendValidationError(errs, "%s must be one of %s", key, strings.Join(allowed, ", "))
}

// validateOptionalHost validates an optionally configured host[:port] without scheme.
func validateOptionalHost(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string host", key)
		return
	}
	if strings.TrimSpace(value) == "" {
		return
	}
	if !isValidHost(value) {
		appendValidationError(errs, "%s must be a host without scheme or path", key)
	}
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalInt64Min validates an optionally configured int64 key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalInt64Min(get configGetter, key string, min int64, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt64(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalFloatRange validates an optionally configured float key against a numeric range.
// It accepts a getter, range bounds, inclusivity toggles, and an error collector pointer.
func validateOptionalFloatRange(get configGetter, key string, min float64, max float64, includeMin bool, includeMax bool, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictFloat(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a float", key)
		return
	}

	validMin := value > min
	if includeMin {
		validMin = value >= min
	}
	validMax := value < max
	if includeMax {
		validMax = value <= max
	}

	if !validMin || !validMax {
		appendValidationError(errs, "%s must be within range", key)
	}
}

// validateOptionalURL validates an optionally configured absolute URL key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictInt64 parses a value as a strict int64.
// It accepts a raw value and returns the parsed int64 and an error when parsing fails.
func parseStrictInt64(value any) (int64, error) {
	parsed, err := parseStrictInt(value)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int64(parsed), nil
}

// parseStrictFloat parses a value as a strict floating-point number.
// It accepts a raw value and returns the parsed float64 and an error when parsing fails.
func parseStrictFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty float string")
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, errors.Wrap(err, "parse float")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported float type %T", value)
	}
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// isValidHost validates a host string without scheme or path components.
// It accepts a host string and returns true when the host is syntactically acceptable.
func isValidHost(host string) bool {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "/") {
		return false
	}
	return true
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
