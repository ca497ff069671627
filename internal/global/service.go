package global

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/JxTIN21/Codebase/internal/codebase"
	"github.com/JxTIN21/Codebase/internal/codebase/embedding"
	"github.com/JxTIN21/Codebase/internal/library/llm"
	"github.com/JxTIN21/Codebase/library/log"
)

// LLMProviderNone disables explanation generation; searches answer in degraded mode.
const LLMProviderNone = "none"

// Runtime holds the codebase service and the connections it owns.
type Runtime struct {
	Service *codebase.Service

	closers []func() error
}

// Close releases every connection opened by SetupService.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Logger.Warn("close runtime resource", zap.Error(err))
		}
	}
	r.closers = nil
}

// SetupService builds the codebase service from the loaded configuration.
func SetupService(ctx context.Context) (_ *Runtime, err error) {
	settings := codebase.LoadSettingsFromConfig()
	rt := new(Runtime)
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	db, err := OpenDB(ctx)
	if err != nil {
		return nil, err
	}
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		rt.closers = append(rt.closers, sqlDB.Close)
	}

	embedder, err := embedding.New(settings.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "new embedder")
	}

	generator, err := newGenerator(settings.LLM)
	if err != nil {
		return nil, err
	}

	var index codebase.VectorIndex
	if settings.Search.Backend == codebase.BackendQdrant {
		qdrantIndex, err := codebase.NewQdrantVectorIndex(settings.Search.Qdrant)
		if err != nil {
			return nil, errors.Wrap(err, "new qdrant index")
		}
		rt.closers = append(rt.closers, qdrantIndex.Close)
		index = qdrantIndex
	}

	var cache codebase.StatusCache
	redisDB, err := OpenRedis(ctx)
	if err != nil {
		return nil, err
	}
	if redisDB != nil {
		rt.closers = append(rt.closers, redisDB.Close)
		cache = codebase.NewRedisStatusCache(redisDB, settings.StatusCacheTTL)
	}

	var archive codebase.Archive
	if settings.Archive.Enabled {
		minioArchive, err := codebase.NewMinioArchive(ctx, settings.Archive)
		if err != nil {
			return nil, errors.Wrap(err, "new upload archive")
		}
		archive = minioArchive
	}

	rt.Service, err = codebase.NewService(db, settings, embedder, generator,
		index, cache, archive, log.Logger.Named("codebase"), nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new codebase service")
	}

	log.Logger.Info("codebase service ready",
		zap.String("embedding", embedder.Model()),
		zap.String("backend", settings.Search.Backend),
		zap.Bool("explanations", generator != nil),
		zap.Bool("status_cache", cache != nil),
		zap.Bool("archive", archive != nil))
	return rt, nil
}

// newGenerator returns nil when generation is disabled or has no credentials.
func newGenerator(cfg codebase.LLMSettings) (codebase.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch {
	case provider == LLMProviderNone:
		return nil, nil
	case provider != llm.ProviderOllama && cfg.APIKey == "":
		log.Logger.Warn("llm api key is empty, explanations are disabled")
		return nil, nil
	}

	client, err := llm.NewClient(provider, cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "new llm client")
	}
	return client, nil
}
