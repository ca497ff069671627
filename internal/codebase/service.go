// Package codebase indexes uploaded source trees and answers natural-language
// questions about them with ranked files and a generated explanation.
package codebase

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/JxTIN21/Codebase/internal/codebase/chunker"
	"github.com/JxTIN21/Codebase/internal/codebase/embedding"
	"github.com/JxTIN21/Codebase/internal/library/llm"
	"github.com/JxTIN21/Codebase/library/log"
)

// Clock returns the current time in UTC.
type Clock func() time.Time

// Generator produces explanation text. llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Service coordinates codebase ingestion, indexing and search.
type Service struct {
	db           *gorm.DB
	settings     Settings
	logger       logSDK.Logger
	embedder     embedding.Embedder
	synthesizer  *Synthesizer
	index        VectorIndex
	cache        StatusCache
	archive      Archive
	chunker      *chunker.CodeChunker
	extensions   map[string]bool
	lockProvider LockProvider
	clock        Clock
}

// NewService constructs a codebase service and runs migrations.
//
// generator may be nil, in which case every search is answered in degraded mode.
func NewService(db *gorm.DB,
	settings Settings,
	embedder embedding.Embedder,
	generator Generator,
	index VectorIndex,
	cache StatusCache,
	archive Archive,
	logger logSDK.Logger,
	lockProvider LockProvider,
	clock Clock,
) (*Service, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = log.Logger.Named("codebase_service")
	}
	if index == nil {
		index = NewSQLVectorIndex(embedder.Model())
	}
	if cache == nil {
		cache = noopStatusCache{}
	}
	if lockProvider == nil {
		lockProvider = NewDefaultLockProvider()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	if err := RunMigrations(context.Background(), db, logger); err != nil {
		return nil, errors.WithStack(err)
	}

	svc := &Service{
		db:          db,
		settings:    settings,
		logger:      logger,
		embedder:    embedder,
		synthesizer: NewSynthesizer(generator, settings.LLM.Model, settings.Synthesis, logger.Named("synthesizer")),
		index:       index,
		cache:       cache,
		archive:     archive,
		chunker: chunker.New(chunker.DefaultRegistry(), chunker.Options{
			MaxLines: settings.Index.ChunkMaxLines,
			MaxBytes: settings.Index.ChunkMaxBytes,
		}),
		extensions:   chunker.ExtensionSet(settings.Upload.Extensions),
		lockProvider: lockProvider,
		clock:        clock,
	}

	return svc, nil
}

// Settings returns the effective settings.
func (s *Service) Settings() Settings {
	return s.settings
}

// LoggerFromContext returns the request-scoped logger when available.
func (s *Service) LoggerFromContext(ctx context.Context) logSDK.Logger {
	if ctx != nil {
		if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
			return ctxLogger
		}
	}
	if s != nil && s.logger != nil {
		return s.logger
	}
	return log.Logger.Named("codebase_fallback")
}

// warnOnError logs an error when needed for diagnostics.
func (s *Service) warnOnError(ctx context.Context, err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}
	s.LoggerFromContext(ctx).Warn(msg, append(fields, zap.Error(err))...)
}

// isContextDone reports whether the context has been cancelled.
func isContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
