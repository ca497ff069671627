package codebase

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"gorm.io/gorm"

	"github.com/JxTIN21/Codebase/library/log"
)

// RunMigrations ensures codebase tables and indexes exist.
func RunMigrations(ctx context.Context, db *gorm.DB, logger logSDK.Logger) error {
	if db == nil {
		return errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("codebase_migration")
	}

	if err := ensureVectorExtension(ctx, db, logger); err != nil {
		return errors.WithStack(err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&Codebase{},
		&CodebaseFile{},
		&CodebaseChunk{},
		&CodebaseChunkEmbedding{},
		&IndexJob{},
	); err != nil {
		return errors.Wrap(err, "auto migrate codebase tables")
	}

	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_codebase_index_jobs_pending ON codebase_index_jobs (status, available_at, id)`,
	}
	if isPostgresDialect(db) {
		statements = append(statements,
			`CREATE INDEX IF NOT EXISTS idx_codebase_files_prefix ON codebase_files (codebase_id, path text_pattern_ops)`,
			`CREATE INDEX IF NOT EXISTS idx_codebases_expires_at ON codebases (expires_at) WHERE expires_at IS NOT NULL`,
		)
	}

	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrap(err, "create index")
		}
	}

	logger.Debug("codebase migrations completed")
	return nil
}

// ensureVectorExtension creates the pgvector extension when available.
func ensureVectorExtension(ctx context.Context, db *gorm.DB, logger logSDK.Logger) error {
	if db == nil {
		return errors.New("gorm db is nil")
	}
	if !isPostgresDialect(db) {
		return nil
	}

	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		if shouldFallbackToPgvector(err) {
			if logger != nil {
				logger.Debug("pgvector extension unavailable under name 'vector', retrying with legacy name")
			}
			if execErr := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS pgvector").Error; execErr != nil {
				return errors.Wrap(execErr, "create pgvector extension")
			}
			return nil
		}
		return errors.Wrap(err, "create vector extension")
	}
	return nil
}

// isPostgresDialect reports whether the gorm dialector is Postgres.
func isPostgresDialect(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return strings.EqualFold(db.Dialector.Name(), "postgres")
}

// shouldFallbackToPgvector checks whether the error indicates a legacy extension name.
func shouldFallbackToPgvector(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "extension \"vector\"") && strings.Contains(msg, "not") && strings.Contains(msg, "available")
}
