// Package sqlite opens file-backed or in-memory sqlite databases for local runs.
package sqlite

import (
	"os"
	"path/filepath"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gormSqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// NewGormDB opens a sqlite database at path.
// Parent directories are created when missing; ":memory:" and "file:" DSNs are passed through.
func NewGormDB(path string, logger gormLogger.Interface) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create dir for %q", path)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	}

	cfg := &gorm.Config{}
	if logger != nil {
		cfg.Logger = logger
	}

	db, err := gorm.Open(gormSqlite.Open(dsn), cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %q", path)
	}

	if path == ":memory:" {
		// every pooled connection would see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sql db")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}
