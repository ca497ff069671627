// Package global opens the process-wide stores and builds the codebase service.
package global

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/JxTIN21/Codebase/library/db/postgres"
	rdb "github.com/JxTIN21/Codebase/library/db/redis"
	"github.com/JxTIN21/Codebase/library/db/sqlite"
	"github.com/JxTIN21/Codebase/library/log"
)

// Database drivers accepted by settings.db.driver.
const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// DefaultSQLitePath is used when settings.db.sqlite.path is unset.
const DefaultSQLitePath = "data/codebase.db"

// OpenDB connects to the configured relational store. SQLite is the default.
func OpenDB(ctx context.Context) (*gorm.DB, error) {
	level := gormLogger.Warn
	if gconfig.S.GetBool("debug") {
		level = gormLogger.Info
	}
	logger := postgres.NewGormLogger(200*time.Millisecond, level)

	driver := strings.ToLower(strings.TrimSpace(gconfig.S.GetString("settings.db.driver")))
	switch driver {
	case DBDriverPostgres:
		db, err := postgres.NewGormDB(ctx, postgres.DialInfo{
			Addr:    gconfig.S.GetString("settings.db.postgres.addr"),
			DBName:  gconfig.S.GetString("settings.db.postgres.db"),
			User:    gconfig.S.GetString("settings.db.postgres.user"),
			Pwd:     gconfig.S.GetString("settings.db.postgres.pwd"),
			Port:    gconfig.S.GetInt("settings.db.postgres.port"),
			SSLMode: gconfig.S.GetString("settings.db.postgres.sslmode"),
		}, logger)
		if err != nil {
			return nil, errors.Wrap(err, "connect postgres")
		}
		log.Logger.Info("connected postgres",
			zap.String("addr", gconfig.S.GetString("settings.db.postgres.addr")))
		return db, nil
	case "", DBDriverSQLite:
		path := strings.TrimSpace(gconfig.S.GetString("settings.db.sqlite.path"))
		if path == "" {
			path = DefaultSQLitePath
		}
		db, err := sqlite.NewGormDB(path, logger)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		log.Logger.Info("opened sqlite", zap.String("path", path))
		return db, nil
	default:
		return nil, errors.Errorf("unknown db driver %q", driver)
	}
}

// OpenRedis connects to redis when settings.db.redis.addr is set.
// It returns nil without error when redis is not configured.
func OpenRedis(ctx context.Context) (*rdb.DB, error) {
	addr := strings.TrimSpace(gconfig.S.GetString("settings.db.redis.addr"))
	if addr == "" {
		return nil, nil
	}

	db := rdb.NewDB(&redis.Options{
		Addr:     addr,
		Password: gconfig.S.GetString("settings.db.redis.pwd"),
		DB:       gconfig.S.GetInt("settings.db.redis.db"),
	})
	if err := db.Ping(ctx); err != nil {
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}

	log.Logger.Info("connected redis", zap.String("addr", addr))
	return db, nil
}
