package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DB postgres db
type DB struct {
	DB *sql.DB
}

// DialInfo postgres dial info
type DialInfo struct {
	Addr,
	DBName,
	User,
	Pwd string
	// Port defaults to 5432
	Port int
	// SSLMode defaults to disable
	SSLMode string
}

// BuildDSN builds a PostgreSQL DSN for shared database clients.
func BuildDSN(dialInfo DialInfo) string {
	port := dialInfo.Port
	if port <= 0 {
		port = 5432
	}
	sslMode := dialInfo.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return "host=" + dialInfo.Addr +
		" user=" + dialInfo.User +
		" password=" + dialInfo.Pwd +
		" dbname=" + dialInfo.DBName +
		fmt.Sprintf(" port=%d", port) +
		" sslmode=" + sslMode +
		" TimeZone=UTC"
}

// NewDB create a new postgres db
func NewDB(ctx context.Context, dialInfo DialInfo) (*DB, error) {
	dsn := BuildDSN(dialInfo)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err = db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}

	// config db
	db.SetMaxIdleConns(6)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(time.Hour)

	return &DB{DB: db}, nil
}

// NewGormDB opens a pooled postgres connection and wraps it with gorm.
// logger may be nil, in which case slow queries and errors are logged.
func NewGormDB(ctx context.Context, dialInfo DialInfo, logger gormLogger.Interface) (*gorm.DB, error) {
	pg, err := NewDB(ctx, dialInfo)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = NewGormLogger(200*time.Millisecond, gormLogger.Warn)
	}

	gdb, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: pg.DB}), &gorm.Config{
		Logger: logger,
	})
	if err != nil {
		_ = pg.DB.Close()
		return nil, errors.Wrap(err, "open gorm postgres")
	}

	return gdb, nil
}
