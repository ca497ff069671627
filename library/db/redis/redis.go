package redis

import (
	"context"

	gredis "github.com/Laisky/go-redis/v2"
	"github.com/redis/go-redis/v9"
)

// DB is a wrapper for go-redis
type DB struct {
	db  *gredis.Utils
	cli *redis.Client
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	return NewDBFromClient(redis.NewClient(opt))
}

// NewDBFromClient wraps an existing redis client
func NewDBFromClient(rdb *redis.Client) *DB {
	return &DB{
		db:  gredis.NewRedisUtils(rdb),
		cli: rdb,
	}
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.cli.Ping(ctx).Err()
}

// Close closes the underlying client
func (db *DB) Close() error {
	return db.cli.Close()
}
