package codebase

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/jinzhu/copier"

	rdb "github.com/JxTIN21/Codebase/library/db/redis"
)

// StatusCache keeps the latest status of each codebase for cheap polling.
// The database stays authoritative; a miss falls back to it.
type StatusCache interface {
	Set(ctx context.Context, status StatusResult) error
	Get(ctx context.Context, codebaseID string) (status *StatusResult, found bool, err error)
	Delete(ctx context.Context, codebaseID string) error
}

// RedisStatusCache stores status records in redis.
type RedisStatusCache struct {
	db  *rdb.DB
	ttl time.Duration
}

// NewRedisStatusCache creates a redis-backed status cache.
func NewRedisStatusCache(db *rdb.DB, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{db: db, ttl: ttl}
}

// Set implements StatusCache.
func (c *RedisStatusCache) Set(ctx context.Context, status StatusResult) error {
	record := new(rdb.CodebaseStatus)
	if err := copier.Copy(record, &status); err != nil {
		return errors.Wrap(err, "copy status")
	}
	return c.db.SetCodebaseStatus(ctx, record, c.ttl)
}

// Get implements StatusCache.
func (c *RedisStatusCache) Get(ctx context.Context, codebaseID string) (*StatusResult, bool, error) {
	record, found, err := c.db.GetCodebaseStatus(ctx, codebaseID)
	if err != nil || !found {
		return nil, false, err
	}

	status := new(StatusResult)
	if err = copier.Copy(status, record); err != nil {
		return nil, false, errors.Wrap(err, "copy status")
	}
	return status, true, nil
}

// Delete implements StatusCache.
func (c *RedisStatusCache) Delete(ctx context.Context, codebaseID string) error {
	return c.db.DelCodebaseStatus(ctx, codebaseID)
}

type noopStatusCache struct{}

func (noopStatusCache) Set(context.Context, StatusResult) error { return nil }

func (noopStatusCache) Get(context.Context, string) (*StatusResult, bool, error) {
	return nil, false, nil
}

func (noopStatusCache) Delete(context.Context, string) error { return nil }
