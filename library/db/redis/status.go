package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
)

// SetCodebaseStatus caches the status record of a codebase
func (db *DB) SetCodebaseStatus(ctx context.Context, status *CodebaseStatus, ttl time.Duration) error {
	if status == nil || status.CodebaseID == "" {
		return errors.New("codebase status requires an id")
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return errors.Wrap(err, "marshal codebase status")
	}

	key := KeyPrefixCodebaseStatus + status.CodebaseID
	if err = db.db.SetItem(ctx, key, string(payload), ttl); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}

	return nil
}

// GetCodebaseStatus loads a cached status record.
// found is false when the key does not exist.
func (db *DB) GetCodebaseStatus(ctx context.Context, codebaseID string) (status *CodebaseStatus, found bool, err error) {
	key := KeyPrefixCodebaseStatus + codebaseID
	payload, err := db.db.GetItem(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "get %s", key)
	}

	status = new(CodebaseStatus)
	if err = json.Unmarshal([]byte(payload), status); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal codebase status")
	}

	return status, true, nil
}

// DelCodebaseStatus removes the cached status record
func (db *DB) DelCodebaseStatus(ctx context.Context, codebaseID string) error {
	key := KeyPrefixCodebaseStatus + codebaseID
	if err := db.cli.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "del %s", key)
	}

	return nil
}
