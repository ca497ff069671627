package codebase

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// LockProvider serializes index writes within one codebase.
type LockProvider interface {
	WithCodebaseLock(ctx context.Context, db *gorm.DB, codebaseID string, timeout time.Duration, fn func(tx *gorm.DB) error) error
}

// DefaultLockProvider combines an in-process keyed mutex with a postgres
// advisory transaction lock so writers in other processes are excluded too.
type DefaultLockProvider struct {
	local *keyedMutex
}

// NewDefaultLockProvider creates a lock provider.
func NewDefaultLockProvider() *DefaultLockProvider {
	return &DefaultLockProvider{local: newKeyedMutex()}
}

// WithCodebaseLock acquires the codebase lock and executes fn within a transaction.
func (p *DefaultLockProvider) WithCodebaseLock(ctx context.Context, db *gorm.DB, codebaseID string, timeout time.Duration, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return errors.New("db is required")
	}

	release, err := p.local.lock(ctx, codebaseID, timeout)
	if err != nil {
		return err
	}
	defer release()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireCodebaseLock(ctx, tx, codebaseID, timeout); err != nil {
			return err
		}
		return fn(tx)
	})
}

// acquireCodebaseLock obtains a codebase-scoped advisory lock within the transaction.
func acquireCodebaseLock(ctx context.Context, tx *gorm.DB, codebaseID string, timeout time.Duration) error {
	if tx == nil {
		return errors.New("transaction is required")
	}
	if !isPostgresDialect(tx) {
		return nil
	}

	key := hashLockKey(codebaseID)
	deadline := time.Now().Add(timeout)
	for {
		var locked bool
		if err := tx.WithContext(ctx).Raw("SELECT pg_try_advisory_xact_lock(?)", key).Scan(&locked).Error; err != nil {
			return errors.Wrap(err, "acquire advisory lock")
		}
		if locked {
			return nil
		}
		if time.Now().After(deadline) {
			return NewError(ErrCodeResourceBusy, "codebase is busy", true)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// hashLockKey derives a stable int64 key from the codebase id.
func hashLockKey(codebaseID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("codebase:"))
	_, _ = h.Write([]byte(codebaseID))
	return int64(h.Sum64())
}

// keyedMutex is a set of mutexes created on demand and dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (m *keyedMutex) lock(ctx context.Context, key string, timeout time.Duration) (release func(), err error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			m.unref(key, entry)
		}, nil
	case <-ctx.Done():
		m.unref(key, entry)
		return nil, errors.Wrap(ctx.Err(), "wait for codebase lock")
	case <-timer.C:
		m.unref(key, entry)
		return nil, NewError(ErrCodeResourceBusy, "codebase is busy", true)
	}
}

func (m *keyedMutex) unref(key string, entry *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
}
