package codebase

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := newKeyedMutex()
	var (
		active, peak int32
		wg           sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.lock(context.Background(), "cb", time.Second)
			require.NoError(t, err)
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, peak)

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Empty(t, m.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := newKeyedMutex()
	releaseA, err := m.lock(context.Background(), "a", time.Second)
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := m.lock(context.Background(), "b", 10*time.Millisecond)
	require.NoError(t, err)
	releaseB()
}

func TestKeyedMutexTimeout(t *testing.T) {
	m := newKeyedMutex()
	release, err := m.lock(context.Background(), "cb", time.Second)
	require.NoError(t, err)
	defer release()

	_, err = m.lock(context.Background(), "cb", 10*time.Millisecond)
	require.True(t, IsCode(err, ErrCodeResourceBusy))
}

func TestAcquireCodebaseLockPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_xact_lock($1)")).
		WithArgs(hashLockKey("cb")).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_xact_lock($1)")).
		WithArgs(hashLockKey("cb")).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))

	require.NoError(t, acquireCodebaseLock(context.Background(), gdb, "cb", time.Second))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHashLockKeyStable(t *testing.T) {
	require.Equal(t, hashLockKey("cb-1"), hashLockKey("cb-1"))
	require.NotEqual(t, hashLockKey("cb-1"), hashLockKey("cb-2"))
}
