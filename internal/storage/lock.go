// ABOUTME: Transaction-scoped exclusive locks keyed by arbitrary strings.
// ABOUTME: PostgreSQL uses advisory xact locks; SQLite uses an in-process keyed mutex.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// keyedLocker hands out one exclusive lock per key. Entries are refcounted
// and dropped once no holder or waiter remains.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done. The returned release must be
// called exactly once.
func (l *keyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(key, e)
		})
	}, nil
}

func (l *keyedLocker) unref(key string, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// lockKey names a transaction-scoped lock. pgQuery/pgArgs take the equivalent
// advisory lock on PostgreSQL.
type lockKey struct {
	name    string
	pgQuery string
	pgArgs  []any
}

// exerciseLock serializes PR evaluation for one (user, exercise) pair. The
// two-int4 advisory form wraps ids beyond int32.
func exerciseLock(userID, exerciseID int64) lockKey {
	return lockKey{
		name:    fmt.Sprintf("pr:%d:%d", userID, exerciseID),
		pgQuery: "SELECT pg_advisory_xact_lock(CAST(? AS INTEGER), CAST(? AS INTEGER))",
		pgArgs:  []any{int32(userID), int32(exerciseID)},
	}
}

// sessionLock serializes open-session checks for one user.
func sessionLock(userID int64) lockKey {
	return lockKey{
		name:    fmt.Sprintf("session:%d", userID),
		pgQuery: "SELECT pg_advisory_xact_lock(CAST(? AS BIGINT))",
		pgArgs:  []any{userID},
	}
}

// programLock serializes version creation for one program. PostgreSQL locks
// the program row instead, see lockProgram.
func programLock(programID int64) lockKey {
	return lockKey{name: fmt.Sprintf("program:%d", programID)}
}
