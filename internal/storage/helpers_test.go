// ABOUTME: Shared test helpers for storage tests.
// ABOUTME: Temp SQLite databases, a settable clock and a counting Recorder.
package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

// testNow is a Monday.
var testNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	mu           sync.Mutex
	transactions map[string]int
	records      map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{transactions: map[string]int{}, records: map[string]int{}}
}

func (r *countingRecorder) Transaction(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[outcome]++
}

func (r *countingRecorder) PersonalRecord(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[kind]++
}

func (r *countingRecorder) tx(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transactions[outcome]
}

func (r *countingRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = map[string]int{}
	r.records = map[string]int{}
}

type testEnv struct {
	db    *DB
	ctx   context.Context
	clock *testClock
	rec   *countingRecorder
}

// setupTestEnv opens a fresh SQLite database acting as user 1, seeded with
// the default global catalog.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: testNow}
	rec := newCountingRecorder()
	db, err := Open(Options{
		Driver:   DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "gym.db"),
		Recorder: rec,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := userctx.WithUserID(context.Background(), 1)
	if _, err := db.SeedGlobalExercises(ctx, DefaultCatalog); err != nil {
		t.Fatalf("SeedGlobalExercises failed: %v", err)
	}
	rec.reset()
	return &testEnv{db: db, ctx: ctx, clock: clock, rec: rec}
}

// setupTestDB is the short form for tests that only need the database.
func setupTestDB(t *testing.T) (*DB, context.Context) {
	t.Helper()
	env := setupTestEnv(t)
	return env.db, env.ctx
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
func i64(v int64) *int64     { return &v }
func str(v string) *string   { return &v }
