// ABOUTME: Tests for personal record evaluation, history and recomputation.
// ABOUTME: Includes concurrent logging against a single exercise lock.
package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

func prFor(t *testing.T, records []models.PersonalRecord, recordType string) float64 {
	t.Helper()
	for _, r := range records {
		if r.RecordType == recordType {
			return r.Value
		}
	}
	t.Fatalf("record %s not found in %+v", recordType, records)
	return 0
}

func TestEvaluatePRs(t *testing.T) {
	at := dbTime{testNow}
	set := func(id int64, reps int, weight float64, typ models.SetType) prSet {
		return prSet{ID: id, Reps: &reps, Weight: &weight, SetType: typ, LoggedAt: at}
	}

	tests := []struct {
		name    string
		current map[string]float64
		sets    []prSet
		want    map[string]float64
	}{
		{
			name:    "first set sets every type",
			current: map[string]float64{},
			sets:    []prSet{set(1, 8, 80, models.SetWorking)},
			want:    map[string]float64{"max_weight": 80, "max_reps_at_80": 8, "estimated_1rm": 101.3},
		},
		{
			name:    "warmup counts",
			current: map[string]float64{},
			sets:    []prSet{set(1, 1, 200, models.SetWarmup)},
			want:    map[string]float64{"max_weight": 200, "max_reps_at_200": 1, "estimated_1rm": 200},
		},
		{
			name:    "equal value is not a record",
			current: map[string]float64{"max_weight": 100, "max_reps_at_100": 5, "estimated_1rm": 116.7},
			sets:    []prSet{set(1, 5, 100, models.SetWorking)},
			want:    map[string]float64{},
		},
		{
			name:    "one decimal bucket",
			current: map[string]float64{"max_weight": 100},
			sets:    []prSet{set(1, 6, 82.5, models.SetWorking)},
			want:    map[string]float64{"max_reps_at_82.5": 6, "estimated_1rm": 99},
		},
		{
			name:    "zero reps skipped",
			current: map[string]float64{},
			sets:    []prSet{set(1, 0, 100, models.SetFailure)},
			want:    map[string]float64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]float64{}
			for _, c := range evaluatePRs(tt.current, tt.sets, nil) {
				got[c.recordType] = c.value
			}
			if len(got) != len(tt.want) {
				t.Fatalf("improvements mismatch: got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s mismatch: got %v, want %v", k, got[k], v)
				}
			}
		})
	}

	t.Run("nil weight skipped", func(t *testing.T) {
		reps := 12
		if got := evaluatePRs(map[string]float64{}, []prSet{{ID: 1, Reps: &reps, LoggedAt: at}}, nil); len(got) != 0 {
			t.Errorf("expected no improvements, got %+v", got)
		}
	})
}

func TestBenchPressFirstSession(t *testing.T) {
	db, ctx := setupTestDB(t)

	res, err := db.LogExercise(ctx, LogEntry{Exercise: "bench", Sets: 3, Reps: 8, Weight: f64(80)}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	if res.Exercise != "Bench Press" {
		t.Errorf("Exercise mismatch: got %q", res.Exercise)
	}
	if len(res.Sets) != 3 {
		t.Fatalf("expected 3 sets, got %d", len(res.Sets))
	}
	for i, s := range res.Sets {
		if s.SetNumber != i+1 || *s.Reps != 8 || *s.Weight != 80 {
			t.Errorf("set %d mismatch: %+v", i, s)
		}
	}

	want := map[string]float64{"max_weight": 80, "max_reps_at_80": 8, "estimated_1rm": 101.3}
	if len(res.PRs) != len(want) {
		t.Fatalf("expected %d PRs, got %+v", len(want), res.PRs)
	}
	for _, pr := range res.PRs {
		if pr.Value != want[pr.RecordType] {
			t.Errorf("%s mismatch: got %v, want %v", pr.RecordType, pr.Value, want[pr.RecordType])
		}
		if pr.Previous != nil {
			t.Errorf("%s should have no previous value", pr.RecordType)
		}
		if pr.SetID != res.Sets[0].ID {
			t.Errorf("%s set mismatch: got %d, want %d", pr.RecordType, pr.SetID, res.Sets[0].ID)
		}
	}

	records, err := db.ListPRs(ctx, "Bench Press")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	for k, v := range want {
		if got := prFor(t, records, k); got != v {
			t.Errorf("stored %s mismatch: got %v, want %v", k, got, v)
		}
	}
}

func TestPRHistoryAppendsImprovementsOnly(t *testing.T) {
	db, ctx := setupTestDB(t)

	_, err := db.LogExercise(ctx, LogEntry{Exercise: "Deadlift", Reps: []any{5, 5, 5}, Weights: []float64{80, 90, 85}}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}

	records, err := db.ListPRs(ctx, "Deadlift")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	if got := prFor(t, records, models.RecordMaxWeight); got != 90 {
		t.Errorf("max_weight mismatch: got %v, want 90", got)
	}

	history, err := db.PRHistory(ctx, "Deadlift", models.RecordMaxWeight)
	if err != nil {
		t.Fatalf("PRHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Value != 80 || history[1].Value != 90 {
		t.Errorf("history values mismatch: %+v", history)
	}
	if history[1].PreviousValue != 80 {
		t.Errorf("previous value mismatch: got %v, want 80", history[1].PreviousValue)
	}

	var nulls int
	if err := db.db.GetContext(ctx, &nulls, `SELECT COUNT(*) FROM pr_history WHERE previous_value IS NULL`); err != nil {
		t.Fatalf("count null previous values: %v", err)
	}
	if nulls != 0 {
		t.Errorf("first records should store a previous value of 0, found %d NULL rows", nulls)
	}
}

func TestPRsNeverDecrease(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx

	if _, err := db.LogExercise(ctx, LogEntry{Exercise: "Back Squat", Reps: 5, Weight: f64(120)}, LogOptions{}); err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	env.clock.Advance(2 * time.Hour)
	res, err := db.LogExercise(ctx, LogEntry{Exercise: "Back Squat", Reps: 5, Weight: f64(100)}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	for _, pr := range res.PRs {
		if pr.RecordType == models.RecordMaxWeight || pr.RecordType == models.RecordEstimated1RM {
			t.Errorf("lighter set produced %s record", pr.RecordType)
		}
	}

	records, err := db.ListPRs(ctx, "Back Squat")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	if got := prFor(t, records, models.RecordMaxWeight); got != 120 {
		t.Errorf("max_weight mismatch: got %v, want 120", got)
	}
	if got := prFor(t, records, "max_reps_at_100"); got != 5 {
		t.Errorf("max_reps_at_100 mismatch: got %v, want 5", got)
	}
}

func TestPRCheckReportsPrevious(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx

	if _, err := db.LogExercise(ctx, LogEntry{Exercise: "Overhead Press", Reps: 5, Weight: f64(50)}, LogOptions{}); err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	env.clock.Advance(time.Hour)
	res, err := db.LogExercise(ctx, LogEntry{Exercise: "Overhead Press", Reps: 5, Weight: f64(52.5)}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	var found bool
	for _, pr := range res.PRs {
		if pr.RecordType != models.RecordMaxWeight {
			continue
		}
		found = true
		if pr.Previous == nil || *pr.Previous != 50 {
			t.Errorf("previous mismatch: got %v, want 50", pr.Previous)
		}
	}
	if !found {
		t.Fatalf("expected a max_weight record, got %+v", res.PRs)
	}
	if env.rec.records["max_weight"] != 2 {
		t.Errorf("recorder max_weight count mismatch: got %d, want 2", env.rec.records["max_weight"])
	}
}

func TestConcurrentPRChecks(t *testing.T) {
	db, ctx := setupTestDB(t)

	weights := []float64{60, 95, 70, 85, 65, 90, 75, 80}
	var wg sync.WaitGroup
	errs := make(chan error, len(weights))
	for _, w := range weights {
		wg.Add(1)
		go func(w float64) {
			defer wg.Done()
			_, err := db.LogExercise(ctx, LogEntry{Exercise: "Bench Press", Reps: 5, Weight: f64(w)}, LogOptions{})
			if err != nil {
				errs <- fmt.Errorf("weight %v: %w", w, err)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent log failed: %v", err)
	}

	records, err := db.ListPRs(ctx, "Bench Press")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	if got := prFor(t, records, models.RecordMaxWeight); got != 95 {
		t.Errorf("max_weight mismatch: got %v, want 95", got)
	}

	history, err := db.PRHistory(ctx, "Bench Press", models.RecordMaxWeight)
	if err != nil {
		t.Fatalf("PRHistory failed: %v", err)
	}
	for i := 1; i < len(history); i++ {
		if history[i].Value <= history[i-1].Value {
			t.Errorf("history not increasing at %d: %v after %v", i, history[i].Value, history[i-1].Value)
		}
		if history[i].PreviousValue != history[i-1].Value {
			t.Errorf("history %d previous mismatch: got %v, want %v", i, history[i].PreviousValue, history[i-1].Value)
		}
	}
	if last := history[len(history)-1]; last.Value != 95 {
		t.Errorf("last history value mismatch: got %v, want 95", last.Value)
	}

	sessions, err := db.ListSessions(ctx, 0, nil)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("concurrent logging opened %d sessions, want 1", len(sessions))
	}
}

func TestNonStrengthHasNoPRs(t *testing.T) {
	db, ctx := setupTestDB(t)

	res, err := db.LogExercise(ctx, LogEntry{Exercise: "Plank", Reps: 60, Weight: f64(10)}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	if len(res.PRs) != 0 {
		t.Errorf("mobility exercise produced records: %+v", res.PRs)
	}
}

func TestRecomputePRsAfterDelete(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx

	if _, err := db.LogExercise(ctx, LogEntry{Exercise: "Deadlift", Reps: 5, Weight: f64(140)}, LogOptions{}); err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	env.clock.Advance(time.Minute)
	typo, err := db.LogExercise(ctx, LogEntry{Exercise: "Deadlift", Reps: 5, Weight: f64(1400)}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	if err := db.DeleteSet(ctx, typo.Sets[0].ID); err != nil {
		t.Fatalf("DeleteSet failed: %v", err)
	}

	records, err := db.ListPRs(ctx, "Deadlift")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	if got := prFor(t, records, models.RecordMaxWeight); got != 1400 {
		t.Errorf("delete should not lower records: got %v", got)
	}

	records, err = db.RecomputePRs(ctx, "Deadlift")
	if err != nil {
		t.Fatalf("RecomputePRs failed: %v", err)
	}
	if got := prFor(t, records, models.RecordMaxWeight); got != 140 {
		t.Errorf("recomputed max_weight mismatch: got %v, want 140", got)
	}
	for _, r := range records {
		if r.RecordType == "max_reps_at_1400" {
			t.Error("recompute kept a record from a deleted set")
		}
	}
}

func TestBackdatedPRAchievedAt(t *testing.T) {
	db, ctx := setupTestDB(t)

	when := testNow.Add(-48 * time.Hour)
	if _, err := db.LogExercise(ctx, LogEntry{Exercise: "Pull Up", Reps: 10, Weight: f64(10)}, LogOptions{LoggedAt: &when}); err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	records, err := db.ListPRs(ctx, "Pull Up")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	for _, r := range records {
		if !r.AchievedAt.Equal(when) {
			t.Errorf("%s achieved_at mismatch: got %v, want %v", r.RecordType, r.AchievedAt, when)
		}
	}
}
