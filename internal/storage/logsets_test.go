// ABOUTME: Tests for the set-logging transaction: single, bulk and routine logging.
// ABOUTME: A bulk log commits once or leaves no trace at all.
package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

func TestLogExerciseStartsSession(t *testing.T) {
	db, ctx := setupTestDB(t)

	active, err := db.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession failed: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active session, got %d", active.ID)
	}

	first, err := db.LogWorkout(ctx, []LogEntry{{Exercise: "Deadlift", Reps: 5, Weight: f64(100)}}, LogOptions{})
	if err != nil {
		t.Fatalf("LogWorkout failed: %v", err)
	}
	if !first.SessionCreated {
		t.Error("first log should start a session")
	}
	second, err := db.LogWorkout(ctx, []LogEntry{{Exercise: "Deadlift", Reps: 3, Weight: f64(110)}}, LogOptions{})
	if err != nil {
		t.Fatalf("LogWorkout failed: %v", err)
	}
	if second.SessionCreated || second.SessionID != first.SessionID {
		t.Errorf("second log should reuse session %d, got %+v", first.SessionID, second)
	}

	// Same exercise twice continues numbering on one session exercise.
	if second.Exercises[0].SessionExerciseID != first.Exercises[0].SessionExerciseID {
		t.Error("session exercise should be reused")
	}
	if got := second.Exercises[0].Sets[0].SetNumber; got != 2 {
		t.Errorf("set number mismatch: got %d, want 2", got)
	}
}

func TestLogExerciseDropSet(t *testing.T) {
	db, ctx := setupTestDB(t)

	res, err := db.LogExercise(ctx, LogEntry{
		Exercise:    "Bicep Curl",
		Sets:        3,
		Reps:        10,
		Weight:      f64(100),
		SetType:     "drop",
		DropPercent: f64(10),
	}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	want := []float64{100, 90, 80}
	if len(res.Sets) != len(want) {
		t.Fatalf("expected %d sets, got %d", len(want), len(res.Sets))
	}
	for i, s := range res.Sets {
		if s.Weight == nil || *s.Weight != want[i] {
			t.Errorf("set %d weight mismatch: got %v, want %v", i, s.Weight, want[i])
		}
		if s.SetType != models.SetDrop {
			t.Errorf("set %d type mismatch: got %s", i, s.SetType)
		}
	}
}

func TestLogExercisePerSetValues(t *testing.T) {
	db, ctx := setupTestDB(t)

	res, err := db.LogExercise(ctx, LogEntry{
		Exercise: "Leg Press",
		Reps:     []any{12, 10, 8},
		Weights:  []float64{100, 120, 140},
		SetNotes: []any{"easy", nil, "grind"},
		RPE:      f64(8.5),
	}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	if len(res.Sets) != 3 {
		t.Fatalf("expected 3 sets, got %d", len(res.Sets))
	}
	last := res.Sets[2]
	if *last.Reps != 8 || *last.Weight != 140 || last.Notes == nil || *last.Notes != "grind" {
		t.Errorf("last set mismatch: %+v", last)
	}
	if res.Sets[1].Notes != nil {
		t.Errorf("middle set should have no note, got %q", *res.Sets[1].Notes)
	}

	session, err := db.GetSession(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.SetCount != 3 || session.Volume != 12*100+10*120+8*140 {
		t.Errorf("aggregates mismatch: sets=%d volume=%v", session.SetCount, session.Volume)
	}
}

func TestLogExerciseValidation(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx

	tests := []struct {
		name  string
		entry LogEntry
	}{
		{"missing exercise", LogEntry{Reps: 5}},
		{"missing reps", LogEntry{Exercise: "Deadlift"}},
		{"rpe too high", LogEntry{Exercise: "Deadlift", Reps: 5, RPE: f64(11)}},
		{"bad set type", LogEntry{Exercise: "Deadlift", Reps: 5, SetType: "myo"}},
		{"weights length", LogEntry{Exercise: "Deadlift", Reps: []any{5, 5}, Weights: []float64{100}}},
		{"drop percent", LogEntry{Exercise: "Deadlift", Reps: 5, SetType: "drop", Weight: f64(100), DropPercent: f64(100)}},
		{"reps and sets disagree", LogEntry{Exercise: "Deadlift", Sets: 3, Reps: []any{5, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.LogExercise(ctx, tt.entry, LogOptions{})
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if env.rec.tx("commit") != 0 || env.rec.tx("rollback") != 0 {
		t.Error("validation failures must not open a transaction")
	}
}

func TestLogWorkoutSingleTransaction(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx

	res, err := db.LogWorkout(ctx, []LogEntry{
		{Exercise: "Bench Press", Sets: 3, Reps: 8, Weight: f64(80)},
		{Exercise: "Cable Fly", Sets: 3, Reps: 15, Weight: f64(15), MuscleGroup: str("chest")},
		{Exercise: "Triceps Pushdown", Reps: []any{12, 10}, Weight: f64(30)},
	}, LogOptions{})
	if err != nil {
		t.Fatalf("LogWorkout failed: %v", err)
	}
	if got := env.rec.tx("commit"); got != 1 {
		t.Errorf("commit count mismatch: got %d, want 1", got)
	}
	if len(res.Exercises) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Exercises))
	}
	if !res.Exercises[1].IsNew {
		t.Error("Cable Fly should be created")
	}
	for _, r := range res.Exercises {
		if r.SessionID != res.SessionID {
			t.Errorf("%s logged into session %d, want %d", r.Exercise, r.SessionID, res.SessionID)
		}
	}
}

func TestLogWorkoutRollsBackEverything(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx

	_, err := db.LogWorkout(ctx, []LogEntry{
		{Exercise: "Hack Squat", Sets: 3, Reps: 10, Weight: f64(100)},
		{Exercise: "Deadlift", Reps: 5, Weight: f64(100), GroupID: i64(424242)},
	}, LogOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if env.rec.tx("rollback") != 1 || env.rec.tx("commit") != 0 {
		t.Errorf("expected one rollback, got commits=%d rollbacks=%d", env.rec.tx("commit"), env.rec.tx("rollback"))
	}

	active, err := db.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession failed: %v", err)
	}
	if active != nil {
		t.Error("implicit session should have been rolled back")
	}
	if _, err := db.FindExercise(ctx, "Hack Squat"); !errors.Is(err, ErrNotFound) {
		t.Errorf("auto-created exercise should have been rolled back, got %v", err)
	}
	prs, err := db.ListPRs(ctx, "")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	if len(prs) != 0 {
		t.Errorf("expected no records, got %d", len(prs))
	}
}

func TestLogExerciseUnvalidatedSession(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx

	off := false
	s, err := db.StartSession(ctx, StartSessionInput{Validated: &off})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	res, err := db.LogExercise(ctx, LogEntry{Exercise: "Bench Press", Reps: 5, Weight: f64(100)}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	if len(res.PRs) != 0 {
		t.Errorf("unvalidated session produced records: %+v", res.PRs)
	}

	checks, err := db.ValidateSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if len(checks) != 3 {
		t.Errorf("expected 3 records after validation, got %+v", checks)
	}
	records, err := db.ListPRs(ctx, "Bench Press")
	if err != nil {
		t.Fatalf("ListPRs failed: %v", err)
	}
	for _, r := range records {
		if !r.AchievedAt.Equal(res.Sets[0].LoggedAt) {
			t.Errorf("%s achieved_at mismatch: got %v, want %v", r.RecordType, r.AchievedAt, res.Sets[0].LoggedAt)
		}
	}
}

func TestEditSetRaisesRecord(t *testing.T) {
	db, ctx := setupTestDB(t)

	res, err := db.LogExercise(ctx, LogEntry{Exercise: "Deadlift", Reps: 5, Weight: f64(100)}, LogOptions{})
	if err != nil {
		t.Fatalf("LogExercise failed: %v", err)
	}
	set, checks, err := db.EditSet(ctx, res.Sets[0].ID, SetPatch{Weight: f64(105)})
	if err != nil {
		t.Fatalf("EditSet failed: %v", err)
	}
	if *set.Weight != 105 {
		t.Errorf("weight mismatch: got %v, want 105", *set.Weight)
	}
	var raised bool
	for _, c := range checks {
		if c.RecordType == models.RecordMaxWeight && c.Value == 105 {
			raised = true
		}
	}
	if !raised {
		t.Errorf("expected max_weight 105 record, got %+v", checks)
	}

	other := userctx.WithUserID(context.Background(), 2)
	if _, _, err := db.EditSet(other, res.Sets[0].ID, SetPatch{Reps: intp(1)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for another user, got %v", err)
	}
	if err := db.DeleteSet(other, res.Sets[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for another user, got %v", err)
	}
	if _, _, err := db.EditSet(ctx, res.Sets[0].ID, SetPatch{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for empty patch, got %v", err)
	}
}

func TestLogRoutine(t *testing.T) {
	db, ctx := setupTestDB(t)
	programID := createTestProgram(t, db, ctx, pushPullInput())

	res, err := db.LogRoutine(ctx, RoutineInput{
		ProgramID: programID,
		Timezone:  "UTC",
		Overrides: []RoutineOverride{{Exercise: "bench", Weight: f64(82.5)}},
		Skip:      []string{"Overhead Press"},
	})
	if err != nil {
		t.Fatalf("LogRoutine failed: %v", err)
	}
	if res.DayLabel != "Push" {
		t.Errorf("DayLabel mismatch: got %q, want Push", res.DayLabel)
	}
	if !res.SessionCreated {
		t.Error("routine should start a session")
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "Overhead Press" {
		t.Errorf("Skipped mismatch: got %v", res.Skipped)
	}
	if len(res.Exercises) != 2 {
		t.Fatalf("expected 2 logged exercises, got %d", len(res.Exercises))
	}

	bench := res.Exercises[0]
	if len(bench.Sets) != 3 {
		t.Fatalf("expected 3 bench sets, got %d", len(bench.Sets))
	}
	for _, s := range bench.Sets {
		if *s.Weight != 82.5 || *s.Reps != 8 {
			t.Errorf("bench set mismatch: %+v", s)
		}
	}
	pushdown := res.Exercises[1]
	if len(pushdown.Sets) != 3 || *pushdown.Sets[2].Reps != 8 {
		t.Errorf("pushdown sets mismatch: %+v", pushdown.Sets)
	}

	session, err := db.GetSession(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.ProgramDayID == nil || *session.ProgramDayID != res.DayID {
		t.Errorf("session not bound to day %d: %v", res.DayID, session.ProgramDayID)
	}
	// Pre-created rows from the day are filled rather than duplicated.
	if session.ExerciseCount != 3 {
		t.Errorf("ExerciseCount mismatch: got %d, want 3", session.ExerciseCount)
	}
}

func TestLogRoutineRestDay(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx
	programID := createTestProgram(t, db, ctx, pushPullInput())

	// Saturday has no day scheduled.
	env.clock.Advance(5 * 24 * time.Hour)
	_, err := db.LogRoutine(ctx, RoutineInput{ProgramID: programID, Timezone: "UTC"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error on a rest day, got %v", err)
	}

	p, err := db.GetProgram(ctx, programID, 0)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	pull := p.Version.Days[1].ID
	res, err := db.LogRoutine(ctx, RoutineInput{DayID: &pull})
	if err != nil {
		t.Fatalf("LogRoutine with day_id failed: %v", err)
	}
	if res.DayLabel != "Pull" || len(res.Exercises) != 2 {
		t.Errorf("unexpected routine result: %+v", res)
	}
}
