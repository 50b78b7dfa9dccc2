// ABOUTME: Tests for program creation, versioned edits and activation.
// ABOUTME: Old versions must stay byte-for-byte unchanged after every edit.
package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

func pushPullInput() ProgramInput {
	return ProgramInput{
		Name: "PPL",
		Days: []DayInput{
			{
				Label:    "Push",
				Weekdays: []int{1, 4},
				Groups:   []GroupInput{{GroupType: "superset", Label: str("A")}},
				Sections: []SectionInput{{Label: "Main"}},
				Exercises: []DayExerciseInput{
					{Exercise: "Bench Press", TargetSets: intp(3), TargetReps: intp(8), TargetWeight: f64(80), Section: intp(0)},
					{Exercise: "Overhead Press", TargetSets: intp(3), TargetReps: intp(10), TargetWeight: f64(40), Group: intp(0)},
					{Exercise: "Triceps Pushdown", TargetRepsPerSet: []int{12, 10, 8}, Group: intp(0)},
				},
			},
			{
				Label:    "Pull",
				Weekdays: []int{2, 5},
				Exercises: []DayExerciseInput{
					{Exercise: "Deadlift", TargetSets: intp(1), TargetReps: intp(5), TargetWeight: f64(140)},
					{Exercise: "Pull Up", TargetSets: intp(3), TargetReps: intp(8)},
				},
			},
		},
	}
}

func createTestProgram(t *testing.T, db *DB, ctx context.Context, in ProgramInput) int64 {
	t.Helper()
	p, err := db.CreateProgram(ctx, in)
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}
	return p.ID
}

func TestCreateProgram(t *testing.T) {
	db, ctx := setupTestDB(t)

	p, err := db.CreateProgram(ctx, pushPullInput())
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}
	if !p.IsActive {
		t.Error("first program should be active")
	}
	if p.Version == nil || p.Version.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %+v", p.Version)
	}
	if len(p.Version.Days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(p.Version.Days))
	}

	push := p.Version.Days[0]
	if push.Label != "Push" || !push.HasWeekday(4) {
		t.Errorf("unexpected push day: %+v", push)
	}
	if len(push.Groups) != 1 || len(push.Sections) != 1 || len(push.Exercises) != 3 {
		t.Fatalf("unexpected push tree: %d groups, %d sections, %d exercises",
			len(push.Groups), len(push.Sections), len(push.Exercises))
	}
	bench := push.Exercises[0]
	if bench.ExerciseName != "Bench Press" {
		t.Errorf("ExerciseName mismatch: got %q", bench.ExerciseName)
	}
	if bench.SectionID == nil || *bench.SectionID != push.Sections[0].ID {
		t.Errorf("bench section mismatch: got %v", bench.SectionID)
	}
	ohp := push.Exercises[1]
	if ohp.GroupID == nil || *ohp.GroupID != push.Groups[0].ID {
		t.Errorf("ohp group mismatch: got %v", ohp.GroupID)
	}
	if got := []int(push.Exercises[2].TargetRepsPerSet); len(got) != 3 || got[2] != 8 {
		t.Errorf("TargetRepsPerSet mismatch: got %v", got)
	}
}

func TestCreateProgramValidation(t *testing.T) {
	db, ctx := setupTestDB(t)

	tests := []struct {
		name string
		in   ProgramInput
	}{
		{"empty name", ProgramInput{Name: " "}},
		{"bad weekday", ProgramInput{Name: "X", Days: []DayInput{{Label: "A", Weekdays: []int{8}}}}},
		{"bad group index", ProgramInput{Name: "X", Days: []DayInput{{Label: "A", Exercises: []DayExerciseInput{{Exercise: "Deadlift", Group: intp(2)}}}}}},
		{"bad group type", ProgramInput{Name: "X", Days: []DayInput{{Label: "A", Groups: []GroupInput{{GroupType: "giant"}}}}}},
		{"negative sets", ProgramInput{Name: "X", Days: []DayInput{{Label: "A", Exercises: []DayExerciseInput{{Exercise: "Deadlift", TargetSets: intp(-1)}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.CreateProgram(ctx, tt.in)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	programs, err := db.ListPrograms(ctx)
	if err != nil {
		t.Fatalf("ListPrograms failed: %v", err)
	}
	if len(programs) != 0 {
		t.Errorf("invalid input created %d programs", len(programs))
	}
}

func TestEditProgramKeepsOldVersion(t *testing.T) {
	db, ctx := setupTestDB(t)
	programID := createTestProgram(t, db, ctx, pushPullInput())

	v1, err := db.GetProgram(ctx, programID, 1)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	push := v1.Version.Days[0]
	pull := v1.Version.Days[1]
	bench := push.Exercises[0]

	v2, err := db.EditProgram(ctx, programID, str("heavier bench"), []ProgramOp{
		{Op: OpUpdateExercise, ExerciseID: &bench.ID, Exercise: &DayExerciseInput{TargetWeight: f64(85), Notes: str("paused")}},
		{Op: OpUpdateDay, DayID: &push.ID, Label: str("Push A"), Weekdays: []int{3}},
		{Op: OpRemoveExercise, ExerciseID: &push.Exercises[2].ID},
		{Op: OpAddExercise, DayID: &push.ID, Exercise: &DayExerciseInput{Exercise: "Cable Fly", SectionID: &push.Sections[0].ID}},
		{Op: OpRemoveDay, DayID: &pull.ID},
	})
	if err != nil {
		t.Fatalf("EditProgram failed: %v", err)
	}
	if v2.Version.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %d", v2.Version.VersionNumber)
	}
	newBench := v2.Version.Days[0].Exercises[0]
	if newBench.ID == bench.ID {
		t.Error("edited row should be a new row")
	}
	if newBench.TargetWeight == nil || *newBench.TargetWeight != 85 {
		t.Errorf("new TargetWeight mismatch: got %v", newBench.TargetWeight)
	}

	again, err := db.GetProgram(ctx, programID, 1)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	if again.Version.ID != v1.Version.ID || again.Version.VersionNumber != 1 ||
		!again.Version.CreatedAt.Equal(v1.Version.CreatedAt) {
		t.Errorf("version 1 header changed: got %+v", again.Version)
	}
	if !reflect.DeepEqual(again.Version.Days, v1.Version.Days) {
		t.Errorf("version 1 tree changed:\nbefore: %+v\nafter:  %+v", v1.Version.Days, again.Version.Days)
	}

	// The superset membership moved to the cloned group.
	newOHP := v2.Version.Days[0].Exercises[1]
	if newOHP.GroupID == nil || *newOHP.GroupID != v2.Version.Days[0].Groups[0].ID {
		t.Errorf("cloned group link mismatch: got %v", newOHP.GroupID)
	}
	if *newOHP.GroupID == *v1.Version.Days[0].Exercises[1].GroupID {
		t.Error("cloned exercise still points at the old group")
	}

	history, err := db.ProgramHistory(ctx, programID)
	if err != nil {
		t.Fatalf("ProgramHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
}

func TestEditProgramOpsOnRemovedRows(t *testing.T) {
	db, ctx := setupTestDB(t)
	programID := createTestProgram(t, db, ctx, pushPullInput())
	v1, err := db.GetProgram(ctx, programID, 0)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	push := v1.Version.Days[0]
	pull := v1.Version.Days[1]

	tests := []struct {
		name string
		ops  []ProgramOp
	}{
		{"update removed exercise", []ProgramOp{
			{Op: OpRemoveExercise, ExerciseID: &push.Exercises[0].ID},
			{Op: OpUpdateExercise, ExerciseID: &push.Exercises[0].ID, Exercise: &DayExerciseInput{TargetReps: intp(8)}},
		}},
		{"remove exercise twice", []ProgramOp{
			{Op: OpRemoveExercise, ExerciseID: &push.Exercises[0].ID},
			{Op: OpRemoveExercise, ExerciseID: &push.Exercises[0].ID},
		}},
		{"add exercise to removed day", []ProgramOp{
			{Op: OpRemoveDay, DayID: &pull.ID},
			{Op: OpAddExercise, DayID: &pull.ID, Exercise: &DayExerciseInput{Exercise: "Deadlift"}},
		}},
		{"update removed day", []ProgramOp{
			{Op: OpRemoveDay, DayID: &pull.ID},
			{Op: OpUpdateDay, DayID: &pull.ID, Label: str("Pull B")},
		}},
		{"update exercise of removed day", []ProgramOp{
			{Op: OpRemoveDay, DayID: &pull.ID},
			{Op: OpUpdateExercise, ExerciseID: &pull.Exercises[0].ID, Exercise: &DayExerciseInput{TargetReps: intp(3)}},
		}},
		{"group of removed day", []ProgramOp{
			{Op: OpRemoveDay, DayID: &push.ID},
			{Op: OpAddExercise, DayID: &pull.ID, Exercise: &DayExerciseInput{Exercise: "Cable Fly", GroupID: &push.Groups[0].ID}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.EditProgram(ctx, programID, nil, tt.ops)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected not found, got %v", err)
			}
		})
	}

	history, err := db.ProgramHistory(ctx, programID)
	if err != nil {
		t.Fatalf("ProgramHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("failed edits left %d versions, want 1", len(history))
	}
}

func TestEditProgramOps(t *testing.T) {
	db, ctx := setupTestDB(t)
	programID := createTestProgram(t, db, ctx, pushPullInput())
	v1, err := db.GetProgram(ctx, programID, 0)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	push := v1.Version.Days[0]
	pull := v1.Version.Days[1]

	v2, err := db.EditProgram(ctx, programID, nil, []ProgramOp{
		{Op: OpUpdateDay, DayID: &push.ID, Label: str("Push A"), Weekdays: []int{1}},
		{Op: OpRemoveDay, DayID: &pull.ID},
		{Op: OpAddDay, Day: &DayInput{Label: "Legs", Weekdays: []int{3}, Exercises: []DayExerciseInput{
			{Exercise: "Back Squat", TargetSets: intp(5), TargetReps: intp(5), TargetWeight: f64(100)},
		}}},
		{Op: OpAddExercise, DayID: &push.ID, Exercise: &DayExerciseInput{Exercise: "Cable Fly", TargetSets: intp(3), TargetReps: intp(15), GroupID: &push.Groups[0].ID}},
		{Op: OpRemoveExercise, ExerciseID: &push.Exercises[2].ID},
	})
	if err != nil {
		t.Fatalf("EditProgram failed: %v", err)
	}

	days := v2.Version.Days
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Label != "Push A" || days[0].HasWeekday(4) {
		t.Errorf("update_day not applied: %+v", days[0])
	}
	if days[1].Label != "Legs" || days[1].Exercises[0].ExerciseName != "Back Squat" {
		t.Errorf("add_day not applied: %+v", days[1])
	}
	names := []string{}
	for _, ex := range days[0].Exercises {
		names = append(names, ex.ExerciseName)
	}
	want := []string{"Bench Press", "Overhead Press", "Cable Fly"}
	if len(names) != len(want) {
		t.Fatalf("push exercises mismatch: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("exercise %d mismatch: got %q, want %q", i, names[i], want[i])
		}
	}
	fly := days[0].Exercises[2]
	if fly.GroupID == nil || *fly.GroupID != days[0].Groups[0].ID {
		t.Errorf("add_exercise group not translated: got %v", fly.GroupID)
	}
}

func TestEditProgramFailedOpRollsBack(t *testing.T) {
	env := setupTestEnv(t)
	db, ctx := env.db, env.ctx
	programID := createTestProgram(t, db, ctx, pushPullInput())

	missing := int64(99999)
	_, err := db.EditProgram(ctx, programID, nil, []ProgramOp{
		{Op: OpUpdateDay, DayID: &missing, Label: str("Nope")},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if env.rec.tx("rollback") == 0 {
		t.Error("expected a recorded rollback")
	}

	history, err := db.ProgramHistory(ctx, programID)
	if err != nil {
		t.Fatalf("ProgramHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("failed edit left %d versions, want 1", len(history))
	}
}

func TestEditProgramRejectsUnknownOp(t *testing.T) {
	db, ctx := setupTestDB(t)
	programID := createTestProgram(t, db, ctx, pushPullInput())

	_, err := db.EditProgram(ctx, programID, nil, []ProgramOp{{Op: "rename_everything"}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReplaceProgram(t *testing.T) {
	db, ctx := setupTestDB(t)
	programID := createTestProgram(t, db, ctx, pushPullInput())

	p, err := db.ReplaceProgram(ctx, programID, str("full body"), []DayInput{
		{Label: "Full Body", Weekdays: []int{1, 3, 5}, Exercises: []DayExerciseInput{{Exercise: "Deadlift", TargetReps: intp(5)}}},
	})
	if err != nil {
		t.Fatalf("ReplaceProgram failed: %v", err)
	}
	if p.Version.VersionNumber != 2 || len(p.Version.Days) != 1 {
		t.Errorf("unexpected replaced version: %+v", p.Version)
	}

	v1, err := db.GetProgram(ctx, programID, 1)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	if len(v1.Version.Days) != 2 {
		t.Errorf("version 1 changed: %d days", len(v1.Version.Days))
	}
}

func TestCloneProgramVersion(t *testing.T) {
	db, ctx := setupTestDB(t)
	programID := createTestProgram(t, db, ctx, pushPullInput())
	v1, err := db.GetProgram(ctx, programID, 0)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}

	res, err := db.CloneProgramVersion(ctx, v1.Version.ID, str("copy"))
	if err != nil {
		t.Fatalf("CloneProgramVersion failed: %v", err)
	}
	if res.VersionNumber != 2 {
		t.Errorf("VersionNumber mismatch: got %d, want 2", res.VersionNumber)
	}
	if len(res.DayMap) != 2 || len(res.GroupMap) != 1 || len(res.SectionMap) != 1 || len(res.ExerciseMap) != 5 {
		t.Errorf("unexpected map sizes: days=%d groups=%d sections=%d exercises=%d",
			len(res.DayMap), len(res.GroupMap), len(res.SectionMap), len(res.ExerciseMap))
	}
	for oldID, newID := range res.ExerciseMap {
		if oldID == newID {
			t.Errorf("exercise %d was not copied", oldID)
		}
	}

	other := userctx.WithUserID(context.Background(), 2)
	if _, err := db.CloneProgramVersion(other, v1.Version.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for another user, got %v", err)
	}
}

func TestActivateProgram(t *testing.T) {
	db, ctx := setupTestDB(t)
	first := createTestProgram(t, db, ctx, pushPullInput())
	second := createTestProgram(t, db, ctx, ProgramInput{Name: "5x5"})

	active, err := db.ActiveProgram(ctx)
	if err != nil {
		t.Fatalf("ActiveProgram failed: %v", err)
	}
	if active.ID != first {
		t.Errorf("active program mismatch: got %d, want %d", active.ID, first)
	}

	if err := db.ActivateProgram(ctx, second); err != nil {
		t.Fatalf("ActivateProgram failed: %v", err)
	}
	programs, err := db.ListPrograms(ctx)
	if err != nil {
		t.Fatalf("ListPrograms failed: %v", err)
	}
	if len(programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(programs))
	}
	if programs[0].ID != second || !programs[0].IsActive || programs[1].IsActive {
		t.Errorf("unexpected activation state: %+v", programs)
	}

	if err := db.DeleteProgram(ctx, second); err != nil {
		t.Fatalf("DeleteProgram failed: %v", err)
	}
	if _, err := db.ActiveProgram(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no active program, got %v", err)
	}
}
