// ABOUTME: Program versioning: every structural edit deep-clones the latest version.
// ABOUTME: Old versions are never mutated; "latest" is MAX(version_number) at query time.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

// ProgramInput creates a program with its first version.
type ProgramInput struct {
	Name        string     `json:"name" jsonschema:"program name"`
	Description *string    `json:"description,omitempty"`
	Activate    bool       `json:"activate,omitempty" jsonschema:"make this the active program"`
	Days        []DayInput `json:"days,omitempty"`
}

// DayInput is a full day tree. Exercises reference groups and sections by
// their index in Groups and Sections.
type DayInput struct {
	Label     string             `json:"label"`
	Weekdays  []int              `json:"weekdays,omitempty" jsonschema:"ISO weekdays 1=Mon..7=Sun"`
	Groups    []GroupInput       `json:"groups,omitempty"`
	Sections  []SectionInput     `json:"sections,omitempty"`
	Exercises []DayExerciseInput `json:"exercises,omitempty"`
}

// GroupInput is a superset, paired or circuit group.
type GroupInput struct {
	GroupType   string  `json:"group_type" jsonschema:"superset, paired or circuit"`
	Label       *string `json:"label,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	RestSeconds *int    `json:"rest_seconds,omitempty"`
}

// SectionInput is a labeled run of exercises.
type SectionInput struct {
	Label string  `json:"label"`
	Notes *string `json:"notes,omitempty"`
}

// DayExerciseInput is a planned exercise. In a new day tree Group/Section
// are indexes; in edits GroupID/SectionID name rows of the edited version.
type DayExerciseInput struct {
	Exercise           string    `json:"exercise,omitempty" jsonschema:"exercise name, resolved against the catalog"`
	MuscleGroup        *string   `json:"muscle_group,omitempty"`
	Equipment          *string   `json:"equipment,omitempty"`
	RepType            string    `json:"rep_type,omitempty"`
	ExerciseType       string    `json:"exercise_type,omitempty"`
	TargetSets         *int      `json:"target_sets,omitempty"`
	TargetReps         *int      `json:"target_reps,omitempty"`
	TargetWeight       *float64  `json:"target_weight,omitempty"`
	TargetRPE          *float64  `json:"target_rpe,omitempty"`
	TargetRepsPerSet   []int     `json:"target_reps_per_set,omitempty"`
	TargetWeightPerSet []float64 `json:"target_weight_per_set,omitempty"`
	RestSeconds        *int      `json:"rest_seconds,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	Group              *int      `json:"group,omitempty" jsonschema:"index into the day's groups"`
	Section            *int      `json:"section,omitempty" jsonschema:"index into the day's sections"`
	GroupID            *int64    `json:"group_id,omitempty" jsonschema:"existing group id, for edits"`
	SectionID          *int64    `json:"section_id,omitempty" jsonschema:"existing section id, for edits"`
}

// Program edit operations.
const (
	OpUpdateDay      = "update_day"
	OpAddDay         = "add_day"
	OpRemoveDay      = "remove_day"
	OpAddExercise    = "add_exercise"
	OpUpdateExercise = "update_exercise"
	OpRemoveExercise = "remove_exercise"
)

// ProgramOp is one structural edit. Ids refer to rows of the version being
// edited and are translated onto the new version.
type ProgramOp struct {
	Op         string            `json:"op" jsonschema:"update_day, add_day, remove_day, add_exercise, update_exercise or remove_exercise"`
	DayID      *int64            `json:"day_id,omitempty"`
	ExerciseID *int64            `json:"exercise_id,omitempty" jsonschema:"program day exercise id"`
	Label      *string           `json:"label,omitempty"`
	Weekdays   []int             `json:"weekdays,omitempty"`
	Day        *DayInput         `json:"day,omitempty"`
	Exercise   *DayExerciseInput `json:"exercise,omitempty"`
}

// CloneResult describes a freshly cloned version. Maps translate ids of the
// source version onto the new one.
type CloneResult struct {
	ProgramID       int64
	SourceVersionID int64
	NewVersionID    int64
	VersionNumber   int
	DayMap          map[int64]int64
	GroupMap        map[int64]int64
	SectionMap      map[int64]int64
	ExerciseMap     map[int64]int64
}

type programRow struct {
	ID          int64   `db:"id"`
	UserID      int64   `db:"user_id"`
	Name        string  `db:"name"`
	Description *string `db:"description"`
	IsActive    bool    `db:"is_active"`
	CreatedAt   dbTime  `db:"created_at"`
}

func (r programRow) toModel() *models.Program {
	return &models.Program{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.Time,
	}
}

type versionRow struct {
	ID                int64   `db:"id"`
	ProgramID         int64   `db:"program_id"`
	VersionNumber     int     `db:"version_number"`
	ChangeDescription *string `db:"change_description"`
	CreatedAt         dbTime  `db:"created_at"`
}

func (r versionRow) toModel() *models.ProgramVersion {
	return &models.ProgramVersion{
		ID:                r.ID,
		ProgramID:         r.ProgramID,
		VersionNumber:     r.VersionNumber,
		ChangeDescription: r.ChangeDescription,
		CreatedAt:         r.CreatedAt.Time,
	}
}

const programColumns = `p.id, p.user_id, p.name, p.description, p.is_active, p.created_at`
const versionColumns = `v.id, v.program_id, v.version_number, v.change_description, v.created_at`

func validateDay(field string, day DayInput) error {
	if strings.TrimSpace(day.Label) == "" {
		return invalid(field+".label", "is required")
	}
	if err := validateWeekdays(field+".weekdays", day.Weekdays); err != nil {
		return err
	}
	for i, g := range day.Groups {
		if !models.IsValidGroupType(g.GroupType) {
			return invalid(fmt.Sprintf("%s.groups[%d].group_type", field, i), "must be one of superset, paired, circuit")
		}
		if g.RestSeconds != nil && *g.RestSeconds < 0 {
			return invalid(fmt.Sprintf("%s.groups[%d].rest_seconds", field, i), "must not be negative")
		}
	}
	for i, s := range day.Sections {
		if strings.TrimSpace(s.Label) == "" {
			return invalid(fmt.Sprintf("%s.sections[%d].label", field, i), "is required")
		}
	}
	for i, ex := range day.Exercises {
		f := fmt.Sprintf("%s.exercises[%d]", field, i)
		if strings.TrimSpace(ex.Exercise) == "" {
			return invalid(f+".exercise", "is required")
		}
		if ex.Group != nil && (*ex.Group < 0 || *ex.Group >= len(day.Groups)) {
			return invalid(f+".group", "index %d out of range", *ex.Group)
		}
		if ex.Section != nil && (*ex.Section < 0 || *ex.Section >= len(day.Sections)) {
			return invalid(f+".section", "index %d out of range", *ex.Section)
		}
		if err := validateTargets(f, ex); err != nil {
			return err
		}
	}
	return nil
}

func validateWeekdays(field string, weekdays []int) error {
	for _, w := range weekdays {
		if w < 1 || w > 7 {
			return invalid(field, "weekday %d must be between 1 (Mon) and 7 (Sun)", w)
		}
	}
	return nil
}

func validateTargets(field string, ex DayExerciseInput) error {
	if ex.RepType != "" && !models.IsValidRepType(ex.RepType) {
		return invalid(field+".rep_type", "must be one of reps, seconds, meters, calories")
	}
	if ex.ExerciseType != "" && !models.IsValidExerciseType(ex.ExerciseType) {
		return invalid(field+".exercise_type", "must be one of strength, mobility, cardio, warmup")
	}
	if ex.TargetSets != nil && *ex.TargetSets < 1 {
		return invalid(field+".target_sets", "must be at least 1")
	}
	if ex.TargetReps != nil && *ex.TargetReps < 0 {
		return invalid(field+".target_reps", "must not be negative")
	}
	if ex.TargetWeight != nil && *ex.TargetWeight < 0 {
		return invalid(field+".target_weight", "must not be negative")
	}
	if ex.TargetSets != nil && len(ex.TargetRepsPerSet) > 0 && len(ex.TargetRepsPerSet) != *ex.TargetSets {
		return invalid(field+".target_reps_per_set", "has %d entries for %d sets", len(ex.TargetRepsPerSet), *ex.TargetSets)
	}
	if ex.TargetSets != nil && len(ex.TargetWeightPerSet) > 0 && len(ex.TargetWeightPerSet) != *ex.TargetSets {
		return invalid(field+".target_weight_per_set", "has %d entries for %d sets", len(ex.TargetWeightPerSet), *ex.TargetSets)
	}
	return nil
}

// CreateProgram creates a program and its version 1. The user's first
// program becomes active automatically.
func (d *DB) CreateProgram(ctx context.Context, in ProgramInput) (*models.Program, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name", "is required")
	}
	for i, day := range in.Days {
		if err := validateDay(fmt.Sprintf("days[%d]", i), day); err != nil {
			return nil, err
		}
	}

	var programID int64
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		var existing int
		if err := tx.GetContext(ctx, &existing, tx.Rebind(
			`SELECT COUNT(*) FROM programs WHERE user_id = ?`), userID); err != nil {
			return fmt.Errorf("count programs: %w", err)
		}
		activate := in.Activate || existing == 0
		if activate {
			if _, err := tx.ExecContext(ctx, tx.Rebind(
				`UPDATE programs SET is_active = ? WHERE user_id = ?`), false, userID); err != nil {
				return fmt.Errorf("deactivate programs: %w", err)
			}
		}

		now := formatTime(d.now())
		if err := tx.GetContext(ctx, &programID, tx.Rebind(`
			INSERT INTO programs (user_id, name, description, is_active, created_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id
		`), userID, strings.TrimSpace(in.Name), in.Description, activate, now); err != nil {
			return fmt.Errorf("create program: %w", err)
		}

		versionID, err := d.insertVersion(ctx, tx, programID, 1, nil)
		if err != nil {
			return err
		}
		for i, day := range in.Days {
			if _, err := d.insertDayTree(ctx, tx, userID, versionID, i, day); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetProgram(ctx, programID, 0)
}

func (d *DB) insertVersion(ctx context.Context, tx *Tx, programID int64, number int, changeDescription *string) (int64, error) {
	var id int64
	if err := tx.GetContext(ctx, &id, tx.Rebind(`
		INSERT INTO program_versions (program_id, version_number, change_description, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), programID, number, changeDescription, formatTime(d.now())); err != nil {
		return 0, fmt.Errorf("create program version: %w", err)
	}
	return id, nil
}

// insertDayTree writes a day with its groups, sections and exercises.
func (d *DB) insertDayTree(ctx context.Context, tx *Tx, userID, versionID int64, sortOrder int, day DayInput) (int64, error) {
	var dayID int64
	if err := tx.GetContext(ctx, &dayID, tx.Rebind(`
		INSERT INTO program_days (version_id, label, weekdays, sort_order)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), versionID, strings.TrimSpace(day.Label), models.IntList(day.Weekdays), sortOrder); err != nil {
		return 0, fmt.Errorf("create program day: %w", err)
	}

	groupIDs := make([]int64, len(day.Groups))
	for i, g := range day.Groups {
		if err := tx.GetContext(ctx, &groupIDs[i], tx.Rebind(`
			INSERT INTO program_exercise_groups (day_id, group_type, label, notes, rest_seconds, sort_order)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id
		`), dayID, g.GroupType, g.Label, g.Notes, g.RestSeconds, i); err != nil {
			return 0, fmt.Errorf("create exercise group: %w", err)
		}
	}

	sectionIDs := make([]int64, len(day.Sections))
	for i, s := range day.Sections {
		if err := tx.GetContext(ctx, &sectionIDs[i], tx.Rebind(`
			INSERT INTO program_sections (day_id, label, notes, sort_order)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`), dayID, strings.TrimSpace(s.Label), s.Notes, i); err != nil {
			return 0, fmt.Errorf("create section: %w", err)
		}
	}

	rows := make([]models.ProgramDayExercise, 0, len(day.Exercises))
	for i, ex := range day.Exercises {
		row, err := d.dayExerciseRow(ctx, tx, userID, dayID, i, ex)
		if err != nil {
			return 0, err
		}
		if ex.Group != nil {
			row.GroupID = &groupIDs[*ex.Group]
		}
		if ex.Section != nil {
			row.SectionID = &sectionIDs[*ex.Section]
		}
		rows = append(rows, row)
	}
	if _, err := insertDayExercises(ctx, tx, rows); err != nil {
		return 0, err
	}
	return dayID, nil
}

func (d *DB) dayExerciseRow(ctx context.Context, tx *Tx, userID, dayID int64, sortOrder int, ex DayExerciseInput) (models.ProgramDayExercise, error) {
	res, err := resolveExercise(ctx, tx, userID, ResolveInput{
		Query:        ex.Exercise,
		MuscleGroup:  ex.MuscleGroup,
		Equipment:    ex.Equipment,
		RepType:      ex.RepType,
		ExerciseType: ex.ExerciseType,
	}, d.now())
	if err != nil {
		return models.ProgramDayExercise{}, err
	}
	return models.ProgramDayExercise{
		DayID:              dayID,
		ExerciseID:         res.ID,
		ExerciseName:       res.Name,
		TargetSets:         ex.TargetSets,
		TargetReps:         ex.TargetReps,
		TargetWeight:       ex.TargetWeight,
		TargetRPE:          ex.TargetRPE,
		TargetRepsPerSet:   models.IntList(ex.TargetRepsPerSet),
		TargetWeightPerSet: models.FloatList(ex.TargetWeightPerSet),
		RestSeconds:        ex.RestSeconds,
		Notes:              ex.Notes,
		SortOrder:          sortOrder,
	}, nil
}

// insertDayExercises writes rows in one multi-row INSERT and returns the new
// id per sort_order. All rows must share one day.
func insertDayExercises(ctx context.Context, q sqlx.ExtContext, rows []models.ProgramDayExercise) (map[int]int64, error) {
	ids := make(map[int]int64, len(rows))
	if len(rows) == 0 {
		return ids, nil
	}

	const cols = `day_id, exercise_id, target_sets, target_reps, target_weight, target_rpe,
		target_reps_per_set, target_weight_per_set, rest_seconds, notes, group_id, section_id, sort_order`
	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*13)
	for i, r := range rows {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, r.DayID, r.ExerciseID, r.TargetSets, r.TargetReps, r.TargetWeight, r.TargetRPE,
			r.TargetRepsPerSet, r.TargetWeightPerSet, r.RestSeconds, r.Notes, r.GroupID, r.SectionID, r.SortOrder)
	}

	query := `INSERT INTO program_day_exercises (` + cols + `) VALUES ` +
		strings.Join(placeholders, ", ") + ` RETURNING id, sort_order`
	result, err := q.QueryxContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("insert program day exercises: %w", err)
	}
	defer result.Close()
	for result.Next() {
		var id int64
		var sortOrder int
		if err := result.Scan(&id, &sortOrder); err != nil {
			return nil, fmt.Errorf("scan program day exercise: %w", err)
		}
		ids[sortOrder] = id
	}
	return ids, result.Err()
}

// lockProgram serializes version creation for a program and checks
// ownership.
func lockProgram(ctx context.Context, tx *Tx, programID, userID int64) error {
	if err := tx.lock(ctx, programLock(programID)); err != nil {
		return err
	}
	query := `SELECT id FROM programs WHERE id = ? AND user_id = ?`
	if tx.db.isPostgres() {
		query += ` FOR UPDATE`
	}
	var id int64
	err := tx.GetContext(ctx, &id, tx.Rebind(query), programID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("program", programID)
	}
	if err != nil {
		return fmt.Errorf("lock program: %w", err)
	}
	return nil
}

func nextVersionNumber(ctx context.Context, tx *Tx, programID int64) (int, error) {
	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM program_versions WHERE program_id = ?`), programID); err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return n, nil
}

// cloneVersion deep-copies sourceVersionID into a new latest version of its
// program. The source rows are only read.
func (d *DB) cloneVersion(ctx context.Context, tx *Tx, userID, sourceVersionID int64, changeDescription *string) (*CloneResult, error) {
	var programID int64
	err := tx.GetContext(ctx, &programID, tx.Rebind(`
		SELECT v.program_id FROM program_versions v
		JOIN programs p ON p.id = v.program_id
		WHERE v.id = ? AND p.user_id = ?
	`), sourceVersionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("program version", sourceVersionID)
	}
	if err != nil {
		return nil, fmt.Errorf("read program version: %w", err)
	}

	if err := lockProgram(ctx, tx, programID, userID); err != nil {
		return nil, err
	}
	number, err := nextVersionNumber(ctx, tx, programID)
	if err != nil {
		return nil, err
	}
	newVersionID, err := d.insertVersion(ctx, tx, programID, number, changeDescription)
	if err != nil {
		return nil, err
	}

	res := &CloneResult{
		ProgramID:       programID,
		SourceVersionID: sourceVersionID,
		NewVersionID:    newVersionID,
		VersionNumber:   number,
		DayMap:          make(map[int64]int64),
		GroupMap:        make(map[int64]int64),
		SectionMap:      make(map[int64]int64),
		ExerciseMap:     make(map[int64]int64),
	}

	var days []models.ProgramDay
	if err := tx.SelectContext(ctx, &days, tx.Rebind(`
		SELECT id, version_id, label, weekdays, sort_order
		FROM program_days WHERE version_id = ?
		ORDER BY sort_order, id
	`), sourceVersionID); err != nil {
		return nil, fmt.Errorf("list source days: %w", err)
	}

	for _, day := range days {
		var newDayID int64
		if err := tx.GetContext(ctx, &newDayID, tx.Rebind(`
			INSERT INTO program_days (version_id, label, weekdays, sort_order)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`), newVersionID, day.Label, day.Weekdays, day.SortOrder); err != nil {
			return nil, fmt.Errorf("clone day %d: %w", day.ID, err)
		}
		res.DayMap[day.ID] = newDayID

		groupMap, err := cloneBatch(ctx, tx, "program_exercise_groups", "program_exercise_groups", day.ID, newDayID)
		if err != nil {
			return nil, err
		}
		sectionMap, err := cloneBatch(ctx, tx, "program_sections", "program_sections", day.ID, newDayID)
		if err != nil {
			return nil, err
		}
		for k, v := range groupMap {
			res.GroupMap[k] = v
		}
		for k, v := range sectionMap {
			res.SectionMap[k] = v
		}

		exercises, err := selectDayExercises(ctx, tx, []int64{day.ID})
		if err != nil {
			return nil, err
		}
		clones := make([]models.ProgramDayExercise, len(exercises))
		oldBySort := make(map[int]int64, len(exercises))
		for i, ex := range exercises {
			c := ex
			c.ID = 0
			c.DayID = newDayID
			c.GroupID = remap(ex.GroupID, groupMap)
			c.SectionID = remap(ex.SectionID, sectionMap)
			clones[i] = c
			oldBySort[ex.SortOrder] = ex.ID
		}
		newBySort, err := insertDayExercises(ctx, tx, clones)
		if err != nil {
			return nil, fmt.Errorf("clone day %d exercises: %w", day.ID, err)
		}
		for sortOrder, newID := range newBySort {
			res.ExerciseMap[oldBySort[sortOrder]] = newID
		}
	}

	d.logger.Debug("program version cloned",
		"program_id", programID, "from_version", sourceVersionID,
		"version_number", number, "days", len(days), "exercises", len(res.ExerciseMap))
	return res, nil
}

// CloneProgramVersion creates a new latest version identical to versionID.
func (d *DB) CloneProgramVersion(ctx context.Context, versionID int64, changeDescription *string) (*CloneResult, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var res *CloneResult
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		res, err = d.cloneVersion(ctx, tx, userID, versionID, changeDescription)
		return err
	})
	return res, err
}

func latestVersionID(ctx context.Context, q sqlx.ExtContext, programID, userID int64) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(`
		SELECT v.id FROM program_versions v
		JOIN programs p ON p.id = v.program_id
		WHERE v.program_id = ? AND p.user_id = ?
		ORDER BY v.version_number DESC
		LIMIT 1
	`), programID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("program", programID)
	}
	if err != nil {
		return 0, fmt.Errorf("latest version: %w", err)
	}
	return id, nil
}

func validateOp(i int, op ProgramOp) error {
	field := fmt.Sprintf("ops[%d]", i)
	switch op.Op {
	case OpUpdateDay:
		if op.DayID == nil {
			return invalid(field+".day_id", "is required")
		}
		if op.Label == nil && op.Weekdays == nil {
			return invalid(field, "update_day needs label or weekdays")
		}
		if op.Label != nil && strings.TrimSpace(*op.Label) == "" {
			return invalid(field+".label", "must not be empty")
		}
		return validateWeekdays(field+".weekdays", op.Weekdays)
	case OpAddDay:
		if op.Day == nil {
			return invalid(field+".day", "is required")
		}
		return validateDay(field+".day", *op.Day)
	case OpRemoveDay:
		if op.DayID == nil {
			return invalid(field+".day_id", "is required")
		}
	case OpAddExercise:
		if op.DayID == nil {
			return invalid(field+".day_id", "is required")
		}
		if op.Exercise == nil || strings.TrimSpace(op.Exercise.Exercise) == "" {
			return invalid(field+".exercise", "is required")
		}
		return validateTargets(field+".exercise", *op.Exercise)
	case OpUpdateExercise:
		if op.ExerciseID == nil {
			return invalid(field+".exercise_id", "is required")
		}
		if op.Exercise == nil {
			return invalid(field+".exercise", "is required")
		}
		return validateTargets(field+".exercise", *op.Exercise)
	case OpRemoveExercise:
		if op.ExerciseID == nil {
			return invalid(field+".exercise_id", "is required")
		}
	default:
		return invalid(field+".op", "unknown operation %q", op.Op)
	}
	return nil
}

// EditProgram clones the latest version and applies ops to the clone in the
// same transaction. Any failing op rolls back the whole version.
func (d *DB) EditProgram(ctx context.Context, programID int64, changeDescription *string, ops []ProgramOp) (*models.Program, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, invalid("ops", "at least one operation is required")
	}
	for i, op := range ops {
		if err := validateOp(i, op); err != nil {
			return nil, err
		}
	}

	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if err := lockProgram(ctx, tx, programID, userID); err != nil {
			return err
		}
		sourceID, err := latestVersionID(ctx, tx, programID, userID)
		if err != nil {
			return err
		}
		clone, err := d.cloneVersion(ctx, tx, userID, sourceID, changeDescription)
		if err != nil {
			return err
		}
		for i, op := range ops {
			if err := d.applyOp(ctx, tx, userID, clone, op); err != nil {
				return fmt.Errorf("ops[%d] %s: %w", i, op.Op, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetProgram(ctx, programID, 0)
}

func (d *DB) applyOp(ctx context.Context, tx *Tx, userID int64, clone *CloneResult, op ProgramOp) error {
	switch op.Op {
	case OpUpdateDay:
		dayID, ok := clone.DayMap[*op.DayID]
		if !ok {
			return notFound("program day", *op.DayID)
		}
		sets := []string{}
		args := []any{}
		if op.Label != nil {
			sets = append(sets, "label = ?")
			args = append(args, strings.TrimSpace(*op.Label))
		}
		if op.Weekdays != nil {
			sets = append(sets, "weekdays = ?")
			args = append(args, models.IntList(op.Weekdays))
		}
		args = append(args, dayID)
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE program_days SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
		return expectOneRow(res, err, "program day", *op.DayID)

	case OpAddDay:
		var next int
		if err := tx.GetContext(ctx, &next, tx.Rebind(
			`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM program_days WHERE version_id = ?`), clone.NewVersionID); err != nil {
			return err
		}
		_, err := d.insertDayTree(ctx, tx, userID, clone.NewVersionID, next, *op.Day)
		return err

	case OpRemoveDay:
		dayID, ok := clone.DayMap[*op.DayID]
		if !ok {
			return notFound("program day", *op.DayID)
		}
		if err := forgetDay(ctx, tx, clone, dayID); err != nil {
			return err
		}
		delete(clone.DayMap, *op.DayID)
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM program_days WHERE id = ?`), dayID)
		return expectOneRow(res, err, "program day", *op.DayID)

	case OpAddExercise:
		dayID, ok := clone.DayMap[*op.DayID]
		if !ok {
			return notFound("program day", *op.DayID)
		}
		var next int
		if err := tx.GetContext(ctx, &next, tx.Rebind(
			`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM program_day_exercises WHERE day_id = ?`), dayID); err != nil {
			return err
		}
		row, err := d.dayExerciseRow(ctx, tx, userID, dayID, next, *op.Exercise)
		if err != nil {
			return err
		}
		if op.Exercise.GroupID != nil {
			if row.GroupID = remap(op.Exercise.GroupID, clone.GroupMap); row.GroupID == nil {
				return notFound("exercise group", *op.Exercise.GroupID)
			}
		}
		if op.Exercise.SectionID != nil {
			if row.SectionID = remap(op.Exercise.SectionID, clone.SectionMap); row.SectionID == nil {
				return notFound("section", *op.Exercise.SectionID)
			}
		}
		_, err = insertDayExercises(ctx, tx, []models.ProgramDayExercise{row})
		return err

	case OpUpdateExercise:
		rowID, ok := clone.ExerciseMap[*op.ExerciseID]
		if !ok {
			return notFound("program day exercise", *op.ExerciseID)
		}
		return d.updateDayExercise(ctx, tx, userID, clone, rowID, *op.Exercise)

	case OpRemoveExercise:
		rowID, ok := clone.ExerciseMap[*op.ExerciseID]
		if !ok {
			return notFound("program day exercise", *op.ExerciseID)
		}
		delete(clone.ExerciseMap, *op.ExerciseID)
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM program_day_exercises WHERE id = ?`), rowID)
		return expectOneRow(res, err, "program day exercise", *op.ExerciseID)
	}
	return invalid("op", "unknown operation %q", op.Op)
}

// expectOneRow turns a write that touched no row into NotFound.
func expectOneRow(res sql.Result, err error, entity string, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return notFound(entity, id)
	}
	return nil
}

// forgetDay drops every id mapping that points into dayID so later ops in
// the same edit cannot address rows the day delete cascades away.
func forgetDay(ctx context.Context, tx *Tx, clone *CloneResult, dayID int64) error {
	for table, m := range map[string]map[int64]int64{
		"program_day_exercises":   clone.ExerciseMap,
		"program_exercise_groups": clone.GroupMap,
		"program_sections":        clone.SectionMap,
	} {
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, tx.Rebind(`SELECT id FROM `+table+` WHERE day_id = ?`), dayID); err != nil {
			return fmt.Errorf("list %s of day %d: %w", table, dayID, err)
		}
		gone := make(map[int64]bool, len(ids))
		for _, id := range ids {
			gone[id] = true
		}
		for src, dst := range m {
			if gone[dst] {
				delete(m, src)
			}
		}
	}
	return nil
}

func (d *DB) updateDayExercise(ctx context.Context, tx *Tx, userID int64, clone *CloneResult, rowID int64, ex DayExerciseInput) error {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if strings.TrimSpace(ex.Exercise) != "" {
		res, err := resolveExercise(ctx, tx, userID, ResolveInput{
			Query: ex.Exercise, MuscleGroup: ex.MuscleGroup, Equipment: ex.Equipment,
			RepType: ex.RepType, ExerciseType: ex.ExerciseType,
		}, d.now())
		if err != nil {
			return err
		}
		add("exercise_id", res.ID)
	}
	if ex.TargetSets != nil {
		add("target_sets", *ex.TargetSets)
	}
	if ex.TargetReps != nil {
		add("target_reps", *ex.TargetReps)
	}
	if ex.TargetWeight != nil {
		add("target_weight", *ex.TargetWeight)
	}
	if ex.TargetRPE != nil {
		add("target_rpe", *ex.TargetRPE)
	}
	if ex.TargetRepsPerSet != nil {
		add("target_reps_per_set", models.IntList(ex.TargetRepsPerSet))
	}
	if ex.TargetWeightPerSet != nil {
		add("target_weight_per_set", models.FloatList(ex.TargetWeightPerSet))
	}
	if ex.RestSeconds != nil {
		add("rest_seconds", *ex.RestSeconds)
	}
	if ex.Notes != nil {
		add("notes", *ex.Notes)
	}
	if ex.GroupID != nil {
		g := remap(ex.GroupID, clone.GroupMap)
		if g == nil {
			return notFound("exercise group", *ex.GroupID)
		}
		add("group_id", *g)
	}
	if ex.SectionID != nil {
		s := remap(ex.SectionID, clone.SectionMap)
		if s == nil {
			return notFound("section", *ex.SectionID)
		}
		add("section_id", *s)
	}
	if len(sets) == 0 {
		return invalid("exercise", "nothing to update")
	}
	args = append(args, rowID)
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE program_day_exercises SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	return expectOneRow(res, err, "program day exercise", rowID)
}

// ReplaceProgram writes a fresh day tree as the next version.
func (d *DB) ReplaceProgram(ctx context.Context, programID int64, changeDescription *string, days []DayInput) (*models.Program, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	for i, day := range days {
		if err := validateDay(fmt.Sprintf("days[%d]", i), day); err != nil {
			return nil, err
		}
	}
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if err := lockProgram(ctx, tx, programID, userID); err != nil {
			return err
		}
		number, err := nextVersionNumber(ctx, tx, programID)
		if err != nil {
			return err
		}
		versionID, err := d.insertVersion(ctx, tx, programID, number, changeDescription)
		if err != nil {
			return err
		}
		for i, day := range days {
			if _, err := d.insertDayTree(ctx, tx, userID, versionID, i, day); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetProgram(ctx, programID, 0)
}

// GetProgram returns a program with the full tree of one version. A
// versionNumber of 0 selects the latest.
func (d *DB) GetProgram(ctx context.Context, programID int64, versionNumber int) (*models.Program, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return getProgram(ctx, d.db, userID, programID, versionNumber)
}

func getProgram(ctx context.Context, q sqlx.ExtContext, userID, programID int64, versionNumber int) (*models.Program, error) {
	var p programRow
	err := sqlx.GetContext(ctx, q, &p, q.Rebind(
		`SELECT `+programColumns+` FROM programs p WHERE p.id = ? AND p.user_id = ?`), programID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("program", programID)
	}
	if err != nil {
		return nil, fmt.Errorf("get program: %w", err)
	}

	query := `SELECT ` + versionColumns + ` FROM program_versions v WHERE v.program_id = ?`
	args := []any{programID}
	if versionNumber > 0 {
		query += ` AND v.version_number = ?`
		args = append(args, versionNumber)
	}
	query += ` ORDER BY v.version_number DESC LIMIT 1`

	var v versionRow
	err = sqlx.GetContext(ctx, q, &v, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("program version", versionNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get program version: %w", err)
	}

	version := v.toModel()
	if version.Days, err = loadDays(ctx, q, version.ID); err != nil {
		return nil, err
	}
	program := p.toModel()
	program.Version = version
	return program, nil
}

// loadDays returns every day of a version with groups, sections and exercises.
func loadDays(ctx context.Context, q sqlx.ExtContext, versionID int64) ([]models.ProgramDay, error) {
	var days []models.ProgramDay
	if err := sqlx.SelectContext(ctx, q, &days, q.Rebind(`
		SELECT id, version_id, label, weekdays, sort_order
		FROM program_days WHERE version_id = ?
		ORDER BY sort_order, id
	`), versionID); err != nil {
		return nil, fmt.Errorf("list program days: %w", err)
	}
	if len(days) == 0 {
		return days, nil
	}

	dayIDs := make([]int64, len(days))
	index := make(map[int64]int, len(days))
	for i, day := range days {
		dayIDs[i] = day.ID
		index[day.ID] = i
	}

	groups, err := selectGroups(ctx, q, "program_exercise_groups", "day_id", dayIDs)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		i := index[g.ParentID]
		days[i].Groups = append(days[i].Groups, g.ExerciseGroup)
	}

	sections, err := selectSections(ctx, q, "program_sections", "day_id", dayIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		i := index[s.ParentID]
		days[i].Sections = append(days[i].Sections, s.Section)
	}

	exercises, err := selectDayExercises(ctx, q, dayIDs)
	if err != nil {
		return nil, err
	}
	for _, ex := range exercises {
		i := index[ex.DayID]
		days[i].Exercises = append(days[i].Exercises, ex)
	}
	return days, nil
}

type groupRow struct {
	ParentID int64 `db:"parent_id"`
	models.ExerciseGroup
}

type sectionRow struct {
	ParentID int64 `db:"parent_id"`
	models.Section
}

// selectGroups and selectSections serve both program and session tables;
// table and parent column are always package constants.
func selectGroups(ctx context.Context, q sqlx.ExtContext, table, parentCol string, parentIDs []int64) ([]groupRow, error) {
	query, args, err := sqlx.In(`SELECT `+parentCol+` AS parent_id, id, group_type, label, notes, rest_seconds, sort_order
		FROM `+table+` WHERE `+parentCol+` IN (?) ORDER BY sort_order`, parentIDs)
	if err != nil {
		return nil, err
	}
	var rows []groupRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return rows, nil
}

func selectSections(ctx context.Context, q sqlx.ExtContext, table, parentCol string, parentIDs []int64) ([]sectionRow, error) {
	query, args, err := sqlx.In(`SELECT `+parentCol+` AS parent_id, id, label, notes, sort_order
		FROM `+table+` WHERE `+parentCol+` IN (?) ORDER BY sort_order`, parentIDs)
	if err != nil {
		return nil, err
	}
	var rows []sectionRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return rows, nil
}

func selectDayExercises(ctx context.Context, q sqlx.ExtContext, dayIDs []int64) ([]models.ProgramDayExercise, error) {
	query, args, err := sqlx.In(`
		SELECT pde.id, pde.day_id, pde.exercise_id, e.name AS exercise_name,
			pde.target_sets, pde.target_reps, pde.target_weight, pde.target_rpe,
			pde.target_reps_per_set, pde.target_weight_per_set, pde.rest_seconds, pde.notes,
			pde.group_id, pde.section_id, pde.sort_order
		FROM program_day_exercises pde
		JOIN exercises e ON e.id = pde.exercise_id
		WHERE pde.day_id IN (?)
		ORDER BY pde.sort_order, pde.id
	`, dayIDs)
	if err != nil {
		return nil, err
	}
	var rows []models.ProgramDayExercise
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list program day exercises: %w", err)
	}
	return rows, nil
}

// ListPrograms returns the user's programs with their latest version header.
func (d *DB) ListPrograms(ctx context.Context) ([]models.Program, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		programRow
		VersionID         int64   `db:"version_id"`
		VersionNumber     int     `db:"version_number"`
		ChangeDescription *string `db:"change_description"`
		VersionCreatedAt  dbTime  `db:"version_created_at"`
	}
	err = d.db.SelectContext(ctx, &rows, d.db.Rebind(`
		SELECT `+programColumns+`, v.id AS version_id, v.version_number, v.change_description,
			v.created_at AS version_created_at
		FROM programs p
		JOIN program_versions v ON v.program_id = p.id
		WHERE p.user_id = ?
		  AND v.version_number = (SELECT MAX(version_number) FROM program_versions WHERE program_id = p.id)
		ORDER BY p.is_active DESC, p.created_at DESC, p.id DESC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	programs := make([]models.Program, len(rows))
	for i, r := range rows {
		p := r.programRow.toModel()
		p.Version = &models.ProgramVersion{
			ID:                r.VersionID,
			ProgramID:         r.ID,
			VersionNumber:     r.VersionNumber,
			ChangeDescription: r.ChangeDescription,
			CreatedAt:         r.VersionCreatedAt.Time,
		}
		programs[i] = *p
	}
	return programs, nil
}

// ProgramHistory lists every version of a program, oldest first.
func (d *DB) ProgramHistory(ctx context.Context, programID int64) ([]models.ProgramVersion, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var rows []versionRow
	err = d.db.SelectContext(ctx, &rows, d.db.Rebind(`
		SELECT `+versionColumns+`
		FROM program_versions v
		JOIN programs p ON p.id = v.program_id
		WHERE v.program_id = ? AND p.user_id = ?
		ORDER BY v.version_number
	`), programID, userID)
	if err != nil {
		return nil, fmt.Errorf("program history: %w", err)
	}
	if len(rows) == 0 {
		return nil, notFound("program", programID)
	}
	versions := make([]models.ProgramVersion, len(rows))
	for i, r := range rows {
		versions[i] = *r.toModel()
	}
	return versions, nil
}

// ActiveProgram returns the user's active program with its latest tree.
func (d *DB) ActiveProgram(ctx context.Context) (*models.Program, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	id, err := activeProgramID(ctx, d.db, userID)
	if err != nil {
		return nil, err
	}
	return getProgram(ctx, d.db, userID, id, 0)
}

func activeProgramID(ctx context.Context, q sqlx.ExtContext, userID int64) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(
		`SELECT id FROM programs WHERE user_id = ? AND is_active = ? ORDER BY id DESC LIMIT 1`), userID, true)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("active program", nil)
	}
	if err != nil {
		return 0, fmt.Errorf("active program: %w", err)
	}
	return id, nil
}

// ActivateProgram makes programID the only active program of the user.
func (d *DB) ActivateProgram(ctx context.Context, programID int64) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	return d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		var owned int
		if err := tx.GetContext(ctx, &owned, tx.Rebind(
			`SELECT COUNT(*) FROM programs WHERE id = ? AND user_id = ?`), programID, userID); err != nil {
			return fmt.Errorf("check program: %w", err)
		}
		if owned == 0 {
			return notFound("program", programID)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE programs SET is_active = (id = ?) WHERE user_id = ?`), programID, userID); err != nil {
			return fmt.Errorf("activate program: %w", err)
		}
		return nil
	})
}

// DeleteProgram removes a program and, by cascade, all of its versions.
func (d *DB) DeleteProgram(ctx context.Context, programID int64) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, d.db.Rebind(`DELETE FROM programs WHERE id = ? AND user_id = ?`), programID, userID)
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("program", programID)
	}
	return nil
}
