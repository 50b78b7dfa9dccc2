// ABOUTME: Set-logging transaction shared by single, bulk and routine logging.
// ABOUTME: All input is validated before the first write; a bulk log is one transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/stats"
)

// LogEntry is one exercise with its sets. Reps is a number or an array with
// one entry per set; SetNotes is a string for every set or a per-set array.
type LogEntry struct {
	Exercise     string    `json:"exercise" jsonschema:"exercise name, resolved against the catalog"`
	MuscleGroup  *string   `json:"muscle_group,omitempty" jsonschema:"used when the exercise is created"`
	Equipment    *string   `json:"equipment,omitempty" jsonschema:"used when the exercise is created"`
	RepType      string    `json:"rep_type,omitempty" jsonschema:"reps, seconds, meters or calories, used when the exercise is created"`
	ExerciseType string    `json:"exercise_type,omitempty" jsonschema:"strength, mobility, cardio or warmup, used when the exercise is created"`
	Sets         int       `json:"sets,omitempty" jsonschema:"number of sets, defaults to 1 or the length of reps"`
	Reps         any       `json:"reps" jsonschema:"reps for every set, or an array with one entry per set"`
	Weight       *float64  `json:"weight,omitempty"`
	Weights      []float64 `json:"weights,omitempty" jsonschema:"per-set weights, one entry per set"`
	RPE          *float64  `json:"rpe,omitempty"`
	SetType      string    `json:"set_type,omitempty" jsonschema:"working, warmup, drop or failure"`
	DropPercent  *float64  `json:"drop_percent,omitempty" jsonschema:"for drop sets: percent of the first weight removed per set"`
	Notes        *string   `json:"notes,omitempty" jsonschema:"notes for the exercise in this session"`
	SetNotes     any       `json:"set_notes,omitempty" jsonschema:"a note for every set, or an array with one entry per set"`
	RestSeconds  *int      `json:"rest_seconds,omitempty"`
	GroupID      *int64    `json:"group_id,omitempty" jsonschema:"session exercise group id"`
}

// LogOptions applies to a whole log call.
type LogOptions struct {
	Locale string
	// LoggedAt backdates every set and PR of the call.
	LoggedAt *time.Time
}

// LogResult is the outcome for one exercise.
type LogResult struct {
	SessionID         int64        `json:"session_id"`
	SessionExerciseID int64        `json:"session_exercise_id"`
	ExerciseID        int64        `json:"exercise_id"`
	Exercise          string       `json:"exercise"`
	IsNew             bool         `json:"is_new_exercise"`
	Sets              []models.Set `json:"sets"`
	PRs               []PRCheck    `json:"new_prs,omitempty"`
}

// WorkoutResult is the outcome of a bulk log.
type WorkoutResult struct {
	SessionID      int64       `json:"session_id"`
	SessionCreated bool        `json:"session_created"`
	Exercises      []LogResult `json:"exercises"`
}

// preparedEntry is a validated entry expanded to one value per set.
type preparedEntry struct {
	entry LogEntry
	// exerciseID pins the catalog row, skipping name resolution.
	exerciseID int64
	setType models.SetType
	reps    []int
	weights []*float64
	notes   []*string
}

func prepareEntry(field string, e LogEntry) (*preparedEntry, error) {
	if strings.TrimSpace(e.Exercise) == "" {
		return nil, invalid(field+".exercise", "is required")
	}
	if e.Sets < 0 {
		return nil, invalid(field+".sets", "must not be negative")
	}
	if e.RepType != "" && !models.IsValidRepType(e.RepType) {
		return nil, invalid(field+".rep_type", "must be one of reps, seconds, meters, calories")
	}
	if e.ExerciseType != "" && !models.IsValidExerciseType(e.ExerciseType) {
		return nil, invalid(field+".exercise_type", "must be one of strength, mobility, cardio, warmup")
	}
	setType := models.SetWorking
	if e.SetType != "" {
		if !models.IsValidSetType(e.SetType) {
			return nil, invalid(field+".set_type", "must be one of working, warmup, drop, failure")
		}
		setType = models.SetType(e.SetType)
	}
	if e.Weight != nil && *e.Weight < 0 {
		return nil, invalid(field+".weight", "must not be negative")
	}
	if e.RPE != nil && (*e.RPE < 0 || *e.RPE > 10) {
		return nil, invalid(field+".rpe", "must be between 0 and 10")
	}
	if e.DropPercent != nil && (*e.DropPercent <= 0 || *e.DropPercent >= 100) {
		return nil, invalid(field+".drop_percent", "must be between 0 and 100")
	}
	if e.RestSeconds != nil && *e.RestSeconds < 0 {
		return nil, invalid(field+".rest_seconds", "must not be negative")
	}

	reps, err := stats.ExpandReps(e.Reps, e.Sets)
	if err != nil {
		return nil, invalid(field+".reps", "%s", err.Error())
	}
	n := len(reps)

	weights := make([]*float64, n)
	switch {
	case len(e.Weights) > 0:
		if len(e.Weights) != n {
			return nil, invalid(field+".weights", "has %d entries for %d sets", len(e.Weights), n)
		}
		for i := range e.Weights {
			if e.Weights[i] < 0 {
				return nil, invalid(field+".weights", "entry %d must not be negative", i)
			}
			w := e.Weights[i]
			weights[i] = &w
		}
	case setType == models.SetDrop && e.Weight != nil && e.DropPercent != nil:
		for i, w := range stats.DropSetWeights(*e.Weight, *e.DropPercent, n) {
			w := w
			weights[i] = &w
		}
	case e.Weight != nil:
		for i := range weights {
			w := *e.Weight
			weights[i] = &w
		}
	}

	notes, err := stats.ExpandNotes(e.SetNotes, n)
	if err != nil {
		return nil, invalid(field+".set_notes", "%s", err.Error())
	}

	return &preparedEntry{entry: e, setType: setType, reps: reps, weights: weights, notes: notes}, nil
}

// LogExercise logs sets of one exercise into the open session, starting one
// when needed.
func (d *DB) LogExercise(ctx context.Context, entry LogEntry, opts LogOptions) (*LogResult, error) {
	res, err := d.LogWorkout(ctx, []LogEntry{entry}, opts)
	if err != nil {
		return nil, err
	}
	return &res.Exercises[0], nil
}

// LogWorkout logs several exercises in one transaction. Any failure rolls
// back every entry, including an implicitly started session.
func (d *DB) LogWorkout(ctx context.Context, entries []LogEntry, opts LogOptions) (*WorkoutResult, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, invalid("exercises", "at least one exercise is required")
	}
	prepared := make([]*preparedEntry, len(entries))
	for i, e := range entries {
		field := "exercises[" + fmt.Sprint(i) + "]"
		if len(entries) == 1 {
			field = "entry"
		}
		if prepared[i], err = prepareEntry(field, e); err != nil {
			return nil, err
		}
	}

	result := &WorkoutResult{}
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		session, created, err := d.ensureActiveSession(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.SessionID = session.ID
		result.SessionCreated = created
		for _, p := range prepared {
			r, err := d.logSingleExercise(ctx, tx, userID, session, p, opts)
			if err != nil {
				return fmt.Errorf("log %s: %w", p.entry.Exercise, err)
			}
			result.Exercises = append(result.Exercises, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// logSingleExercise writes one prepared entry inside tx.
func (d *DB) logSingleExercise(ctx context.Context, tx *Tx, userID int64, session *sessionRow, p *preparedEntry, opts LogOptions) (*LogResult, error) {
	e := p.entry
	var ex *ResolvedExercise
	var err error
	if p.exerciseID != 0 {
		ex, err = exerciseByID(ctx, tx, userID, p.exerciseID, opts.Locale)
	} else {
		ex, err = resolveExercise(ctx, tx, userID, ResolveInput{
			Query:        e.Exercise,
			MuscleGroup:  e.MuscleGroup,
			Equipment:    e.Equipment,
			RepType:      e.RepType,
			ExerciseType: e.ExerciseType,
			Locale:       opts.Locale,
		}, d.now())
	}
	if err != nil {
		return nil, err
	}

	if e.GroupID != nil {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(
			`SELECT COUNT(*) FROM session_exercise_groups WHERE id = ? AND session_id = ?`), *e.GroupID, session.ID); err != nil {
			return nil, fmt.Errorf("check exercise group: %w", err)
		}
		if n == 0 {
			return nil, notFound("session exercise group", *e.GroupID)
		}
	}

	seID, err := d.sessionExerciseFor(ctx, tx, userID, session.ID, ex.ID, e)
	if err != nil {
		return nil, err
	}

	var maxSet int
	if err := tx.GetContext(ctx, &maxSet, tx.Rebind(
		`SELECT COALESCE(MAX(set_number), 0) FROM sets WHERE session_exercise_id = ?`), seID); err != nil {
		return nil, fmt.Errorf("next set number: %w", err)
	}

	loggedAt := d.now().UTC()
	if opts.LoggedAt != nil {
		loggedAt = opts.LoggedAt.UTC()
	}
	sets, err := insertSets(ctx, tx, seID, maxSet+1, p, loggedAt)
	if err != nil {
		return nil, err
	}

	result := &LogResult{
		SessionID:         session.ID,
		SessionExerciseID: seID,
		ExerciseID:        ex.ID,
		Exercise:          ex.DisplayName,
		IsNew:             ex.IsNew,
		Sets:              sets,
	}

	if session.IsValidated {
		candidates := make([]prSet, len(sets))
		for i, st := range sets {
			candidates[i] = prSet{ID: st.ID, Reps: st.Reps, Weight: st.Weight, SetType: st.SetType, LoggedAt: dbTime{st.LoggedAt}}
		}
		if result.PRs, err = d.checkPRs(ctx, tx, userID, ex.ID, ex.ExerciseType, candidates, opts.LoggedAt); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// sessionExerciseFor reuses the session's row for the exercise, back-filling
// only empty columns, or appends a new one.
func (d *DB) sessionExerciseFor(ctx context.Context, tx *Tx, userID, sessionID, exerciseID int64, e LogEntry) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, tx.Rebind(`
		SELECT se.id FROM session_exercises se
		JOIN sessions s ON s.id = se.session_id
		WHERE se.session_id = ? AND se.exercise_id = ? AND s.user_id = ?
		ORDER BY se.sort_order, se.id
		LIMIT 1
	`), sessionID, exerciseID, userID)
	switch {
	case err == nil:
		if e.Notes != nil || e.RestSeconds != nil || e.GroupID != nil {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE session_exercises
				SET notes = COALESCE(notes, ?), rest_seconds = COALESCE(rest_seconds, ?), group_id = COALESCE(group_id, ?)
				WHERE id = ?
			`), e.Notes, e.RestSeconds, e.GroupID, id); err != nil {
				return 0, fmt.Errorf("update session exercise: %w", err)
			}
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("find session exercise: %w", err)
	}

	var next int
	if err := tx.GetContext(ctx, &next, tx.Rebind(
		`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM session_exercises WHERE session_id = ?`), sessionID); err != nil {
		return 0, fmt.Errorf("next sort order: %w", err)
	}
	if err := tx.GetContext(ctx, &id, tx.Rebind(`
		INSERT INTO session_exercises (session_id, exercise_id, sort_order, group_id, rest_seconds, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), sessionID, exerciseID, next, e.GroupID, e.RestSeconds, e.Notes); err != nil {
		return 0, fmt.Errorf("create session exercise: %w", err)
	}
	return id, nil
}

// insertSets writes every set of an entry in one statement.
func insertSets(ctx context.Context, tx *Tx, sessionExerciseID int64, firstNumber int, p *preparedEntry, loggedAt time.Time) ([]models.Set, error) {
	placeholders := make([]string, len(p.reps))
	args := make([]any, 0, len(p.reps)*8)
	sets := make([]models.Set, len(p.reps))
	at := formatTime(loggedAt)
	for i := range p.reps {
		reps := p.reps[i]
		sets[i] = models.Set{
			SessionExerciseID: sessionExerciseID,
			SetNumber:         firstNumber + i,
			SetType:           p.setType,
			Reps:              &reps,
			Weight:            p.weights[i],
			RPE:               p.entry.RPE,
			Notes:             p.notes[i],
			LoggedAt:          loggedAt,
		}
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, sessionExerciseID, sets[i].SetNumber, string(p.setType), reps, p.weights[i], p.entry.RPE, p.notes[i], at)
	}

	rows, err := tx.QueryxContext(ctx, tx.Rebind(`
		INSERT INTO sets (session_exercise_id, set_number, set_type, reps, weight, rpe, notes, logged_at)
		VALUES `+strings.Join(placeholders, ", ")+`
		RETURNING id, set_number`), args...)
	if err != nil {
		return nil, fmt.Errorf("insert sets: %w", err)
	}
	defer rows.Close()

	ids := make(map[int]int64, len(sets))
	for rows.Next() {
		var id int64
		var number int
		if err := rows.Scan(&id, &number); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		ids[number] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insert sets: %w", err)
	}
	for i := range sets {
		sets[i].ID = ids[sets[i].SetNumber]
	}
	return sets, nil
}

// RoutineOverride replaces the planned targets of one exercise.
type RoutineOverride struct {
	Exercise string    `json:"exercise"`
	Sets     int       `json:"sets,omitempty"`
	Reps     any       `json:"reps,omitempty" jsonschema:"reps for every set, or an array with one entry per set"`
	Weight   *float64  `json:"weight,omitempty"`
	Weights  []float64 `json:"weights,omitempty"`
	RPE      *float64  `json:"rpe,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
}

// RoutineInput logs a program day as planned, with overrides.
type RoutineInput struct {
	ProgramID int64
	DayID     *int64
	Timezone  string
	Overrides []RoutineOverride
	Skip      []string
	Locale    string
}

// RoutineResult is the outcome of LogRoutine.
type RoutineResult struct {
	WorkoutResult
	ProgramID int64    `json:"program_id"`
	DayID     int64    `json:"day_id"`
	DayLabel  string   `json:"day_label"`
	Skipped   []string `json:"skipped,omitempty"`
}

// LogRoutine logs every planned exercise of a day (today's day unless DayID
// is given) in one transaction, starting a day-bound session when none is
// open.
func (d *DB) LogRoutine(ctx context.Context, in RoutineInput) (*RoutineResult, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	for i, o := range in.Overrides {
		if strings.TrimSpace(o.Exercise) == "" {
			return nil, invalid(fmt.Sprintf("overrides[%d].exercise", i), "is required")
		}
	}

	result := &RoutineResult{}
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		day, programID, err := d.routineDay(ctx, tx, userID, in)
		if err != nil {
			return err
		}
		result.ProgramID = programID
		result.DayID = day.ID
		result.DayLabel = day.Label

		if err := tx.lock(ctx, sessionLock(userID)); err != nil {
			return err
		}
		session, err := openSession(ctx, tx, userID)
		if err != nil {
			return err
		}
		if session == nil {
			var id int64
			if err := d.startSessionTx(ctx, tx, userID, StartSessionInput{ProgramDayID: &day.ID}, &id); err != nil {
				return err
			}
			if session, err = getSessionRow(ctx, tx, userID, id); err != nil {
				return err
			}
			result.SessionCreated = true
		}
		result.SessionID = session.ID

		overrides, skip, err := resolveRoutineRefs(ctx, tx, userID, in)
		if err != nil {
			return err
		}

		for i, planned := range day.Exercises {
			if skip[planned.ExerciseID] {
				result.Skipped = append(result.Skipped, planned.ExerciseName)
				continue
			}
			entry, ok := routineEntry(planned, overrides[planned.ExerciseID])
			if !ok {
				result.Skipped = append(result.Skipped, planned.ExerciseName)
				continue
			}
			p, err := prepareEntry(fmt.Sprintf("day.exercises[%d]", i), entry)
			if err != nil {
				return err
			}
			p.exerciseID = planned.ExerciseID
			r, err := d.logSingleExercise(ctx, tx, userID, session, p, LogOptions{Locale: in.Locale})
			if err != nil {
				return fmt.Errorf("log %s: %w", planned.ExerciseName, err)
			}
			result.Exercises = append(result.Exercises, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) routineDay(ctx context.Context, tx *Tx, userID int64, in RoutineInput) (*models.ProgramDay, int64, error) {
	if in.DayID == nil {
		plan, err := d.inferTodayDay(ctx, tx, userID, in.ProgramID, in.Timezone)
		if err != nil {
			return nil, 0, err
		}
		if plan.RestDay {
			return nil, 0, invalid("day_id", "no program day is scheduled for %s (weekday %d); pass day_id", plan.Date, plan.Weekday)
		}
		return plan.Day, plan.ProgramID, nil
	}

	versionID, err := dayVersion(ctx, tx, userID, *in.DayID)
	if err != nil {
		return nil, 0, err
	}
	days, err := loadDays(ctx, tx, versionID)
	if err != nil {
		return nil, 0, err
	}
	var programID int64
	if err := tx.GetContext(ctx, &programID, tx.Rebind(
		`SELECT program_id FROM program_versions WHERE id = ?`), versionID); err != nil {
		return nil, 0, fmt.Errorf("read program version: %w", err)
	}
	for i := range days {
		if days[i].ID == *in.DayID {
			return &days[i], programID, nil
		}
	}
	return nil, 0, notFound("program day", *in.DayID)
}

// resolveRoutineRefs maps override and skip names onto exercise ids without
// creating exercises.
func resolveRoutineRefs(ctx context.Context, tx *Tx, userID int64, in RoutineInput) (map[int64]*RoutineOverride, map[int64]bool, error) {
	overrides := make(map[int64]*RoutineOverride, len(in.Overrides))
	for i := range in.Overrides {
		ex, err := findExercise(ctx, tx, userID, strings.TrimSpace(in.Overrides[i].Exercise))
		if err != nil {
			return nil, nil, err
		}
		overrides[ex.ID] = &in.Overrides[i]
	}
	skip := make(map[int64]bool, len(in.Skip))
	for _, name := range in.Skip {
		if strings.TrimSpace(name) == "" {
			continue
		}
		ex, err := findExercise(ctx, tx, userID, strings.TrimSpace(name))
		if err != nil {
			return nil, nil, err
		}
		skip[ex.ID] = true
	}
	return overrides, skip, nil
}

// routineEntry turns planned targets plus an optional override into a log
// entry. ok is false when neither names any reps.
func routineEntry(planned models.ProgramDayExercise, o *RoutineOverride) (LogEntry, bool) {
	e := LogEntry{
		Exercise: planned.ExerciseName,
		RPE:      planned.TargetRPE,
		Notes:    planned.Notes,
	}
	switch {
	case len(planned.TargetRepsPerSet) > 0:
		e.Reps = []int(planned.TargetRepsPerSet)
	case planned.TargetReps != nil:
		e.Reps = *planned.TargetReps
		if planned.TargetSets != nil {
			e.Sets = *planned.TargetSets
		}
	}
	if len(planned.TargetWeightPerSet) > 0 && len(planned.TargetWeightPerSet) == setCount(e) {
		e.Weights = []float64(planned.TargetWeightPerSet)
	} else {
		e.Weight = planned.TargetWeight
	}

	if o != nil {
		if o.Reps != nil {
			e.Reps, e.Sets = o.Reps, o.Sets
		} else if o.Sets > 0 {
			e.Sets = o.Sets
		}
		switch {
		case o.Weights != nil:
			e.Weights, e.Weight = o.Weights, nil
		case o.Weight != nil:
			e.Weights, e.Weight = nil, o.Weight
		case e.Weights != nil && len(e.Weights) != setCount(e):
			// Planned per-set weights no longer fit the overridden sets.
			e.Weights, e.Weight = nil, planned.TargetWeight
		}
		if o.RPE != nil {
			e.RPE = o.RPE
		}
		if o.Notes != nil {
			e.Notes = o.Notes
		}
	}
	return e, e.Reps != nil
}

func setCount(e LogEntry) int {
	reps, err := stats.ExpandReps(e.Reps, e.Sets)
	if err != nil {
		return 0
	}
	return len(reps)
}
