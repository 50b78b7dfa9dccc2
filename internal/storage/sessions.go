// ABOUTME: Workout sessions: start, end, list, detail, validation and the stale-session reaper.
// ABOUTME: At most one open session per user, checked under a per-user lock.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/stats"
)

// StartSessionInput starts a session, optionally bound to a program day.
type StartSessionInput struct {
	ProgramDayID *int64
	Notes        *string
	// Validated defaults to true. Unvalidated sessions never touch PRs.
	Validated *bool
	StartedAt *time.Time
}

// SessionSummary is a session with its aggregates.
type SessionSummary struct {
	models.Session
	ExerciseCount int     `json:"exercise_count"`
	SetCount      int     `json:"set_count"`
	Volume        float64 `json:"volume"`
}

type sessionRow struct {
	ID               int64    `db:"id"`
	UserID           int64    `db:"user_id"`
	ProgramVersionID *int64   `db:"program_version_id"`
	ProgramDayID     *int64   `db:"program_day_id"`
	StartedAt        dbTime   `db:"started_at"`
	EndedAt          nullTime `db:"ended_at"`
	Notes            *string  `db:"notes"`
	IsValidated      bool     `db:"is_validated"`
}

func (r sessionRow) toModel() models.Session {
	return models.Session{
		ID:               r.ID,
		UserID:           r.UserID,
		ProgramVersionID: r.ProgramVersionID,
		ProgramDayID:     r.ProgramDayID,
		StartedAt:        r.StartedAt.Time,
		EndedAt:          r.EndedAt.Ptr(),
		Notes:            r.Notes,
		IsValidated:      r.IsValidated,
	}
}

const sessionColumns = `s.id, s.user_id, s.program_version_id, s.program_day_id, s.started_at, s.ended_at, s.notes, s.is_validated`

// openSession returns the user's open session, or nil.
func openSession(ctx context.Context, q sqlx.ExtContext, userID int64) (*sessionRow, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`
		SELECT `+sessionColumns+` FROM sessions s
		WHERE s.user_id = ? AND s.ended_at IS NULL
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT 1
	`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return &row, nil
}

func getSessionRow(ctx context.Context, q sqlx.ExtContext, userID, sessionID int64) (*sessionRow, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ? AND s.user_id = ?`), sessionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("session", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &row, nil
}

// insertSession creates an open session. The caller holds the session lock
// and has checked that none is open.
func (d *DB) insertSession(ctx context.Context, tx *Tx, userID int64, in StartSessionInput, versionID *int64) (*sessionRow, error) {
	validated := true
	if in.Validated != nil {
		validated = *in.Validated
	}
	started := d.now()
	if in.StartedAt != nil {
		started = *in.StartedAt
	}

	row := &sessionRow{
		UserID:           userID,
		ProgramVersionID: versionID,
		ProgramDayID:     in.ProgramDayID,
		StartedAt:        dbTime{started.UTC()},
		Notes:            in.Notes,
		IsValidated:      validated,
	}
	if err := tx.GetContext(ctx, &row.ID, tx.Rebind(`
		INSERT INTO sessions (user_id, program_version_id, program_day_id, started_at, notes, is_validated)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), userID, versionID, in.ProgramDayID, formatTime(started), in.Notes, validated); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// The lock makes this unreachable in-process; it still catches writers
	// that bypass it.
	var open []int64
	if err := tx.SelectContext(ctx, &open, tx.Rebind(
		`SELECT id FROM sessions WHERE user_id = ? AND ended_at IS NULL AND id <> ?`), userID, row.ID); err != nil {
		return nil, fmt.Errorf("recheck open sessions: %w", err)
	}
	if len(open) > 0 {
		return nil, &ConflictError{Message: "another session is already active", SessionID: open[0]}
	}
	return row, nil
}

// ensureActiveSession returns the open session, creating a validated one
// when none exists.
func (d *DB) ensureActiveSession(ctx context.Context, tx *Tx, userID int64) (*sessionRow, bool, error) {
	if err := tx.lock(ctx, sessionLock(userID)); err != nil {
		return nil, false, err
	}
	open, err := openSession(ctx, tx, userID)
	if err != nil {
		return nil, false, err
	}
	if open != nil {
		return open, false, nil
	}
	row, err := d.insertSession(ctx, tx, userID, StartSessionInput{}, nil)
	if err != nil {
		return nil, false, err
	}
	d.logger.Info("session started implicitly", "session_id", row.ID)
	return row, true, nil
}

// dayVersion returns the version of a program day owned by userID.
func dayVersion(ctx context.Context, q sqlx.ExtContext, userID, dayID int64) (int64, error) {
	var versionID int64
	err := sqlx.GetContext(ctx, q, &versionID, q.Rebind(`
		SELECT pd.version_id FROM program_days pd
		JOIN program_versions v ON v.id = pd.version_id
		JOIN programs p ON p.id = v.program_id
		WHERE pd.id = ? AND p.user_id = ?
	`), dayID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("program day", dayID)
	}
	if err != nil {
		return 0, fmt.Errorf("read program day: %w", err)
	}
	return versionID, nil
}

// copyDayIntoSession clones the day's groups and sections into the session
// and pre-creates one session exercise per planned exercise.
func copyDayIntoSession(ctx context.Context, tx *Tx, dayID, sessionID int64) error {
	groupMap, err := cloneBatch(ctx, tx, "program_exercise_groups", "session_exercise_groups", dayID, sessionID)
	if err != nil {
		return err
	}
	sectionMap, err := cloneBatch(ctx, tx, "program_sections", "session_sections", dayID, sessionID)
	if err != nil {
		return err
	}
	planned, err := selectDayExercises(ctx, tx, []int64{dayID})
	if err != nil {
		return err
	}
	for _, ex := range planned {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO session_exercises (session_id, exercise_id, sort_order, group_id, section_id, rest_seconds, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), sessionID, ex.ExerciseID, ex.SortOrder, remap(ex.GroupID, groupMap), remap(ex.SectionID, sectionMap),
			ex.RestSeconds, ex.Notes); err != nil {
			return fmt.Errorf("create session exercise: %w", err)
		}
	}
	return nil
}

// StartSession opens a session. A second open session is a conflict that
// names the existing one.
func (d *DB) StartSession(ctx context.Context, in StartSessionInput) (*SessionSummary, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var sessionID int64
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if err := tx.lock(ctx, sessionLock(userID)); err != nil {
			return err
		}
		open, err := openSession(ctx, tx, userID)
		if err != nil {
			return err
		}
		if open != nil {
			return &ConflictError{Message: "a session is already active", SessionID: open.ID}
		}
		return d.startSessionTx(ctx, tx, userID, in, &sessionID)
	})
	if err != nil {
		return nil, err
	}
	return d.GetSession(ctx, sessionID)
}

func (d *DB) startSessionTx(ctx context.Context, tx *Tx, userID int64, in StartSessionInput, sessionID *int64) error {
	var versionID *int64
	if in.ProgramDayID != nil {
		v, err := dayVersion(ctx, tx, userID, *in.ProgramDayID)
		if err != nil {
			return err
		}
		versionID = &v
	}
	row, err := d.insertSession(ctx, tx, userID, in, versionID)
	if err != nil {
		return err
	}
	if in.ProgramDayID != nil {
		if err := copyDayIntoSession(ctx, tx, *in.ProgramDayID, row.ID); err != nil {
			return err
		}
	}
	*sessionID = row.ID
	d.logger.Info("session started", "session_id", row.ID, "program_day_id", in.ProgramDayID)
	return nil
}

// EndSession closes the open session. Non-nil notes replace the session notes.
func (d *DB) EndSession(ctx context.Context, notes *string) (*SessionSummary, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var sessionID int64
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if err := tx.lock(ctx, sessionLock(userID)); err != nil {
			return err
		}
		open, err := openSession(ctx, tx, userID)
		if err != nil {
			return err
		}
		if open == nil {
			return notFound("active session", nil)
		}
		sessionID = open.ID
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE sessions SET ended_at = ?, notes = COALESCE(?, notes) WHERE id = ?`),
			formatTime(d.now()), notes, open.ID)
		if err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetSession(ctx, sessionID)
}

// ActiveSession returns the open session with its exercises, or nil.
func (d *DB) ActiveSession(ctx context.Context) (*SessionSummary, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	open, err := openSession(ctx, d.db, userID)
	if err != nil || open == nil {
		return nil, err
	}
	return loadSessionDetail(ctx, d.db, *open)
}

// GetSession returns one session with groups, sections, exercises and sets.
func (d *DB) GetSession(ctx context.Context, sessionID int64) (*SessionSummary, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	row, err := getSessionRow(ctx, d.db, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return loadSessionDetail(ctx, d.db, *row)
}

func loadSessionDetail(ctx context.Context, q sqlx.ExtContext, row sessionRow) (*SessionSummary, error) {
	s := row.toModel()
	ids := []int64{row.ID}

	groups, err := selectGroups(ctx, q, "session_exercise_groups", "session_id", ids)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		s.Groups = append(s.Groups, g.ExerciseGroup)
	}
	sections, err := selectSections(ctx, q, "session_sections", "session_id", ids)
	if err != nil {
		return nil, err
	}
	for _, sec := range sections {
		s.Sections = append(s.Sections, sec.Section)
	}

	exercises, err := loadSessionExercises(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	s.Exercises = exercises

	summary := &SessionSummary{Session: s, ExerciseCount: len(exercises)}
	var volumeSets []stats.VolumeSet
	for _, ex := range exercises {
		summary.SetCount += len(ex.Sets)
		volumeSets = append(volumeSets, toVolumeSets(ex.Sets)...)
	}
	summary.Volume = stats.CalculateVolume(volumeSets)
	return summary, nil
}

func toVolumeSets(sets []models.Set) []stats.VolumeSet {
	out := make([]stats.VolumeSet, len(sets))
	for i, st := range sets {
		reps := 0
		if st.Reps != nil {
			reps = *st.Reps
		}
		out[i] = stats.VolumeSet{Reps: reps, Weight: st.Weight, Warmup: st.SetType == models.SetWarmup}
	}
	return out
}

type sessionExerciseRow struct {
	ID           int64   `db:"id"`
	SessionID    int64   `db:"session_id"`
	ExerciseID   int64   `db:"exercise_id"`
	ExerciseName string  `db:"exercise_name"`
	SortOrder    int     `db:"sort_order"`
	GroupID      *int64  `db:"group_id"`
	SectionID    *int64  `db:"section_id"`
	RestSeconds  *int    `db:"rest_seconds"`
	Notes        *string `db:"notes"`
}

type setRow struct {
	ID                int64    `db:"id"`
	SessionExerciseID int64    `db:"session_exercise_id"`
	SetNumber         int      `db:"set_number"`
	SetType           string   `db:"set_type"`
	Reps              *int     `db:"reps"`
	Weight            *float64 `db:"weight"`
	RPE               *float64 `db:"rpe"`
	Notes             *string  `db:"notes"`
	LoggedAt          dbTime   `db:"logged_at"`
}

func (r setRow) toModel() models.Set {
	return models.Set{
		ID:                r.ID,
		SessionExerciseID: r.SessionExerciseID,
		SetNumber:         r.SetNumber,
		SetType:           models.SetType(r.SetType),
		Reps:              r.Reps,
		Weight:            r.Weight,
		RPE:               r.RPE,
		Notes:             r.Notes,
		LoggedAt:          r.LoggedAt.Time,
	}
}

const setColumns = `st.id, st.session_exercise_id, st.set_number, st.set_type, st.reps, st.weight, st.rpe, st.notes, st.logged_at`

func loadSessionExercises(ctx context.Context, q sqlx.ExtContext, sessionIDs []int64) ([]models.SessionExercise, error) {
	query, args, err := sqlx.In(`
		SELECT se.id, se.session_id, se.exercise_id, e.name AS exercise_name, se.sort_order,
			se.group_id, se.section_id, se.rest_seconds, se.notes
		FROM session_exercises se
		JOIN exercises e ON e.id = se.exercise_id
		WHERE se.session_id IN (?)
		ORDER BY se.session_id, se.sort_order, se.id
	`, sessionIDs)
	if err != nil {
		return nil, err
	}
	var rows []sessionExerciseRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list session exercises: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	exercises := make([]models.SessionExercise, len(rows))
	index := make(map[int64]int, len(rows))
	ids := make([]int64, len(rows))
	for i, r := range rows {
		exercises[i] = models.SessionExercise{
			ID:           r.ID,
			SessionID:    r.SessionID,
			ExerciseID:   r.ExerciseID,
			ExerciseName: r.ExerciseName,
			SortOrder:    r.SortOrder,
			GroupID:      r.GroupID,
			SectionID:    r.SectionID,
			RestSeconds:  r.RestSeconds,
			Notes:        r.Notes,
		}
		index[r.ID] = i
		ids[i] = r.ID
	}

	query, args, err = sqlx.In(`SELECT `+setColumns+` FROM sets st
		WHERE st.session_exercise_id IN (?)
		ORDER BY st.session_exercise_id, st.set_number`, ids)
	if err != nil {
		return nil, err
	}
	var sets []setRow
	if err := sqlx.SelectContext(ctx, q, &sets, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	for _, st := range sets {
		i := index[st.SessionExerciseID]
		exercises[i].Sets = append(exercises[i].Sets, st.toModel())
	}
	return exercises, nil
}

// ListSessions returns the newest sessions first. since filters on
// started_at when non-nil.
func (d *DB) ListSessions(ctx context.Context, limit int, since *time.Time) ([]SessionSummary, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + sessionColumns + `,
			COUNT(DISTINCT se.id) AS exercise_count,
			COUNT(st.id) AS set_count,
			COALESCE(SUM(CASE WHEN st.set_type <> 'warmup' THEN COALESCE(st.weight, 0) * COALESCE(st.reps, 0) ELSE 0 END), 0) AS volume
		FROM sessions s
		LEFT JOIN session_exercises se ON se.session_id = s.id
		LEFT JOIN sets st ON st.session_exercise_id = se.id
		WHERE s.user_id = ?`
	args := []any{userID}
	if since != nil {
		query += ` AND s.started_at >= ?`
		args = append(args, formatTime(*since))
	}
	query += `
		GROUP BY s.id, s.user_id, s.program_version_id, s.program_day_id, s.started_at, s.ended_at, s.notes, s.is_validated
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT ?`
	args = append(args, limit)

	var rows []struct {
		sessionRow
		ExerciseCount int     `db:"exercise_count"`
		SetCount      int     `db:"set_count"`
		Volume        float64 `db:"volume"`
	}
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]SessionSummary, len(rows))
	for i, r := range rows {
		out[i] = SessionSummary{
			Session:       r.sessionRow.toModel(),
			ExerciseCount: r.ExerciseCount,
			SetCount:      r.SetCount,
			Volume:        stats.Round1(r.Volume),
		}
	}
	return out, nil
}

// DeleteSession removes a session with its exercises and sets. Personal
// records already derived from it are kept; see RecomputePRs.
func (d *DB) DeleteSession(ctx context.Context, sessionID int64) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, d.db.Rebind(`DELETE FROM sessions WHERE id = ? AND user_id = ?`), sessionID, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("session", sessionID)
	}
	return nil
}

// ValidateSession marks a session validated and evaluates PRs for all of its
// sets, each achieved at its own logged_at.
func (d *DB) ValidateSession(ctx context.Context, sessionID int64) ([]PRCheck, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var checks []PRCheck
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if _, err := getSessionRow(ctx, tx, userID, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE sessions SET is_validated = ? WHERE id = ?`), true, sessionID); err != nil {
			return fmt.Errorf("validate session: %w", err)
		}

		var exercises []struct {
			ExerciseID   int64               `db:"exercise_id"`
			ExerciseType models.ExerciseType `db:"exercise_type"`
		}
		if err := tx.SelectContext(ctx, &exercises, tx.Rebind(`
			SELECT DISTINCT se.exercise_id, e.exercise_type
			FROM session_exercises se
			JOIN exercises e ON e.id = se.exercise_id
			WHERE se.session_id = ?
			ORDER BY se.exercise_id
		`), sessionID); err != nil {
			return fmt.Errorf("list session exercises: %w", err)
		}

		for _, ex := range exercises {
			var sets []prSet
			if err := tx.SelectContext(ctx, &sets, tx.Rebind(`
				SELECT st.id, st.reps, st.weight, st.set_type, st.logged_at
				FROM sets st
				JOIN session_exercises se ON se.id = st.session_exercise_id
				WHERE se.session_id = ? AND se.exercise_id = ?
				ORDER BY st.logged_at, st.id
			`), sessionID, ex.ExerciseID); err != nil {
				return fmt.Errorf("list sets: %w", err)
			}
			found, err := d.checkPRs(ctx, tx, userID, ex.ExerciseID, ex.ExerciseType, sets, nil)
			if err != nil {
				return err
			}
			checks = append(checks, found...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return checks, nil
}

// CloseStaleSessions ends every open session, for all users, whose last
// activity is older than idle. ended_at becomes the last set's logged_at,
// or started_at for an empty session.
func (d *DB) CloseStaleSessions(ctx context.Context, idle time.Duration) (int64, error) {
	cutoff := formatTime(d.now().Add(-idle))
	const lastActivity = `COALESCE((
		SELECT MAX(st.logged_at) FROM sets st
		JOIN session_exercises se ON se.id = st.session_exercise_id
		WHERE se.session_id = sessions.id
	), sessions.started_at)`

	res, err := d.db.ExecContext(ctx, d.db.Rebind(`
		UPDATE sessions SET ended_at = `+lastActivity+`
		WHERE ended_at IS NULL AND `+lastActivity+` < ?
	`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("close stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.logger.Info("closed stale sessions", "count", n, "idle", idle)
	}
	return n, nil
}
