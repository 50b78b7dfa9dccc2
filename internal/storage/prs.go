// ABOUTME: Personal record evaluation under a per-(user, exercise) exclusive lock.
// ABOUTME: Guarded upserts never lower a record; history appends are minute-deduplicated.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/stats"
)

// PRCheck is one record type improved by a call. Previous is the value
// before the call, nil when there was no record; history stores that case
// as a previous_value of 0.
type PRCheck struct {
	ExerciseID int64    `json:"exercise_id"`
	RecordType string   `json:"record_type"`
	Value      float64  `json:"value"`
	Previous   *float64 `json:"previous,omitempty"`
	SetID      int64    `json:"set_id"`
}

// prSet is a persisted set as seen by PR evaluation.
type prSet struct {
	ID       int64          `db:"id"`
	Reps     *int           `db:"reps"`
	Weight   *float64       `db:"weight"`
	SetType  models.SetType `db:"set_type"`
	LoggedAt dbTime         `db:"logged_at"`
}

type prCandidate struct {
	recordType string
	value      float64
	previous   float64
	setID      int64
	achievedAt time.Time
}

// evaluatePRs walks sets in order against current and returns every
// improvement. current is updated in place so later sets compete with the
// record just set.
func evaluatePRs(current map[string]float64, sets []prSet, achievedAt *time.Time) []prCandidate {
	var out []prCandidate
	beat := func(recordType string, value float64, s prSet) {
		old, ok := current[recordType]
		if ok && value <= old {
			return
		}
		current[recordType] = value
		at := s.LoggedAt.Time
		if achievedAt != nil {
			at = *achievedAt
		}
		out = append(out, prCandidate{recordType: recordType, value: value, previous: old, setID: s.ID, achievedAt: at})
	}

	for _, s := range sets {
		if s.Weight == nil || s.Reps == nil {
			continue
		}
		weight, reps := *s.Weight, *s.Reps
		if weight <= 0 || reps <= 0 {
			continue
		}
		beat(models.RecordMaxWeight, weight, s)
		beat(models.MaxRepsAtRecordType(weight), float64(reps), s)
		if e1rm, ok := stats.EstimateE1RM(weight, reps); ok {
			beat(models.RecordEstimated1RM, e1rm, s)
		}
	}
	return out
}

func loadRecordValues(ctx context.Context, q sqlx.ExtContext, userID, exerciseID int64) (map[string]float64, error) {
	var rows []struct {
		RecordType string  `db:"record_type"`
		Value      float64 `db:"value"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(
		`SELECT record_type, value FROM personal_records WHERE user_id = ? AND exercise_id = ?`), userID, exerciseID); err != nil {
		return nil, fmt.Errorf("load personal records: %w", err)
	}
	current := make(map[string]float64, len(rows))
	for _, r := range rows {
		current[r.RecordType] = r.Value
	}
	return current, nil
}

// checkPRs evaluates sets for one exercise, joining outer when given. The
// exercise lock is the first statement of the transaction's PR work.
func (d *DB) checkPRs(ctx context.Context, outer *Tx, userID, exerciseID int64, exerciseType models.ExerciseType, sets []prSet, achievedAt *time.Time) ([]PRCheck, error) {
	if exerciseType != "" && exerciseType != models.ExerciseStrength {
		return nil, nil
	}
	if len(sets) == 0 {
		return nil, nil
	}

	var checks []PRCheck
	err := d.withTx(ctx, outer, func(ctx context.Context, tx *Tx) error {
		if err := tx.lock(ctx, exerciseLock(userID, exerciseID)); err != nil {
			return err
		}
		current, err := loadRecordValues(ctx, tx, userID, exerciseID)
		if err != nil {
			return err
		}
		before := make(map[string]float64, len(current))
		for k, v := range current {
			before[k] = v
		}

		improvements := evaluatePRs(current, sets, achievedAt)
		best := make(map[string]int)
		for _, c := range improvements {
			if err := upsertRecord(ctx, tx, userID, exerciseID, c); err != nil {
				return err
			}
			if err := appendHistory(ctx, tx, userID, exerciseID, c); err != nil {
				return err
			}

			check := PRCheck{ExerciseID: exerciseID, RecordType: c.recordType, Value: c.value, SetID: c.setID}
			if prev, ok := before[c.recordType]; ok {
				check.Previous = &prev
			}
			if i, seen := best[c.recordType]; seen {
				checks[i] = check
				continue
			}
			best[c.recordType] = len(checks)
			checks = append(checks, check)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range checks {
		d.recorder.PersonalRecord(models.RecordKind(c.RecordType))
	}
	if len(checks) > 0 {
		d.logger.Debug("personal records set", "exercise_id", exerciseID, "count", len(checks))
	}
	return checks, nil
}

func upsertRecord(ctx context.Context, tx *Tx, userID, exerciseID int64, c prCandidate) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO personal_records (user_id, exercise_id, record_type, value, achieved_at, set_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, exercise_id, record_type) DO UPDATE
		SET value = excluded.value, achieved_at = excluded.achieved_at, set_id = excluded.set_id
		WHERE personal_records.value < excluded.value
	`), userID, exerciseID, c.recordType, c.value, formatTime(c.achievedAt), c.setID)
	if err != nil {
		return fmt.Errorf("upsert personal record %s: %w", c.recordType, err)
	}
	return nil
}

// appendHistory skips rows already recorded for the same value within the
// same minute, which is what a retried request produces.
func appendHistory(ctx context.Context, tx *Tx, userID, exerciseID int64, c prCandidate) error {
	from, to := minuteRange(c.achievedAt)
	var dup int
	if err := tx.GetContext(ctx, &dup, tx.Rebind(`
		SELECT COUNT(*) FROM pr_history
		WHERE user_id = ? AND exercise_id = ? AND record_type = ? AND value = ?
		  AND achieved_at >= ? AND achieved_at < ?
	`), userID, exerciseID, c.recordType, c.value, from, to); err != nil {
		return fmt.Errorf("check pr history: %w", err)
	}
	if dup > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO pr_history (user_id, exercise_id, record_type, value, previous_value, achieved_at, set_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), userID, exerciseID, c.recordType, c.value, c.previous, formatTime(c.achievedAt), c.setID); err != nil {
		return fmt.Errorf("append pr history: %w", err)
	}
	return nil
}

// RecomputePRs rebuilds the current records of one exercise from every set
// of the user's validated sessions. History is left untouched.
func (d *DB) RecomputePRs(ctx context.Context, exercise string) ([]models.PersonalRecord, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	ex, err := d.FindExercise(ctx, exercise)
	if err != nil {
		return nil, err
	}

	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if err := tx.lock(ctx, exerciseLock(userID, ex.ID)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`DELETE FROM personal_records WHERE user_id = ? AND exercise_id = ?`), userID, ex.ID); err != nil {
			return fmt.Errorf("clear personal records: %w", err)
		}
		if ex.ExerciseType != models.ExerciseStrength {
			return nil
		}

		var sets []prSet
		if err := tx.SelectContext(ctx, &sets, tx.Rebind(`
			SELECT st.id, st.reps, st.weight, st.set_type, st.logged_at
			FROM sets st
			JOIN session_exercises se ON se.id = st.session_exercise_id
			JOIN sessions s ON s.id = se.session_id
			WHERE s.user_id = ? AND se.exercise_id = ? AND s.is_validated = ?
			ORDER BY st.logged_at, st.id
		`), userID, ex.ID, true); err != nil {
			return fmt.Errorf("load sets: %w", err)
		}
		for _, c := range evaluatePRs(map[string]float64{}, sets, nil) {
			if err := upsertRecord(ctx, tx, userID, ex.ID, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.ListPRs(ctx, ex.Name)
}

type recordRow struct {
	ID           int64   `db:"id"`
	ExerciseID   int64   `db:"exercise_id"`
	ExerciseName string  `db:"exercise_name"`
	RecordType   string  `db:"record_type"`
	Value        float64 `db:"value"`
	AchievedAt   dbTime  `db:"achieved_at"`
	SetID        *int64  `db:"set_id"`
}

// ListPRs returns current records, optionally for a single exercise.
func (d *DB) ListPRs(ctx context.Context, exercise string) ([]models.PersonalRecord, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT pr.id, pr.exercise_id, e.name AS exercise_name, pr.record_type, pr.value, pr.achieved_at, pr.set_id
		FROM personal_records pr
		JOIN exercises e ON e.id = pr.exercise_id
		WHERE pr.user_id = ?`
	args := []any{userID}
	if exercise != "" {
		ex, err := d.FindExercise(ctx, exercise)
		if err != nil {
			return nil, err
		}
		query += ` AND pr.exercise_id = ?`
		args = append(args, ex.ID)
	}
	query += ` ORDER BY e.name, pr.record_type`

	var rows []recordRow
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list personal records: %w", err)
	}
	records := make([]models.PersonalRecord, len(rows))
	for i, r := range rows {
		records[i] = models.PersonalRecord{
			ID:           r.ID,
			UserID:       userID,
			ExerciseID:   r.ExerciseID,
			ExerciseName: r.ExerciseName,
			RecordType:   r.RecordType,
			Value:        r.Value,
			AchievedAt:   r.AchievedAt.Time,
			SetID:        r.SetID,
		}
	}
	return records, nil
}

// PRHistory returns the improvement timeline of one exercise, oldest first.
// An empty recordType returns every type.
func (d *DB) PRHistory(ctx context.Context, exercise, recordType string) ([]models.PRHistoryEntry, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	ex, err := d.FindExercise(ctx, exercise)
	if err != nil {
		return nil, err
	}
	return prHistory(ctx, d.db, userID, ex.ID, recordType)
}

func prHistory(ctx context.Context, q sqlx.ExtContext, userID, exerciseID int64, recordType string) ([]models.PRHistoryEntry, error) {
	query := `
		SELECT id, exercise_id, record_type, value, previous_value, achieved_at, set_id
		FROM pr_history
		WHERE user_id = ? AND exercise_id = ?`
	args := []any{userID, exerciseID}
	if recordType != "" {
		query += ` AND record_type = ?`
		args = append(args, recordType)
	}
	query += ` ORDER BY achieved_at, id`

	var rows []struct {
		ID            int64    `db:"id"`
		ExerciseID    int64    `db:"exercise_id"`
		RecordType    string   `db:"record_type"`
		Value         float64  `db:"value"`
		PreviousValue *float64 `db:"previous_value"`
		AchievedAt    dbTime   `db:"achieved_at"`
		SetID         *int64   `db:"set_id"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("pr history: %w", err)
	}
	entries := make([]models.PRHistoryEntry, len(rows))
	for i, r := range rows {
		entries[i] = models.PRHistoryEntry{
			ID:         r.ID,
			ExerciseID: r.ExerciseID,
			RecordType: r.RecordType,
			Value:      r.Value,
			AchievedAt: r.AchievedAt.Time,
			SetID:      r.SetID,
		}
		if r.PreviousValue != nil {
			entries[i].PreviousValue = *r.PreviousValue
		}
	}
	return entries, nil
}
