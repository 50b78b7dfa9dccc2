// ABOUTME: Read-only progress queries: per-exercise series and period summaries.
// ABOUTME: Aggregation is done in Go over stats helpers so both dialects agree.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/stats"
)

// SessionPoint is one session's performance on an exercise.
type SessionPoint struct {
	SessionID int64     `json:"session_id"`
	Date      time.Time `json:"date"`
	Sets      int       `json:"sets"`
	Volume    float64   `json:"volume"`
	TopWeight float64   `json:"top_weight"`
	BestE1RM  float64   `json:"best_e1rm,omitempty"`
}

// ExerciseStats is the progress view of one exercise.
type ExerciseStats struct {
	ExerciseID int64                   `json:"exercise_id"`
	Exercise   string                  `json:"exercise"`
	PeriodDays int                     `json:"period_days,omitempty"`
	Records    []models.PersonalRecord `json:"personal_records"`
	History    []models.PRHistoryEntry `json:"pr_history"`
	Sessions   []SessionPoint          `json:"sessions"`
}

// Summary aggregates training over a period.
type Summary struct {
	PeriodDays int       `json:"period_days"`
	Since      time.Time `json:"since"`
	Sessions   int       `json:"sessions"`
	Sets       int       `json:"sets"`
	Volume     float64   `json:"volume"`
	Exercises  int       `json:"exercises"`
	NewPRs     int       `json:"new_prs"`
}

// ExerciseStats returns records, the PR timeline and a per-session series
// for one exercise. periodDays 0 covers all history.
func (d *DB) ExerciseStats(ctx context.Context, exercise string, periodDays int) (*ExerciseStats, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if periodDays < 0 {
		return nil, invalid("period_days", "must not be negative")
	}
	ex, err := d.FindExercise(ctx, exercise)
	if err != nil {
		return nil, err
	}

	out := &ExerciseStats{ExerciseID: ex.ID, Exercise: ex.Name, PeriodDays: periodDays}
	if out.Records, err = d.ListPRs(ctx, ex.Name); err != nil {
		return nil, err
	}
	if out.History, err = prHistory(ctx, d.db, userID, ex.ID, ""); err != nil {
		return nil, err
	}

	query := `
		SELECT s.id AS session_id, s.started_at, st.set_type, st.reps, st.weight
		FROM sets st
		JOIN session_exercises se ON se.id = st.session_exercise_id
		JOIN sessions s ON s.id = se.session_id
		WHERE s.user_id = ? AND se.exercise_id = ?`
	args := []any{userID, ex.ID}
	if periodDays > 0 {
		query += ` AND s.started_at >= ?`
		args = append(args, formatTime(d.now().AddDate(0, 0, -periodDays)))
	}
	query += ` ORDER BY s.started_at, s.id, st.set_number`

	var rows []struct {
		SessionID int64    `db:"session_id"`
		StartedAt dbTime   `db:"started_at"`
		SetType   string   `db:"set_type"`
		Reps      *int     `db:"reps"`
		Weight    *float64 `db:"weight"`
	}
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("exercise series: %w", err)
	}

	var current *SessionPoint
	var volumeSets []stats.VolumeSet
	flush := func() {
		if current != nil {
			current.Volume = stats.Round1(stats.CalculateVolume(volumeSets))
			out.Sessions = append(out.Sessions, *current)
		}
	}
	for _, r := range rows {
		if current == nil || current.SessionID != r.SessionID {
			flush()
			current = &SessionPoint{SessionID: r.SessionID, Date: r.StartedAt.Time}
			volumeSets = nil
		}
		current.Sets++
		reps := 0
		if r.Reps != nil {
			reps = *r.Reps
		}
		warmup := models.SetType(r.SetType) == models.SetWarmup
		volumeSets = append(volumeSets, stats.VolumeSet{Reps: reps, Weight: r.Weight, Warmup: warmup})
		if r.Weight == nil || warmup {
			continue
		}
		if *r.Weight > current.TopWeight {
			current.TopWeight = *r.Weight
		}
		if e1rm, ok := stats.EstimateE1RM(*r.Weight, reps); ok && e1rm > current.BestE1RM {
			current.BestE1RM = e1rm
		}
	}
	flush()
	return out, nil
}

// Summary aggregates the last periodDays days.
func (d *DB) Summary(ctx context.Context, periodDays int) (*Summary, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if periodDays <= 0 {
		periodDays = 7
	}
	since := d.now().AddDate(0, 0, -periodDays).UTC()
	out := &Summary{PeriodDays: periodDays, Since: since}
	from := formatTime(since)

	if err := d.db.GetContext(ctx, &out.Sessions, d.db.Rebind(
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND started_at >= ?`), userID, from); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	var sets []struct {
		ExerciseID int64    `db:"exercise_id"`
		SetType    string   `db:"set_type"`
		Reps       *int     `db:"reps"`
		Weight     *float64 `db:"weight"`
	}
	if err := d.db.SelectContext(ctx, &sets, d.db.Rebind(`
		SELECT se.exercise_id, st.set_type, st.reps, st.weight
		FROM sets st
		JOIN session_exercises se ON se.id = st.session_exercise_id
		JOIN sessions s ON s.id = se.session_id
		WHERE s.user_id = ? AND s.started_at >= ?
	`), userID, from); err != nil {
		return nil, fmt.Errorf("summary sets: %w", err)
	}
	exercises := map[int64]bool{}
	volumeSets := make([]stats.VolumeSet, len(sets))
	for i, st := range sets {
		exercises[st.ExerciseID] = true
		reps := 0
		if st.Reps != nil {
			reps = *st.Reps
		}
		volumeSets[i] = stats.VolumeSet{Reps: reps, Weight: st.Weight, Warmup: models.SetType(st.SetType) == models.SetWarmup}
	}
	out.Sets = len(sets)
	out.Exercises = len(exercises)
	out.Volume = stats.Round1(stats.CalculateVolume(volumeSets))

	if err := d.db.GetContext(ctx, &out.NewPRs, d.db.Rebind(
		`SELECT COUNT(*) FROM pr_history WHERE user_id = ? AND achieved_at >= ?`), userID, from); err != nil {
		return nil, fmt.Errorf("count prs: %w", err)
	}
	return out, nil
}
