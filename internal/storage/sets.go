// ABOUTME: Corrections to logged sets: edit and delete, owner-checked.
// ABOUTME: Edits in validated sessions re-run PR evaluation; records are never lowered.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

// SetPatch changes a logged set. Nil fields are left alone.
type SetPatch struct {
	Reps    *int     `json:"reps,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
	RPE     *float64 `json:"rpe,omitempty"`
	SetType *string  `json:"set_type,omitempty"`
	Notes   *string  `json:"notes,omitempty"`
}

type ownedSet struct {
	setRow
	ExerciseID   int64               `db:"exercise_id"`
	ExerciseType models.ExerciseType `db:"exercise_type"`
	IsValidated  bool                `db:"is_validated"`
}

func getOwnedSet(ctx context.Context, tx *Tx, userID, setID int64) (*ownedSet, error) {
	var row ownedSet
	err := tx.GetContext(ctx, &row, tx.Rebind(`
		SELECT `+setColumns+`, se.exercise_id, e.exercise_type, s.is_validated
		FROM sets st
		JOIN session_exercises se ON se.id = st.session_exercise_id
		JOIN sessions s ON s.id = se.session_id
		JOIN exercises e ON e.id = se.exercise_id
		WHERE st.id = ? AND s.user_id = ?
	`), setID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("set", setID)
	}
	if err != nil {
		return nil, fmt.Errorf("get set: %w", err)
	}
	return &row, nil
}

// EditSet applies patch to a set and returns it with any new PRs.
func (d *DB) EditSet(ctx context.Context, setID int64, patch SetPatch) (*models.Set, []PRCheck, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, nil, err
	}

	cols := []string{}
	args := []any{}
	if patch.Reps != nil {
		if *patch.Reps < 0 {
			return nil, nil, invalid("reps", "must not be negative")
		}
		cols = append(cols, "reps = ?")
		args = append(args, *patch.Reps)
	}
	if patch.Weight != nil {
		if *patch.Weight < 0 {
			return nil, nil, invalid("weight", "must not be negative")
		}
		cols = append(cols, "weight = ?")
		args = append(args, *patch.Weight)
	}
	if patch.RPE != nil {
		if *patch.RPE < 0 || *patch.RPE > 10 {
			return nil, nil, invalid("rpe", "must be between 0 and 10")
		}
		cols = append(cols, "rpe = ?")
		args = append(args, *patch.RPE)
	}
	if patch.SetType != nil {
		if !models.IsValidSetType(*patch.SetType) {
			return nil, nil, invalid("set_type", "must be one of working, warmup, drop, failure")
		}
		cols = append(cols, "set_type = ?")
		args = append(args, *patch.SetType)
	}
	if patch.Notes != nil {
		cols = append(cols, "notes = ?")
		args = append(args, *patch.Notes)
	}
	if len(cols) == 0 {
		return nil, nil, invalid("set", "nothing to update")
	}

	var set models.Set
	var checks []PRCheck
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if _, err := getOwnedSet(ctx, tx, userID, setID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE sets SET `+strings.Join(cols, ", ")+` WHERE id = ?`), append(args, setID)...); err != nil {
			return fmt.Errorf("update set: %w", err)
		}
		updated, err := getOwnedSet(ctx, tx, userID, setID)
		if err != nil {
			return err
		}
		set = updated.setRow.toModel()

		if updated.IsValidated {
			candidate := prSet{
				ID:       updated.ID,
				Reps:     updated.Reps,
				Weight:   updated.Weight,
				SetType:  models.SetType(updated.SetType),
				LoggedAt: updated.LoggedAt,
			}
			checks, err = d.checkPRs(ctx, tx, userID, updated.ExerciseID, updated.ExerciseType, []prSet{candidate}, nil)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &set, checks, nil
}

// DeleteSet removes one set. Set numbers of the remaining sets are kept.
func (d *DB) DeleteSet(ctx context.Context, setID int64) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	return d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		if _, err := getOwnedSet(ctx, tx, userID, setID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sets WHERE id = ?`), setID); err != nil {
			return fmt.Errorf("delete set: %w", err)
		}
		return nil
	})
}
