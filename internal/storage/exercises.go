// ABOUTME: Exercise catalog: fuzzy resolution with auto-create, search and owner-scoped CRUD.
// ABOUTME: Global exercises (user_id NULL) are read-only; user exercises shadow them by name.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

const exerciseColumns = `e.id, e.user_id, e.name, e.names, e.muscle_group, e.equipment, e.rep_type, e.exercise_type`

// Scope is global plus the user's own rows; user rows sort first.
const exerciseScope = `(e.user_id IS NULL OR e.user_id = ?)`
const exerciseOwnerFirst = `CASE WHEN e.user_id IS NULL THEN 1 ELSE 0 END`

// ResolveInput describes an exercise reference and the metadata used if it
// has to be created.
type ResolveInput struct {
	Query        string
	MuscleGroup  *string
	Equipment    *string
	RepType      string
	ExerciseType string
	Locale       string
}

// ResolvedExercise is the outcome of resolving a free-text exercise name.
type ResolvedExercise struct {
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
	DisplayName  string              `json:"display_name"`
	IsNew        bool                `json:"is_new"`
	ExerciseType models.ExerciseType `json:"exercise_type"`
	RepType      models.RepType      `json:"rep_type"`
}

// ExerciseInput is the full metadata for an explicit catalog add.
type ExerciseInput struct {
	Name         string
	Names        map[string]string
	MuscleGroup  *string
	Equipment    *string
	RepType      string
	ExerciseType string
	Aliases      []string
}

// ExercisePatch updates a user-owned exercise. Nil fields are left alone.
type ExercisePatch struct {
	Name         *string
	Names        map[string]string
	MuscleGroup  *string
	Equipment    *string
	RepType      *string
	ExerciseType *string
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ResolveExercise maps a free-text name onto the catalog, creating a
// user-owned exercise when nothing matches.
func (d *DB) ResolveExercise(ctx context.Context, in ResolveInput) (*ResolvedExercise, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, invalid("exercise", "name is required")
	}
	var res *ResolvedExercise
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		res, err = resolveExercise(ctx, tx, userID, in, d.now())
		return err
	})
	return res, err
}

// resolveExercise runs the resolution order: exact name, alias, substring,
// then auto-create. A concurrent create of the same name resolves to the
// winning row.
func resolveExercise(ctx context.Context, q sqlx.ExtContext, userID int64, in ResolveInput, now time.Time) (*ResolvedExercise, error) {
	query := strings.TrimSpace(in.Query)

	ex, err := findExercise(ctx, q, userID, query)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if ex != nil {
		return resolved(ex, in.Locale, false), nil
	}

	repType := in.RepType
	if repType == "" {
		repType = string(models.RepTypeReps)
	}
	exerciseType := in.ExerciseType
	if exerciseType == "" {
		exerciseType = string(models.ExerciseStrength)
	}

	var id int64
	err = sqlx.GetContext(ctx, q, &id, q.Rebind(`
		INSERT INTO exercises (user_id, name, muscle_group, equipment, rep_type, exercise_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id
	`), userID, query, in.MuscleGroup, in.Equipment, repType, exerciseType, formatTime(now))
	if errors.Is(err, sql.ErrNoRows) {
		ex, err := exactExercise(ctx, q, userID, query)
		if err != nil {
			return nil, fmt.Errorf("re-read exercise after conflict: %w", err)
		}
		return resolved(ex, in.Locale, false), nil
	}
	if err != nil {
		return nil, fmt.Errorf("create exercise: %w", err)
	}

	return &ResolvedExercise{
		ID:           id,
		Name:         query,
		DisplayName:  query,
		IsNew:        true,
		ExerciseType: models.ExerciseType(exerciseType),
		RepType:      models.RepType(repType),
	}, nil
}

func exerciseByID(ctx context.Context, q sqlx.ExtContext, userID, id int64, locale string) (*ResolvedExercise, error) {
	var ex models.Exercise
	err := sqlx.GetContext(ctx, q, &ex, q.Rebind(`
		SELECT `+exerciseColumns+` FROM exercises e WHERE e.id = ? AND `+exerciseScope), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("exercise", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get exercise: %w", err)
	}
	return resolved(&ex, locale, false), nil
}

func resolved(ex *models.Exercise, locale string, isNew bool) *ResolvedExercise {
	return &ResolvedExercise{
		ID:           ex.ID,
		Name:         ex.Name,
		DisplayName:  ex.DisplayName(locale),
		IsNew:        isNew,
		ExerciseType: ex.ExerciseType,
		RepType:      ex.RepType,
	}
}

// findExercise looks up an exercise without creating one: exact name, then
// alias, then shortest substring match.
func findExercise(ctx context.Context, q sqlx.ExtContext, userID int64, query string) (*models.Exercise, error) {
	ex, err := exactExercise(ctx, q, userID, query)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return ex, err
	}

	var byAlias models.Exercise
	err = sqlx.GetContext(ctx, q, &byAlias, q.Rebind(`
		SELECT `+exerciseColumns+`
		FROM exercise_aliases a
		JOIN exercises e ON e.id = a.exercise_id
		WHERE LOWER(a.alias) = LOWER(?) AND `+exerciseScope+`
		ORDER BY `+exerciseOwnerFirst+`, e.id
		LIMIT 1
	`), query, userID)
	if err == nil {
		return &byAlias, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find exercise by alias: %w", err)
	}

	var bySubstring models.Exercise
	err = sqlx.GetContext(ctx, q, &bySubstring, q.Rebind(`
		SELECT `+exerciseColumns+`
		FROM exercises e
		WHERE LOWER(e.name) LIKE ? ESCAPE '\' AND `+exerciseScope+`
		ORDER BY LENGTH(e.name), `+exerciseOwnerFirst+`, e.id
		LIMIT 1
	`), "%"+escapeLike(strings.ToLower(query))+"%", userID)
	if err == nil {
		return &bySubstring, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find exercise by name: %w", err)
	}
	return nil, notFound("exercise", query)
}

func exactExercise(ctx context.Context, q sqlx.ExtContext, userID int64, name string) (*models.Exercise, error) {
	var ex models.Exercise
	err := sqlx.GetContext(ctx, q, &ex, q.Rebind(`
		SELECT `+exerciseColumns+`
		FROM exercises e
		WHERE LOWER(e.name) = LOWER(?) AND `+exerciseScope+`
		ORDER BY `+exerciseOwnerFirst+`
		LIMIT 1
	`), name, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("exercise", name)
	}
	if err != nil {
		return nil, fmt.Errorf("find exercise: %w", err)
	}
	return &ex, nil
}

// FindExercise resolves a name without ever creating a row.
func (d *DB) FindExercise(ctx context.Context, query string) (*models.Exercise, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return findExercise(ctx, d.db, userID, strings.TrimSpace(query))
}

// GetExercise returns an exercise visible to the user, with its aliases.
func (d *DB) GetExercise(ctx context.Context, id int64) (*models.Exercise, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var ex models.Exercise
	err = d.db.GetContext(ctx, &ex, d.db.Rebind(`
		SELECT `+exerciseColumns+` FROM exercises e WHERE e.id = ? AND `+exerciseScope), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("exercise", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get exercise: %w", err)
	}
	list := []models.Exercise{ex}
	if err := d.attachAliases(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// SearchExercises lists visible exercises, optionally filtered by a name
// substring and muscle group.
func (d *DB) SearchExercises(ctx context.Context, query, muscleGroup string) ([]models.Exercise, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	sqlQuery := `SELECT ` + exerciseColumns + ` FROM exercises e WHERE ` + exerciseScope
	args := []any{userID}
	if q := strings.TrimSpace(query); q != "" {
		sqlQuery += ` AND (LOWER(e.name) LIKE ? ESCAPE '\' OR EXISTS (
			SELECT 1 FROM exercise_aliases a WHERE a.exercise_id = e.id AND LOWER(a.alias) LIKE ? ESCAPE '\'))`
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		args = append(args, pattern, pattern)
	}
	if mg := strings.TrimSpace(muscleGroup); mg != "" {
		sqlQuery += ` AND LOWER(e.muscle_group) = LOWER(?)`
		args = append(args, mg)
	}
	sqlQuery += ` ORDER BY e.name, e.id`

	var list []models.Exercise
	if err := d.db.SelectContext(ctx, &list, d.db.Rebind(sqlQuery), args...); err != nil {
		return nil, fmt.Errorf("search exercises: %w", err)
	}
	if err := d.attachAliases(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) attachAliases(ctx context.Context, list []models.Exercise) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, ex := range list {
		ids[i] = ex.ID
		index[ex.ID] = i
	}
	query, args, err := sqlx.In(`SELECT exercise_id, alias FROM exercise_aliases WHERE exercise_id IN (?) ORDER BY alias`, ids)
	if err != nil {
		return fmt.Errorf("build alias query: %w", err)
	}
	var rows []struct {
		ExerciseID int64  `db:"exercise_id"`
		Alias      string `db:"alias"`
	}
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("list aliases: %w", err)
	}
	for _, r := range rows {
		i := index[r.ExerciseID]
		list[i].Aliases = append(list[i].Aliases, r.Alias)
	}
	return nil
}

func validateExerciseEnums(repType, exerciseType string) error {
	if repType != "" && !models.IsValidRepType(repType) {
		return invalid("rep_type", "must be one of reps, seconds, meters, calories")
	}
	if exerciseType != "" && !models.IsValidExerciseType(exerciseType) {
		return invalid("exercise_type", "must be one of strength, mobility, cardio, warmup")
	}
	return nil
}

// AddExercise creates a user-owned exercise. A name already present in the
// user's own scope is a validation error.
func (d *DB) AddExercise(ctx context.Context, in ExerciseInput) (*models.Exercise, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if err := validateExerciseEnums(in.RepType, in.ExerciseType); err != nil {
		return nil, err
	}
	repType := in.RepType
	if repType == "" {
		repType = string(models.RepTypeReps)
	}
	exerciseType := in.ExerciseType
	if exerciseType == "" {
		exerciseType = string(models.ExerciseStrength)
	}

	var id int64
	err = d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, tx.Rebind(
			`SELECT COUNT(*) FROM exercises WHERE LOWER(name) = LOWER(?) AND user_id = ?`), name, userID); err != nil {
			return fmt.Errorf("check exercise name: %w", err)
		}
		if exists > 0 {
			return invalid("name", "exercise %q already exists", name)
		}
		if err := tx.GetContext(ctx, &id, tx.Rebind(`
			INSERT INTO exercises (user_id, name, names, muscle_group, equipment, rep_type, exercise_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`), userID, name, models.LocalizedNames(in.Names), in.MuscleGroup, in.Equipment, repType, exerciseType,
			formatTime(d.now())); err != nil {
			return fmt.Errorf("create exercise: %w", err)
		}
		for _, alias := range in.Aliases {
			if err := insertAlias(ctx, tx, id, alias); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetExercise(ctx, id)
}

// UpdateExercise patches a user-owned exercise. Global and foreign exercises
// are reported as not found.
func (d *DB) UpdateExercise(ctx context.Context, id int64, patch ExercisePatch) (*models.Exercise, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var repType, exerciseType string
	if patch.RepType != nil {
		repType = *patch.RepType
	}
	if patch.ExerciseType != nil {
		exerciseType = *patch.ExerciseType
	}
	if err := validateExerciseEnums(repType, exerciseType); err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, invalid("name", "must not be empty")
	}

	sets := []string{}
	args := []any{}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*patch.Name))
	}
	if patch.Names != nil {
		sets = append(sets, "names = ?")
		args = append(args, models.LocalizedNames(patch.Names))
	}
	if patch.MuscleGroup != nil {
		sets = append(sets, "muscle_group = ?")
		args = append(args, *patch.MuscleGroup)
	}
	if patch.Equipment != nil {
		sets = append(sets, "equipment = ?")
		args = append(args, *patch.Equipment)
	}
	if patch.RepType != nil {
		sets = append(sets, "rep_type = ?")
		args = append(args, repType)
	}
	if patch.ExerciseType != nil {
		sets = append(sets, "exercise_type = ?")
		args = append(args, exerciseType)
	}
	if len(sets) == 0 {
		return nil, invalid("", "nothing to update")
	}

	args = append(args, id, userID)
	res, err := d.db.ExecContext(ctx, d.db.Rebind(
		`UPDATE exercises SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("update exercise: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("exercise", id)
	}
	return d.GetExercise(ctx, id)
}

// DeleteExercise removes a user-owned exercise that no session or program
// row references.
func (d *DB) DeleteExercise(ctx context.Context, id int64) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	return d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		var owned int
		if err := tx.GetContext(ctx, &owned, tx.Rebind(
			`SELECT COUNT(*) FROM exercises WHERE id = ? AND user_id = ?`), id, userID); err != nil {
			return fmt.Errorf("check exercise owner: %w", err)
		}
		if owned == 0 {
			return notFound("exercise", id)
		}
		var refs int
		if err := tx.GetContext(ctx, &refs, tx.Rebind(`
			SELECT (SELECT COUNT(*) FROM session_exercises WHERE exercise_id = ?)
			     + (SELECT COUNT(*) FROM program_day_exercises WHERE exercise_id = ?)
		`), id, id); err != nil {
			return fmt.Errorf("check exercise references: %w", err)
		}
		if refs > 0 {
			return &ConflictError{Message: fmt.Sprintf("exercise %d is referenced by %d session or program rows", id, refs)}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM exercises WHERE id = ? AND user_id = ?`), id, userID); err != nil {
			return fmt.Errorf("delete exercise: %w", err)
		}
		return nil
	})
}

// AddExerciseAlias attaches an alias to a visible exercise. Duplicate
// aliases are ignored.
func (d *DB) AddExerciseAlias(ctx context.Context, id int64, alias string) error {
	if strings.TrimSpace(alias) == "" {
		return invalid("alias", "is required")
	}
	if _, err := d.GetExercise(ctx, id); err != nil {
		return err
	}
	return insertAlias(ctx, d.db, id, alias)
}

func insertAlias(ctx context.Context, q sqlx.ExtContext, exerciseID int64, alias string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil
	}
	_, err := q.ExecContext(ctx, q.Rebind(
		`INSERT INTO exercise_aliases (exercise_id, alias) VALUES (?, ?) ON CONFLICT DO NOTHING`), exerciseID, alias)
	if err != nil {
		return fmt.Errorf("add alias: %w", err)
	}
	return nil
}
