// ABOUTME: Global exercise catalog seeding.
// ABOUTME: Seeding is idempotent; existing global names are left untouched.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

func ptr[T any](v T) *T { return &v }

// DefaultCatalog is the global catalog installed by SeedGlobalExercises.
var DefaultCatalog = []ExerciseInput{
	{Name: "Bench Press", Names: map[string]string{"es": "Press de banca"}, MuscleGroup: ptr("chest"), Equipment: ptr("barbell"), Aliases: []string{"bench", "press banca"}},
	{Name: "Incline Dumbbell Press", Names: map[string]string{"es": "Press inclinado con mancuernas"}, MuscleGroup: ptr("chest"), Equipment: ptr("dumbbell")},
	{Name: "Back Squat", Names: map[string]string{"es": "Sentadilla"}, MuscleGroup: ptr("legs"), Equipment: ptr("barbell"), Aliases: []string{"squat", "sentadilla trasera"}},
	{Name: "Deadlift", Names: map[string]string{"es": "Peso muerto"}, MuscleGroup: ptr("back"), Equipment: ptr("barbell"), Aliases: []string{"dl"}},
	{Name: "Romanian Deadlift", Names: map[string]string{"es": "Peso muerto rumano"}, MuscleGroup: ptr("legs"), Equipment: ptr("barbell"), Aliases: []string{"rdl"}},
	{Name: "Overhead Press", Names: map[string]string{"es": "Press militar"}, MuscleGroup: ptr("shoulders"), Equipment: ptr("barbell"), Aliases: []string{"ohp", "military press"}},
	{Name: "Barbell Row", Names: map[string]string{"es": "Remo con barra"}, MuscleGroup: ptr("back"), Equipment: ptr("barbell")},
	{Name: "Pull Up", Names: map[string]string{"es": "Dominadas"}, MuscleGroup: ptr("back"), Equipment: ptr("bodyweight"), Aliases: []string{"pullup", "chin up"}},
	{Name: "Lat Pulldown", Names: map[string]string{"es": "Jalón al pecho"}, MuscleGroup: ptr("back"), Equipment: ptr("cable")},
	{Name: "Leg Press", Names: map[string]string{"es": "Prensa"}, MuscleGroup: ptr("legs"), Equipment: ptr("machine")},
	{Name: "Bicep Curl", Names: map[string]string{"es": "Curl de bíceps"}, MuscleGroup: ptr("arms"), Equipment: ptr("dumbbell"), Aliases: []string{"curl"}},
	{Name: "Triceps Pushdown", Names: map[string]string{"es": "Extensión de tríceps en polea"}, MuscleGroup: ptr("arms"), Equipment: ptr("cable")},
	{Name: "Plank", Names: map[string]string{"es": "Plancha"}, MuscleGroup: ptr("core"), Equipment: ptr("bodyweight"), RepType: string(models.RepTypeSeconds), ExerciseType: string(models.ExerciseMobility)},
	{Name: "Rowing Machine", Names: map[string]string{"es": "Remo ergómetro"}, MuscleGroup: ptr("full_body"), Equipment: ptr("machine"), RepType: string(models.RepTypeMeters), ExerciseType: string(models.ExerciseCardio)},
	{Name: "Hip Mobility Flow", Names: map[string]string{"es": "Movilidad de cadera"}, MuscleGroup: ptr("hips"), RepType: string(models.RepTypeSeconds), ExerciseType: string(models.ExerciseWarmup)},
}

// SeedGlobalExercises inserts global exercises that are not present yet and
// returns how many were created.
func (d *DB) SeedGlobalExercises(ctx context.Context, catalog []ExerciseInput) (int, error) {
	for i, in := range catalog {
		if strings.TrimSpace(in.Name) == "" {
			return 0, invalid(fmt.Sprintf("catalog[%d].name", i), "is required")
		}
		if err := validateExerciseEnums(in.RepType, in.ExerciseType); err != nil {
			return 0, err
		}
	}

	created := 0
	err := d.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		now := formatTime(d.now())
		for _, in := range catalog {
			repType := in.RepType
			if repType == "" {
				repType = string(models.RepTypeReps)
			}
			exerciseType := in.ExerciseType
			if exerciseType == "" {
				exerciseType = string(models.ExerciseStrength)
			}
			var ids []int64
			if err := tx.SelectContext(ctx, &ids, tx.Rebind(`
				INSERT INTO exercises (user_id, name, names, muscle_group, equipment, rep_type, exercise_type, created_at)
				VALUES (NULL, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT DO NOTHING
				RETURNING id
			`), strings.TrimSpace(in.Name), models.LocalizedNames(in.Names), in.MuscleGroup, in.Equipment,
				repType, exerciseType, now); err != nil {
				return fmt.Errorf("seed exercise %s: %w", in.Name, err)
			}
			if len(ids) == 0 {
				continue
			}
			created++
			for _, alias := range in.Aliases {
				if err := insertAlias(ctx, tx, ids[0], alias); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		d.logger.Info("seeded global exercises", "count", created)
	}
	return created, nil
}
