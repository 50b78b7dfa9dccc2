// ABOUTME: Exercise catalog model with rep and exercise type enums.
// ABOUTME: Exercises are global (UserID nil) or owned by exactly one user.
package models

import "strings"

// RepType describes what the "reps" of a set measure.
type RepType string

const (
	RepTypeReps     RepType = "reps"
	RepTypeSeconds  RepType = "seconds"
	RepTypeMeters   RepType = "meters"
	RepTypeCalories RepType = "calories"
)

// ExerciseType classifies exercises. Only strength exercises track PRs.
type ExerciseType string

const (
	ExerciseStrength ExerciseType = "strength"
	ExerciseMobility ExerciseType = "mobility"
	ExerciseCardio   ExerciseType = "cardio"
	ExerciseWarmup   ExerciseType = "warmup"
)

// IsValidRepType checks if a string is a valid rep type.
func IsValidRepType(s string) bool {
	switch RepType(s) {
	case RepTypeReps, RepTypeSeconds, RepTypeMeters, RepTypeCalories:
		return true
	}
	return false
}

// IsValidExerciseType checks if a string is a valid exercise type.
func IsValidExerciseType(s string) bool {
	switch ExerciseType(s) {
	case ExerciseStrength, ExerciseMobility, ExerciseCardio, ExerciseWarmup:
		return true
	}
	return false
}

// Exercise is a catalog entry.
type Exercise struct {
	ID           int64          `db:"id" json:"id"`
	UserID       *int64         `db:"user_id" json:"-"`
	Name         string         `db:"name" json:"name"`
	Names        LocalizedNames `db:"names" json:"names,omitempty"`
	MuscleGroup  *string        `db:"muscle_group" json:"muscle_group,omitempty"`
	Equipment    *string        `db:"equipment" json:"equipment,omitempty"`
	RepType      RepType        `db:"rep_type" json:"rep_type"`
	ExerciseType ExerciseType   `db:"exercise_type" json:"exercise_type"`
	Aliases      []string       `db:"-" json:"aliases,omitempty"`
}

// IsGlobal reports whether the exercise belongs to the shared catalog.
func (e *Exercise) IsGlobal() bool {
	return e.UserID == nil
}

// DisplayName returns the localized name for locale, falling back to Name.
func (e *Exercise) DisplayName(locale string) string {
	return LocalizedName(e.Name, e.Names, locale)
}

// LocalizedName picks names[locale] (or its base language) or the canonical name.
func LocalizedName(name string, names LocalizedNames, locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" || len(names) == 0 {
		return name
	}
	if v, ok := names[locale]; ok && v != "" {
		return v
	}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		if v, ok := names[locale[:i]]; ok && v != "" {
			return v
		}
	}
	return name
}
