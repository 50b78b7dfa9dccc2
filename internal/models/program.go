// ABOUTME: Program tree models: program, version, day, group, section, day exercise.
// ABOUTME: Versions are immutable snapshots; "latest" is MAX(version_number).
package models

import "time"

// GroupType is the set-grouping semantics of an exercise group.
type GroupType string

const (
	GroupSuperset GroupType = "superset"
	GroupPaired   GroupType = "paired"
	GroupCircuit  GroupType = "circuit"
)

// IsValidGroupType checks if a string is a valid group type.
func IsValidGroupType(s string) bool {
	switch GroupType(s) {
	case GroupSuperset, GroupPaired, GroupCircuit:
		return true
	}
	return false
}

// Program is a user's training program.
type Program struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"-"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`

	// Populated when the program is fetched with a version tree.
	Version *ProgramVersion `json:"version,omitempty"`
}

// ProgramVersion is an immutable snapshot of a program's structure.
type ProgramVersion struct {
	ID                int64        `json:"id"`
	ProgramID         int64        `json:"program_id"`
	VersionNumber     int          `json:"version_number"`
	ChangeDescription *string      `json:"change_description,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	Days              []ProgramDay `json:"days,omitempty"`
}

// ProgramDay is one training day of a version. Weekdays holds ISO weekday
// numbers (1=Mon..7=Sun).
type ProgramDay struct {
	ID        int64                `db:"id" json:"id"`
	VersionID int64                `db:"version_id" json:"version_id"`
	Label     string               `db:"label" json:"label"`
	Weekdays  IntList              `db:"weekdays" json:"weekdays,omitempty"`
	SortOrder int                  `db:"sort_order" json:"sort_order"`
	Groups    []ExerciseGroup      `db:"-" json:"groups,omitempty"`
	Sections  []Section            `db:"-" json:"sections,omitempty"`
	Exercises []ProgramDayExercise `db:"-" json:"exercises,omitempty"`
}

// ExerciseGroup groups exercises for superset, paired or circuit execution.
// The same shape lives in program_exercise_groups and session_exercise_groups.
type ExerciseGroup struct {
	ID          int64     `db:"id" json:"id"`
	GroupType   GroupType `db:"group_type" json:"group_type"`
	Label       *string   `db:"label" json:"label,omitempty"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	RestSeconds *int      `db:"rest_seconds" json:"rest_seconds,omitempty"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
}

// Section is a pure label over a run of exercises.
type Section struct {
	ID        int64   `db:"id" json:"id"`
	Label     string  `db:"label" json:"label"`
	Notes     *string `db:"notes" json:"notes,omitempty"`
	SortOrder int     `db:"sort_order" json:"sort_order"`
}

// ProgramDayExercise is a planned exercise with its targets.
type ProgramDayExercise struct {
	ID                 int64     `db:"id" json:"id"`
	DayID              int64     `db:"day_id" json:"day_id"`
	ExerciseID         int64     `db:"exercise_id" json:"exercise_id"`
	ExerciseName       string    `db:"exercise_name" json:"exercise"`
	TargetSets         *int      `db:"target_sets" json:"target_sets,omitempty"`
	TargetReps         *int      `db:"target_reps" json:"target_reps,omitempty"`
	TargetWeight       *float64  `db:"target_weight" json:"target_weight,omitempty"`
	TargetRPE          *float64  `db:"target_rpe" json:"target_rpe,omitempty"`
	TargetRepsPerSet   IntList   `db:"target_reps_per_set" json:"target_reps_per_set,omitempty"`
	TargetWeightPerSet FloatList `db:"target_weight_per_set" json:"target_weight_per_set,omitempty"`
	RestSeconds        *int      `db:"rest_seconds" json:"rest_seconds,omitempty"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	GroupID            *int64    `db:"group_id" json:"group_id,omitempty"`
	SectionID          *int64    `db:"section_id" json:"section_id,omitempty"`
	SortOrder          int       `db:"sort_order" json:"sort_order"`
}

// HasWeekday reports whether the day is scheduled on the ISO weekday.
func (d *ProgramDay) HasWeekday(isoWeekday int) bool {
	return d.Weekdays.Contains(isoWeekday)
}

// ISOWeekday converts a time.Weekday to ISO numbering (1=Mon..7=Sun).
func ISOWeekday(w time.Weekday) int {
	if w == time.Sunday {
		return 7
	}
	return int(w)
}
