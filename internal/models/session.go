// ABOUTME: Session, SessionExercise and Set models for workout logging.
// ABOUTME: A session is one workout instance; at most one per user is open.
package models

import (
	"time"
)

// SetType classifies a logged set.
type SetType string

const (
	SetWorking SetType = "working"
	SetWarmup  SetType = "warmup"
	SetDrop    SetType = "drop"
	SetFailure SetType = "failure"
)

// IsValidSetType checks if a string is a valid set type.
func IsValidSetType(s string) bool {
	switch SetType(s) {
	case SetWorking, SetWarmup, SetDrop, SetFailure:
		return true
	}
	return false
}

// Session represents a workout instance.
type Session struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"-"`
	ProgramVersionID *int64     `json:"program_version_id,omitempty"`
	ProgramDayID     *int64     `json:"program_day_id,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	IsValidated      bool       `json:"is_validated"`

	// Populated when fetching a full session.
	Groups    []ExerciseGroup   `json:"groups,omitempty"`
	Sections  []Section         `json:"sections,omitempty"`
	Exercises []SessionExercise `json:"exercises,omitempty"`
}

// NewSession creates an open, validated session starting now.
func NewSession(userID int64) *Session {
	return &Session{
		UserID:      userID,
		StartedAt:   time.Now().UTC(),
		IsValidated: true,
	}
}

// WithNotes sets notes on the session.
func (s *Session) WithNotes(notes string) *Session {
	s.Notes = &notes
	return s
}

// WithStartedAt sets a custom start timestamp.
func (s *Session) WithStartedAt(t time.Time) *Session {
	s.StartedAt = t
	return s
}

// WithProgramDay binds the session to a program day.
func (s *Session) WithProgramDay(versionID, dayID int64) *Session {
	s.ProgramVersionID = &versionID
	s.ProgramDayID = &dayID
	return s
}

// IsActive reports whether the session is still open.
func (s *Session) IsActive() bool {
	return s.EndedAt == nil
}

// SessionExercise is an exercise performed within a session.
type SessionExercise struct {
	ID           int64   `json:"id"`
	SessionID    int64   `json:"session_id"`
	ExerciseID   int64   `json:"exercise_id"`
	ExerciseName string  `json:"exercise"`
	SortOrder    int     `json:"sort_order"`
	GroupID      *int64  `json:"group_id,omitempty"`
	SectionID    *int64  `json:"section_id,omitempty"`
	RestSeconds  *int    `json:"rest_seconds,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Sets         []Set   `json:"sets,omitempty"`
}

// Set is one logged set.
type Set struct {
	ID                int64     `json:"id"`
	SessionExerciseID int64     `json:"session_exercise_id"`
	SetNumber         int       `json:"set_number"`
	SetType           SetType   `json:"set_type"`
	Reps              *int      `json:"reps,omitempty"`
	Weight            *float64  `json:"weight,omitempty"`
	RPE               *float64  `json:"rpe,omitempty"`
	Notes             *string   `json:"notes,omitempty"`
	LoggedAt          time.Time `json:"logged_at"`
}
