// ABOUTME: Repository interface for training data storage.
// ABOUTME: Defines the contract the MCP server and CLI program against.
package storage

import (
	"context"
	"time"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

// Repository defines the storage interface for training data. Every method
// acts for the user carried in ctx.
type Repository interface {
	// Exercise catalog
	ResolveExercise(ctx context.Context, in ResolveInput) (*ResolvedExercise, error)
	FindExercise(ctx context.Context, query string) (*models.Exercise, error)
	GetExercise(ctx context.Context, id int64) (*models.Exercise, error)
	SearchExercises(ctx context.Context, query, muscleGroup string) ([]models.Exercise, error)
	AddExercise(ctx context.Context, in ExerciseInput) (*models.Exercise, error)
	UpdateExercise(ctx context.Context, id int64, patch ExercisePatch) (*models.Exercise, error)
	DeleteExercise(ctx context.Context, id int64) error
	AddExerciseAlias(ctx context.Context, id int64, alias string) error

	// Programs and versions
	CreateProgram(ctx context.Context, in ProgramInput) (*models.Program, error)
	EditProgram(ctx context.Context, programID int64, changeDescription *string, ops []ProgramOp) (*models.Program, error)
	ReplaceProgram(ctx context.Context, programID int64, changeDescription *string, days []DayInput) (*models.Program, error)
	CloneProgramVersion(ctx context.Context, versionID int64, changeDescription *string) (*CloneResult, error)
	GetProgram(ctx context.Context, programID int64, versionNumber int) (*models.Program, error)
	ListPrograms(ctx context.Context) ([]models.Program, error)
	ProgramHistory(ctx context.Context, programID int64) ([]models.ProgramVersion, error)
	ActiveProgram(ctx context.Context) (*models.Program, error)
	ActivateProgram(ctx context.Context, programID int64) error
	DeleteProgram(ctx context.Context, programID int64) error
	InferTodayDay(ctx context.Context, programID int64, tz string) (*TodayPlan, error)

	// Sessions and logging
	StartSession(ctx context.Context, in StartSessionInput) (*SessionSummary, error)
	EndSession(ctx context.Context, notes *string) (*SessionSummary, error)
	ActiveSession(ctx context.Context) (*SessionSummary, error)
	GetSession(ctx context.Context, sessionID int64) (*SessionSummary, error)
	ListSessions(ctx context.Context, limit int, since *time.Time) ([]SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID int64) error
	ValidateSession(ctx context.Context, sessionID int64) ([]PRCheck, error)
	LogExercise(ctx context.Context, entry LogEntry, opts LogOptions) (*LogResult, error)
	LogWorkout(ctx context.Context, entries []LogEntry, opts LogOptions) (*WorkoutResult, error)
	LogRoutine(ctx context.Context, in RoutineInput) (*RoutineResult, error)
	EditSet(ctx context.Context, setID int64, patch SetPatch) (*models.Set, []PRCheck, error)
	DeleteSet(ctx context.Context, setID int64) error

	// Records and stats
	ListPRs(ctx context.Context, exercise string) ([]models.PersonalRecord, error)
	PRHistory(ctx context.Context, exercise, recordType string) ([]models.PRHistoryEntry, error)
	RecomputePRs(ctx context.Context, exercise string) ([]models.PersonalRecord, error)
	ExerciseStats(ctx context.Context, exercise string, periodDays int) (*ExerciseStats, error)
	Summary(ctx context.Context, periodDays int) (*Summary, error)

	// Measurements and profile
	LogMeasurement(ctx context.Context, m *models.BodyMeasurement) error
	ListMeasurements(ctx context.Context, measurementType *models.MeasurementType, limit int) ([]models.BodyMeasurement, error)
	LatestMeasurement(ctx context.Context, measurementType models.MeasurementType) (*models.BodyMeasurement, error)
	DeleteMeasurement(ctx context.Context, id int64) error
	GetProfile(ctx context.Context) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, patch map[string]any) (*models.UserProfile, error)

	// Export
	GetAllData(ctx context.Context, since *time.Time) (*ExportData, error)

	// Lifecycle
	Close() error
}

// Compile-time check that DB implements Repository.
var _ Repository = (*DB)(nil)
