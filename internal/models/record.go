// ABOUTME: Personal record models and record_type naming helpers.
// ABOUTME: PersonalRecord holds the current best; PRHistoryEntry is the append-only timeline.
package models

import (
	"strconv"
	"strings"
	"time"
)

// Record type names. Rep records are bucketed per weight as max_reps_at_<weight>.
const (
	RecordMaxWeight    = "max_weight"
	RecordEstimated1RM = "estimated_1rm"
	RecordMaxRepsAt    = "max_reps_at_"
)

// MaxRepsAtRecordType returns the record type for the best reps at weight.
func MaxRepsAtRecordType(weight float64) string {
	return RecordMaxRepsAt + FormatWeight(weight)
}

// RecordKind collapses max_reps_at_<w> buckets into a single kind label.
func RecordKind(recordType string) string {
	if strings.HasPrefix(recordType, RecordMaxRepsAt) {
		return "max_reps_at"
	}
	return recordType
}

// FormatWeight renders a weight without trailing zeros (80, 82.5).
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// PersonalRecord is the current best value for (user, exercise, record_type).
type PersonalRecord struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"-"`
	ExerciseID   int64     `json:"exercise_id"`
	ExerciseName string    `json:"exercise,omitempty"`
	RecordType   string    `json:"record_type"`
	Value        float64   `json:"value"`
	AchievedAt   time.Time `json:"achieved_at"`
	SetID        *int64    `json:"set_id,omitempty"`
}

// PRHistoryEntry is one improvement in the PR timeline.
type PRHistoryEntry struct {
	ID            int64     `json:"id"`
	ExerciseID    int64     `json:"exercise_id"`
	RecordType    string    `json:"record_type"`
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previous_value"`
	AchievedAt    time.Time `json:"achieved_at"`
	SetID         *int64    `json:"set_id,omitempty"`
}
