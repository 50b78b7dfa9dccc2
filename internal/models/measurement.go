// ABOUTME: BodyMeasurement model and MeasurementType enum.
// ABOUTME: Defines tracked body measurements and their display units.
package models

import (
	"time"
)

// MeasurementType represents the kind of body measurement being recorded.
type MeasurementType string

const (
	// Composition
	MeasurementWeight  MeasurementType = "weight"
	MeasurementBodyFat MeasurementType = "body_fat"
	MeasurementMuscle  MeasurementType = "muscle_mass"

	// Circumferences
	MeasurementNeck  MeasurementType = "neck"
	MeasurementChest MeasurementType = "chest"
	MeasurementWaist MeasurementType = "waist"
	MeasurementHips  MeasurementType = "hips"
	MeasurementArm   MeasurementType = "arm"
	MeasurementThigh MeasurementType = "thigh"
	MeasurementCalf  MeasurementType = "calf"

	// Vitals
	MeasurementRestingHR MeasurementType = "resting_heart_rate"
)

// MeasurementUnits maps measurement types to their default units.
var MeasurementUnits = map[MeasurementType]string{
	MeasurementWeight:    "kg",
	MeasurementBodyFat:   "%",
	MeasurementMuscle:    "kg",
	MeasurementNeck:      "cm",
	MeasurementChest:     "cm",
	MeasurementWaist:     "cm",
	MeasurementHips:      "cm",
	MeasurementArm:       "cm",
	MeasurementThigh:     "cm",
	MeasurementCalf:      "cm",
	MeasurementRestingHR: "bpm",
}

// AllMeasurementTypes lists every valid measurement type.
var AllMeasurementTypes = []MeasurementType{
	MeasurementWeight, MeasurementBodyFat, MeasurementMuscle,
	MeasurementNeck, MeasurementChest, MeasurementWaist, MeasurementHips,
	MeasurementArm, MeasurementThigh, MeasurementCalf,
	MeasurementRestingHR,
}

// IsValidMeasurementType checks if a string is a valid measurement type.
func IsValidMeasurementType(s string) bool {
	for _, mt := range AllMeasurementTypes {
		if string(mt) == s {
			return true
		}
	}
	return false
}

// BodyMeasurement is a single body measurement entry for a user.
type BodyMeasurement struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"-"`
	MeasurementType MeasurementType `json:"measurement_type"`
	Value           float64         `json:"value"`
	Unit            string          `json:"unit"`
	MeasuredAt      time.Time       `json:"measured_at"`
	Notes           *string         `json:"notes,omitempty"`
}

// NewBodyMeasurement creates a measurement stamped with the current time
// and the default unit for its type.
func NewBodyMeasurement(userID int64, mt MeasurementType, value float64) *BodyMeasurement {
	return &BodyMeasurement{
		UserID:          userID,
		MeasurementType: mt,
		Value:           value,
		Unit:            MeasurementUnits[mt],
		MeasuredAt:      time.Now().UTC(),
	}
}

// WithMeasuredAt sets a custom measurement timestamp.
func (m *BodyMeasurement) WithMeasuredAt(t time.Time) *BodyMeasurement {
	m.MeasuredAt = t
	return m
}

// WithUnit overrides the default unit.
func (m *BodyMeasurement) WithUnit(unit string) *BodyMeasurement {
	if unit != "" {
		m.Unit = unit
	}
	return m
}

// WithNotes sets notes on the measurement.
func (m *BodyMeasurement) WithNotes(notes string) *BodyMeasurement {
	m.Notes = &notes
	return m
}
