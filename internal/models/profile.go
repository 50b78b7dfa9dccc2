// ABOUTME: User profile with a validated core and an open extension map.
// ABOUTME: Unknown fields land in Extensions instead of untyped passthrough data.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Experience levels accepted in a profile.
var ExperienceLevels = []string{"beginner", "intermediate", "advanced"}

// UserProfile is the training profile of a user.
type UserProfile struct {
	Name                *string        `json:"name,omitempty"`
	Sex                 *string        `json:"sex,omitempty"`
	BirthYear           *int           `json:"birth_year,omitempty"`
	WeightKg            *float64       `json:"weight_kg,omitempty"`
	HeightCm            *float64       `json:"height_cm,omitempty"`
	ExperienceLevel     *string        `json:"experience_level,omitempty"`
	Goals               []string       `json:"goals,omitempty"`
	TrainingDaysPerWeek *int           `json:"training_days_per_week,omitempty"`
	Timezone            *string        `json:"timezone,omitempty"`
	Locale              *string        `json:"locale,omitempty"`
	Injuries            []string       `json:"injuries,omitempty"`
	Extensions          map[string]any `json:"extensions,omitempty"`
	UpdatedAt           *time.Time     `json:"updated_at,omitempty"`
}

// profileCoreKeys are the fields of UserProfile that are not extensions.
var profileCoreKeys = map[string]bool{
	"name": true, "sex": true, "birth_year": true, "weight_kg": true, "height_cm": true,
	"experience_level": true, "goals": true, "training_days_per_week": true,
	"timezone": true, "locale": true, "injuries": true, "extensions": true, "updated_at": true,
}

// Validate checks the core fields for range and enum errors.
func (p *UserProfile) Validate() error {
	if p.Sex != nil {
		switch *p.Sex {
		case "male", "female", "other":
		default:
			return fmt.Errorf("sex must be one of male, female, other")
		}
	}
	if p.BirthYear != nil && (*p.BirthYear < 1900 || *p.BirthYear > time.Now().Year()) {
		return fmt.Errorf("birth_year out of range: %d", *p.BirthYear)
	}
	if p.WeightKg != nil && (*p.WeightKg <= 0 || *p.WeightKg > 500) {
		return fmt.Errorf("weight_kg out of range: %v", *p.WeightKg)
	}
	if p.HeightCm != nil && (*p.HeightCm <= 0 || *p.HeightCm > 300) {
		return fmt.Errorf("height_cm out of range: %v", *p.HeightCm)
	}
	if p.ExperienceLevel != nil {
		ok := false
		for _, l := range ExperienceLevels {
			if l == *p.ExperienceLevel {
				ok = true
			}
		}
		if !ok {
			return fmt.Errorf("experience_level must be one of %v", ExperienceLevels)
		}
	}
	if p.TrainingDaysPerWeek != nil && (*p.TrainingDaysPerWeek < 1 || *p.TrainingDaysPerWeek > 7) {
		return fmt.Errorf("training_days_per_week must be between 1 and 7")
	}
	if p.Timezone != nil && *p.Timezone != "" {
		if _, err := time.LoadLocation(*p.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", *p.Timezone)
		}
	}
	return nil
}

// Merge applies a JSON patch object onto the profile. Core keys replace the
// typed fields; any other key is stored in Extensions. A null value removes
// the key.
func (p *UserProfile) Merge(patch map[string]any) error {
	current, err := json.Marshal(p)
	if err != nil {
		return err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return err
	}
	ext, _ := merged["extensions"].(map[string]any)
	if ext == nil {
		ext = map[string]any{}
	}
	for k, v := range patch {
		if k == "extensions" {
			if m, ok := v.(map[string]any); ok {
				for ek, ev := range m {
					setOrDelete(ext, ek, ev)
				}
			}
			continue
		}
		if k == "updated_at" {
			continue
		}
		if profileCoreKeys[k] {
			setOrDelete(merged, k, v)
			continue
		}
		setOrDelete(ext, k, v)
	}
	if len(ext) > 0 {
		merged["extensions"] = ext
	} else {
		delete(merged, "extensions")
	}

	b, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	var next UserProfile
	if err := json.Unmarshal(b, &next); err != nil {
		return fmt.Errorf("invalid profile field: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*p = next
	return nil
}

func setOrDelete(m map[string]any, k string, v any) {
	if v == nil {
		delete(m, k)
		return
	}
	m[k] = v
}
