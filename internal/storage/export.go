// ABOUTME: Export functionality for training data.
// ABOUTME: Supports JSON, YAML, and Markdown export formats.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

// ExportData represents the full export format for one user.
type ExportData struct {
	Version         string                   `json:"version" yaml:"version"`
	ExportedAt      time.Time                `json:"exported_at" yaml:"exported_at"`
	Tool            string                   `json:"tool" yaml:"tool"`
	Profile         *models.UserProfile      `json:"profile,omitempty" yaml:"profile,omitempty"`
	Exercises       []models.Exercise        `json:"exercises" yaml:"exercises"`
	Programs        []models.Program         `json:"programs" yaml:"programs"`
	Sessions        []SessionSummary         `json:"sessions" yaml:"sessions"`
	PersonalRecords []models.PersonalRecord  `json:"personal_records" yaml:"personal_records"`
	Measurements    []models.BodyMeasurement `json:"measurements" yaml:"measurements"`
}

// GetAllData retrieves all of the current user's data for export. since
// limits sessions and measurements when non-nil.
func (d *DB) GetAllData(ctx context.Context, since *time.Time) (*ExportData, error) {
	profile, err := d.GetProfile(ctx)
	if err != nil {
		return nil, err
	}

	all, err := d.SearchExercises(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	var owned []models.Exercise
	for _, ex := range all {
		if !ex.IsGlobal() {
			owned = append(owned, ex)
		}
	}

	headers, err := d.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}
	programs := make([]models.Program, 0, len(headers))
	for _, h := range headers {
		p, err := d.GetProgram(ctx, h.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("get program %d: %w", h.ID, err)
		}
		programs = append(programs, *p)
	}

	list, err := d.ListSessions(ctx, 1<<30, since)
	if err != nil {
		return nil, err
	}
	sessions := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		full, err := d.GetSession(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("get session %d: %w", s.ID, err)
		}
		sessions = append(sessions, *full)
	}

	records, err := d.ListPRs(ctx, "")
	if err != nil {
		return nil, err
	}

	measurements, err := d.ListMeasurements(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	if since != nil {
		var filtered []models.BodyMeasurement
		for _, m := range measurements {
			if !m.MeasuredAt.Before(*since) {
				filtered = append(filtered, m)
			}
		}
		measurements = filtered
	}

	return &ExportData{
		Version:         "1.0",
		ExportedAt:      d.now().UTC(),
		Tool:            "gym",
		Profile:         profile,
		Exercises:       owned,
		Programs:        programs,
		Sessions:        sessions,
		PersonalRecords: records,
		Measurements:    measurements,
	}, nil
}

// ExportJSON exports all data as JSON.
func (d *DB) ExportJSON(ctx context.Context, since *time.Time) ([]byte, error) {
	data, err := d.GetAllData(ctx, since)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// ExportYAML exports all data as YAML, with measurements grouped by type
// and sessions flattened to one line per exercise.
func (d *DB) ExportYAML(ctx context.Context, since *time.Time) ([]byte, error) {
	data, err := d.GetAllData(ctx, since)
	if err != nil {
		return nil, err
	}

	yamlData := struct {
		Version         string                        `yaml:"version"`
		ExportedAt      string                        `yaml:"exported_at"`
		Tool            string                        `yaml:"tool"`
		Profile         map[string]any                `yaml:"profile,omitempty"`
		Programs        []yamlProgram                 `yaml:"programs"`
		Sessions        []yamlSession                 `yaml:"sessions"`
		PersonalRecords map[string]map[string]float64 `yaml:"personal_records"`
		Measurements    map[string][]yamlMeasurement  `yaml:"measurements"`
	}{
		Version:         data.Version,
		ExportedAt:      data.ExportedAt.Format(time.RFC3339),
		Tool:            data.Tool,
		Profile:         profileMap(data.Profile),
		Programs:        make([]yamlProgram, 0, len(data.Programs)),
		Sessions:        make([]yamlSession, 0, len(data.Sessions)),
		PersonalRecords: make(map[string]map[string]float64),
		Measurements:    make(map[string][]yamlMeasurement),
	}

	for _, p := range data.Programs {
		yp := yamlProgram{Name: p.Name, Active: p.IsActive}
		if p.Version != nil {
			yp.Version = p.Version.VersionNumber
			for _, day := range p.Version.Days {
				yd := yamlDay{Label: day.Label, Weekdays: day.Weekdays}
				for _, ex := range day.Exercises {
					yd.Exercises = append(yd.Exercises, plannedLine(ex))
				}
				yp.Days = append(yp.Days, yd)
			}
		}
		yamlData.Programs = append(yamlData.Programs, yp)
	}

	for _, s := range data.Sessions {
		ys := yamlSession{
			ID:        s.ID,
			StartedAt: s.StartedAt.Format(time.RFC3339),
			Volume:    s.Volume,
		}
		if s.EndedAt != nil {
			ys.EndedAt = s.EndedAt.Format(time.RFC3339)
		}
		if s.Notes != nil {
			ys.Notes = *s.Notes
		}
		for _, ex := range s.Exercises {
			ys.Exercises = append(ys.Exercises, yamlSessionExercise{
				Name: ex.ExerciseName,
				Sets: setsLine(ex.Sets),
			})
		}
		yamlData.Sessions = append(yamlData.Sessions, ys)
	}

	for _, pr := range data.PersonalRecords {
		if yamlData.PersonalRecords[pr.ExerciseName] == nil {
			yamlData.PersonalRecords[pr.ExerciseName] = make(map[string]float64)
		}
		yamlData.PersonalRecords[pr.ExerciseName][pr.RecordType] = pr.Value
	}

	for _, m := range data.Measurements {
		mt := string(m.MeasurementType)
		ym := yamlMeasurement{
			Value:      m.Value,
			Unit:       m.Unit,
			MeasuredAt: m.MeasuredAt.Format(time.RFC3339),
		}
		if m.Notes != nil {
			ym.Notes = *m.Notes
		}
		yamlData.Measurements[mt] = append(yamlData.Measurements[mt], ym)
	}

	return yaml.Marshal(yamlData)
}

// profileMap reuses the profile's JSON field names for YAML.
func profileMap(p *models.UserProfile) map[string]any {
	if p == nil {
		return nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

type yamlProgram struct {
	Name    string    `yaml:"name"`
	Version int       `yaml:"version"`
	Active  bool      `yaml:"active,omitempty"`
	Days    []yamlDay `yaml:"days,omitempty"`
}

type yamlDay struct {
	Label     string   `yaml:"label"`
	Weekdays  []int    `yaml:"weekdays,omitempty,flow"`
	Exercises []string `yaml:"exercises,omitempty"`
}

type yamlSession struct {
	ID        int64                 `yaml:"id"`
	StartedAt string                `yaml:"started_at"`
	EndedAt   string                `yaml:"ended_at,omitempty"`
	Notes     string                `yaml:"notes,omitempty"`
	Volume    float64               `yaml:"volume"`
	Exercises []yamlSessionExercise `yaml:"exercises,omitempty"`
}

type yamlSessionExercise struct {
	Name string `yaml:"name"`
	Sets string `yaml:"sets"`
}

type yamlMeasurement struct {
	Value      float64 `yaml:"value"`
	Unit       string  `yaml:"unit"`
	MeasuredAt string  `yaml:"measured_at"`
	Notes      string  `yaml:"notes,omitempty"`
}

// plannedLine renders targets as "Bench Press 4x8 @ 80".
func plannedLine(ex models.ProgramDayExercise) string {
	var sb strings.Builder
	sb.WriteString(ex.ExerciseName)
	switch {
	case len(ex.TargetRepsPerSet) > 0:
		reps := make([]string, len(ex.TargetRepsPerSet))
		for i, r := range ex.TargetRepsPerSet {
			reps[i] = fmt.Sprint(r)
		}
		sb.WriteString(" " + strings.Join(reps, "/"))
	case ex.TargetSets != nil && ex.TargetReps != nil:
		fmt.Fprintf(&sb, " %dx%d", *ex.TargetSets, *ex.TargetReps)
	case ex.TargetSets != nil:
		fmt.Fprintf(&sb, " %d sets", *ex.TargetSets)
	}
	if ex.TargetWeight != nil {
		sb.WriteString(" @ " + models.FormatWeight(*ex.TargetWeight))
	}
	return sb.String()
}

// setsLine renders sets as "80x8, 85x6, 60x10 (warmup)".
func setsLine(sets []models.Set) string {
	parts := make([]string, len(sets))
	for i, s := range sets {
		reps := "-"
		if s.Reps != nil {
			reps = fmt.Sprint(*s.Reps)
		}
		p := reps
		if s.Weight != nil {
			p = models.FormatWeight(*s.Weight) + "x" + reps
		}
		if s.SetType != models.SetWorking {
			p += " (" + string(s.SetType) + ")"
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}

// ExportMarkdown exports sessions, records and measurements as Markdown.
func (d *DB) ExportMarkdown(ctx context.Context, since *time.Time) (string, error) {
	data, err := d.GetAllData(ctx, since)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	now := data.ExportedAt

	sb.WriteString(fmt.Sprintf("# Training Export - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))

	for _, p := range data.Programs {
		if !p.IsActive || p.Version == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("## Program: %s (v%d)\n\n", p.Name, p.Version.VersionNumber))
		for _, day := range p.Version.Days {
			sb.WriteString(fmt.Sprintf("### %s\n\n", day.Label))
			for _, ex := range day.Exercises {
				sb.WriteString("- " + plannedLine(ex) + "\n")
			}
			sb.WriteString("\n")
		}
	}

	if len(data.Sessions) > 0 {
		sb.WriteString("## Sessions\n\n")
		sb.WriteString("| Date | Exercise | Sets | Volume |\n")
		sb.WriteString("|------|----------|------|--------|\n")
		for _, s := range data.Sessions {
			for _, ex := range s.Exercises {
				sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.1f |\n",
					s.StartedAt.Format("2006-01-02 15:04"),
					ex.ExerciseName, setsLine(ex.Sets), s.Volume))
			}
		}
		sb.WriteString("\n")
	}

	if len(data.PersonalRecords) > 0 {
		sb.WriteString("## Personal Records\n\n")
		sb.WriteString("| Exercise | Record | Value | Date |\n")
		sb.WriteString("|----------|--------|-------|------|\n")
		for _, pr := range data.PersonalRecords {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				pr.ExerciseName, pr.RecordType, models.FormatWeight(pr.Value),
				pr.AchievedAt.Format("2006-01-02")))
		}
		sb.WriteString("\n")
	}

	// Group measurements by type
	grouped := make(map[models.MeasurementType][]models.BodyMeasurement)
	for _, m := range data.Measurements {
		grouped[m.MeasurementType] = append(grouped[m.MeasurementType], m)
	}
	var types []models.MeasurementType
	for t := range grouped {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return string(types[i]) < string(types[j])
	})
	for _, t := range types {
		sb.WriteString(fmt.Sprintf("## %s\n\n", t))
		sb.WriteString("| Date | Value | Notes |\n")
		sb.WriteString("|------|-------|-------|\n")
		for _, m := range grouped[t] {
			notes := ""
			if m.Notes != nil {
				notes = *m.Notes
			}
			sb.WriteString(fmt.Sprintf("| %s | %.2f %s | %s |\n",
				m.MeasuredAt.Format("2006-01-02 15:04"),
				m.Value, m.Unit, notes))
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
