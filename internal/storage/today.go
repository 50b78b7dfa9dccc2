// ABOUTME: Infers which program day is scheduled for today in the user's timezone.
// ABOUTME: Read-only; an unknown timezone falls back to server-local time with a warning.
package storage

import (
	"context"
	"time"
	_ "time/tzdata"

	"github.com/jmoiron/sqlx"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

// TodayPlan is the inferred day. Day is nil on a rest day.
type TodayPlan struct {
	ProgramID     int64              `json:"program_id"`
	ProgramName   string             `json:"program_name"`
	VersionID     int64              `json:"version_id"`
	VersionNumber int                `json:"version_number"`
	Date          string             `json:"date"`
	Weekday       int                `json:"weekday"`
	Timezone      string             `json:"timezone"`
	RestDay       bool               `json:"rest_day"`
	Day           *models.ProgramDay `json:"day,omitempty"`
}

// resolveLocation loads tz, falling back to the server's local zone.
func (d *DB) resolveLocation(tz string) *time.Location {
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		d.logger.Warn("unknown timezone, using server local time", "timezone", tz, "error", err)
		return time.Local
	}
	return loc
}

// InferTodayDay returns the first day, by sort_order, of the program's latest
// version whose weekdays contain today's ISO weekday in tz. programID 0 uses
// the active program.
func (d *DB) InferTodayDay(ctx context.Context, programID int64, tz string) (*TodayPlan, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return d.inferTodayDay(ctx, d.db, userID, programID, tz)
}

func (d *DB) inferTodayDay(ctx context.Context, q sqlx.ExtContext, userID, programID int64, tz string) (*TodayPlan, error) {
	if programID == 0 {
		id, err := activeProgramID(ctx, q, userID)
		if err != nil {
			return nil, err
		}
		programID = id
	}
	program, err := getProgram(ctx, q, userID, programID, 0)
	if err != nil {
		return nil, err
	}

	loc := d.resolveLocation(tz)
	now := d.now().In(loc)
	weekday := models.ISOWeekday(now.Weekday())

	plan := &TodayPlan{
		ProgramID:     program.ID,
		ProgramName:   program.Name,
		VersionID:     program.Version.ID,
		VersionNumber: program.Version.VersionNumber,
		Date:          now.Format("2006-01-02"),
		Weekday:       weekday,
		Timezone:      loc.String(),
		RestDay:       true,
	}
	for i := range program.Version.Days {
		day := &program.Version.Days[i]
		if day.HasWeekday(weekday) {
			plan.Day = day
			plan.RestDay = false
			break
		}
	}
	return plan, nil
}
