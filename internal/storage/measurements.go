// ABOUTME: Body measurement CRUD operations.
// ABOUTME: Measurements are owner-scoped and listed most recent first.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

type measurementRow struct {
	ID              int64   `db:"id"`
	UserID          int64   `db:"user_id"`
	MeasurementType string  `db:"measurement_type"`
	Value           float64 `db:"value"`
	Unit            string  `db:"unit"`
	MeasuredAt      dbTime  `db:"measured_at"`
	Notes           *string `db:"notes"`
}

func (r measurementRow) toModel() models.BodyMeasurement {
	return models.BodyMeasurement{
		ID:              r.ID,
		UserID:          r.UserID,
		MeasurementType: models.MeasurementType(r.MeasurementType),
		Value:           r.Value,
		Unit:            r.Unit,
		MeasuredAt:      r.MeasuredAt.Time,
		Notes:           r.Notes,
	}
}

const measurementColumns = `id, user_id, measurement_type, value, unit, measured_at, notes`

// LogMeasurement stores a new measurement for the current user.
func (d *DB) LogMeasurement(ctx context.Context, m *models.BodyMeasurement) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if !models.IsValidMeasurementType(string(m.MeasurementType)) {
		return invalid("measurement_type", "unknown type %q", m.MeasurementType)
	}
	if m.Value <= 0 {
		return invalid("value", "must be positive")
	}
	if m.Unit == "" {
		m.Unit = models.MeasurementUnits[m.MeasurementType]
	}
	if m.MeasuredAt.IsZero() {
		m.MeasuredAt = d.now().UTC()
	}
	m.UserID = userID

	err = d.db.GetContext(ctx, &m.ID, d.db.Rebind(`
		INSERT INTO body_measurements (user_id, measurement_type, value, unit, measured_at, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), userID, string(m.MeasurementType), m.Value, m.Unit, formatTime(m.MeasuredAt), m.Notes)
	if err != nil {
		return fmt.Errorf("create measurement: %w", err)
	}
	return nil
}

// ListMeasurements returns measurements, optionally of one type. A limit of
// 0 returns all.
func (d *DB) ListMeasurements(ctx context.Context, measurementType *models.MeasurementType, limit int) ([]models.BodyMeasurement, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + measurementColumns + ` FROM body_measurements WHERE user_id = ?`
	args := []any{userID}
	if measurementType != nil {
		query += ` AND measurement_type = ?`
		args = append(args, string(*measurementType))
	}
	query += ` ORDER BY measured_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []measurementRow
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	out := make([]models.BodyMeasurement, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// LatestMeasurement returns the most recent measurement of a type.
func (d *DB) LatestMeasurement(ctx context.Context, measurementType models.MeasurementType) (*models.BodyMeasurement, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var row measurementRow
	err = d.db.GetContext(ctx, &row, d.db.Rebind(`
		SELECT `+measurementColumns+` FROM body_measurements
		WHERE user_id = ? AND measurement_type = ?
		ORDER BY measured_at DESC, id DESC
		LIMIT 1
	`), userID, string(measurementType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("measurement", measurementType)
	}
	if err != nil {
		return nil, fmt.Errorf("latest measurement: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

// DeleteMeasurement removes one of the user's measurements.
func (d *DB) DeleteMeasurement(ctx context.Context, id int64) error {
	userID, err := currentUser(ctx)
	if err != nil {
		return err
	}
	result, err := d.db.ExecContext(ctx, d.db.Rebind(
		`DELETE FROM body_measurements WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	if affected == 0 {
		return notFound("measurement", id)
	}
	return nil
}
