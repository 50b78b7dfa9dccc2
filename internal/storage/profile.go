// ABOUTME: User profile persistence as one JSON document per user.
// ABOUTME: Updates merge a patch onto the stored profile and validate the result.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
)

// GetProfile returns the stored profile, or an empty one.
func (d *DB) GetProfile(ctx context.Context) (*models.UserProfile, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	var row struct {
		Data      string `db:"data"`
		UpdatedAt dbTime `db:"updated_at"`
	}
	err = d.db.GetContext(ctx, &row, d.db.Rebind(
		`SELECT data, updated_at FROM user_profile WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserProfile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	var p models.UserProfile
	if err := json.Unmarshal([]byte(row.Data), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	updated := row.UpdatedAt.Time
	p.UpdatedAt = &updated
	return &p, nil
}

// UpdateProfile merges patch onto the profile. Unknown keys become
// extensions; a null value removes a key.
func (d *DB) UpdateProfile(ctx context.Context, patch map[string]any) (*models.UserProfile, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, invalid("profile", "nothing to update")
	}
	p, err := d.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Merge(patch); err != nil {
		return nil, invalid("profile", "%s", err.Error())
	}
	p.UpdatedAt = nil

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	now := d.now().UTC()
	if _, err := d.db.ExecContext(ctx, d.db.Rebind(`
		INSERT INTO user_profile (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`), userID, string(data), formatTime(now)); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	p.UpdatedAt = &now
	return p, nil
}
