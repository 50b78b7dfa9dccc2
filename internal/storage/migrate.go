// ABOUTME: Data migration between database backends, e.g. a local SQLite file to PostgreSQL.
// ABOUTME: Copies every table row by row in dependency order, preserving ids.

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// migrateTables lists tables parents first so foreign keys resolve.
var migrateTables = []string{
	"exercises",
	"exercise_aliases",
	"programs",
	"program_versions",
	"program_days",
	"program_exercise_groups",
	"program_sections",
	"program_day_exercises",
	"sessions",
	"session_exercise_groups",
	"session_sections",
	"session_exercises",
	"sets",
	"personal_records",
	"pr_history",
	"body_measurements",
	"user_profile",
}

// MigrateSummary holds the number of rows copied per table.
type MigrateSummary struct {
	Rows map[string]int
}

// Total returns the number of rows copied.
func (s *MigrateSummary) Total() int {
	n := 0
	for _, c := range s.Rows {
		n += c
	}
	return n
}

// MigrateData copies all data, for every user, from src to dst in one
// destination transaction. The destination must be empty.
func MigrateData(ctx context.Context, src, dst *DB) (*MigrateSummary, error) {
	for _, table := range []string{"exercises", "programs", "sessions"} {
		var n int
		if err := dst.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table); err != nil {
			return nil, fmt.Errorf("inspect destination: %w", err)
		}
		if n > 0 {
			return nil, invalid("destination", "table %s is not empty", table)
		}
	}

	summary := &MigrateSummary{Rows: make(map[string]int)}
	err := dst.withTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		for _, table := range migrateTables {
			n, err := copyTable(ctx, src, tx, table)
			if err != nil {
				return err
			}
			summary.Rows[table] = n
			if dst.isPostgres() && table != "user_profile" {
				if _, err := tx.ExecContext(ctx, fmt.Sprintf(
					`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`,
					table, table)); err != nil {
					return fmt.Errorf("reset %s sequence: %w", table, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dst.logger.Info("migration complete", "from", src.driver, "to", dst.driver, "rows", summary.Total())
	return summary, nil
}

func copyTable(ctx context.Context, src *DB, tx *Tx, table string) (int, error) {
	rows, err := src.db.QueryxContext(ctx, `SELECT * FROM `+table+` ORDER BY 1`)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := tx.Rebind(`INSERT INTO ` + table + ` (` + strings.Join(cols, ", ") + `) VALUES (` + placeholders + `)`)

	n := 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return n, fmt.Errorf("scan %s: %w", table, err)
		}
		for i, v := range values {
			values[i] = portable(v)
		}
		if _, err := tx.ExecContext(ctx, insert, values...); err != nil {
			return n, fmt.Errorf("copy %s row: %w", table, err)
		}
		n++
	}
	return n, rows.Err()
}

// portable normalizes driver-specific values: timestamps become the shared
// text layout and byte slices become strings.
func portable(v any) any {
	switch t := v.(type) {
	case time.Time:
		return formatTime(t)
	case []byte:
		return string(t)
	}
	return v
}
