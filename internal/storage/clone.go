// ABOUTME: Batch copy of exercise groups and sections between program and session tables.
// ABOUTME: One INSERT ... SELECT per call; old→new ids are correlated through sort_order.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// cloneTable describes a table cloneBatch may read or write. Only tables in
// cloneTables are accepted, so identifiers are never caller-controlled.
type cloneTable struct {
	kind      string
	parentCol string
	columns   []string
}

var (
	groupColumns   = []string{"group_type", "label", "notes", "rest_seconds", "sort_order"}
	sectionColumns = []string{"label", "notes", "sort_order"}
)

var cloneTables = map[string]cloneTable{
	"program_exercise_groups": {kind: "group", parentCol: "day_id", columns: groupColumns},
	"session_exercise_groups": {kind: "group", parentCol: "session_id", columns: groupColumns},
	"program_sections":        {kind: "section", parentCol: "day_id", columns: sectionColumns},
	"session_sections":        {kind: "section", parentCol: "session_id", columns: sectionColumns},
}

// cloneBatch copies every row of sourceTable under sourceParentID into
// targetTable under targetParentID and returns old id → new id. sort_order
// must be unique per parent; a duplicate is reported as an error before any
// write. An empty source returns an empty map without writing.
func cloneBatch(ctx context.Context, q sqlx.ExtContext, sourceTable, targetTable string, sourceParentID, targetParentID int64) (map[int64]int64, error) {
	src, ok := cloneTables[sourceTable]
	if !ok {
		return nil, fmt.Errorf("clone: unknown source table %q", sourceTable)
	}
	dst, ok := cloneTables[targetTable]
	if !ok {
		return nil, fmt.Errorf("clone: unknown target table %q", targetTable)
	}
	if src.kind != dst.kind {
		return nil, fmt.Errorf("clone: cannot copy %s rows into %s", sourceTable, targetTable)
	}

	var sources []struct {
		ID        int64 `db:"id"`
		SortOrder int   `db:"sort_order"`
	}
	if err := sqlx.SelectContext(ctx, q, &sources, q.Rebind(
		`SELECT id, sort_order FROM `+sourceTable+` WHERE `+src.parentCol+` = ? ORDER BY sort_order`), sourceParentID); err != nil {
		return nil, fmt.Errorf("clone %s: select source: %w", sourceTable, err)
	}

	idMap := make(map[int64]int64, len(sources))
	if len(sources) == 0 {
		return idMap, nil
	}

	oldBySort := make(map[int]int64, len(sources))
	for _, s := range sources {
		if _, dup := oldBySort[s.SortOrder]; dup {
			return nil, fmt.Errorf("clone %s: duplicate sort_order %d under parent %d", sourceTable, s.SortOrder, sourceParentID)
		}
		oldBySort[s.SortOrder] = s.ID
	}

	cols := strings.Join(src.columns, ", ")
	query := `INSERT INTO ` + targetTable + ` (` + dst.parentCol + `, ` + cols + `)
		SELECT CAST(? AS BIGINT), ` + cols + ` FROM ` + sourceTable + `
		WHERE ` + src.parentCol + ` = ?
		ORDER BY sort_order
		RETURNING id, sort_order`

	rows, err := q.QueryxContext(ctx, q.Rebind(query), targetParentID, sourceParentID)
	if err != nil {
		return nil, fmt.Errorf("clone %s into %s: %w", sourceTable, targetTable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var newID int64
		var sortOrder int
		if err := rows.Scan(&newID, &sortOrder); err != nil {
			return nil, fmt.Errorf("clone %s: scan: %w", targetTable, err)
		}
		oldID, ok := oldBySort[sortOrder]
		if !ok {
			return nil, fmt.Errorf("clone %s: inserted sort_order %d has no source row", targetTable, sortOrder)
		}
		idMap[oldID] = newID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clone %s: %w", targetTable, err)
	}
	if len(idMap) != len(sources) {
		return nil, fmt.Errorf("clone %s: copied %d of %d rows", targetTable, len(idMap), len(sources))
	}
	return idMap, nil
}

// remap translates an optional foreign key through an id map. Ids missing
// from the map become NULL.
func remap(id *int64, m map[int64]int64) *int64 {
	if id == nil {
		return nil
	}
	if n, ok := m[*id]; ok {
		return &n
	}
	return nil
}
