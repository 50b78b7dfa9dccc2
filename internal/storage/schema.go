// ABOUTME: Schema definition and initialization for both SQLite and PostgreSQL.
// ABOUTME: One template rendered per dialect; every statement is idempotent.
package storage

import (
	"strings"
)

// Column types differ per dialect. Timestamps are stored as fixed-width UTC
// text on SQLite so that lexical order is chronological order.
var schemaTypes = map[string]*strings.Replacer{
	DriverSQLite: strings.NewReplacer(
		"{{ID}}", "INTEGER PRIMARY KEY",
		"{{BIGINT}}", "INTEGER",
		"{{REAL}}", "REAL",
		"{{TIME}}", "TEXT",
		"{{BOOL}}", "INTEGER",
	),
	DriverPostgres: strings.NewReplacer(
		"{{ID}}", "BIGSERIAL PRIMARY KEY",
		"{{BIGINT}}", "BIGINT",
		"{{REAL}}", "DOUBLE PRECISION",
		"{{TIME}}", "TIMESTAMPTZ",
		"{{BOOL}}", "BOOLEAN",
	),
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS exercises (
	id {{ID}},
	user_id {{BIGINT}},
	name TEXT NOT NULL,
	names TEXT,
	muscle_group TEXT,
	equipment TEXT,
	rep_type TEXT NOT NULL DEFAULT 'reps',
	exercise_type TEXT NOT NULL DEFAULT 'strength',
	created_at {{TIME}} NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_exercises_name_scope ON exercises (LOWER(name), COALESCE(user_id, 0));

CREATE TABLE IF NOT EXISTS exercise_aliases (
	id {{ID}},
	exercise_id {{BIGINT}} NOT NULL REFERENCES exercises(id) ON DELETE CASCADE,
	alias TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_exercise_aliases_alias ON exercise_aliases (exercise_id, LOWER(alias));

CREATE TABLE IF NOT EXISTS programs (
	id {{ID}},
	user_id {{BIGINT}} NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	is_active {{BOOL}} NOT NULL,
	created_at {{TIME}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_programs_user ON programs (user_id);

CREATE TABLE IF NOT EXISTS program_versions (
	id {{ID}},
	program_id {{BIGINT}} NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
	version_number INTEGER NOT NULL,
	change_description TEXT,
	created_at {{TIME}} NOT NULL,
	UNIQUE (program_id, version_number)
);

CREATE TABLE IF NOT EXISTS program_days (
	id {{ID}},
	version_id {{BIGINT}} NOT NULL REFERENCES program_versions(id) ON DELETE CASCADE,
	label TEXT NOT NULL,
	weekdays TEXT,
	sort_order INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_program_days_version ON program_days (version_id, sort_order);

CREATE TABLE IF NOT EXISTS program_exercise_groups (
	id {{ID}},
	day_id {{BIGINT}} NOT NULL REFERENCES program_days(id) ON DELETE CASCADE,
	group_type TEXT NOT NULL,
	label TEXT,
	notes TEXT,
	rest_seconds INTEGER,
	sort_order INTEGER NOT NULL,
	UNIQUE (day_id, sort_order)
);

CREATE TABLE IF NOT EXISTS program_sections (
	id {{ID}},
	day_id {{BIGINT}} NOT NULL REFERENCES program_days(id) ON DELETE CASCADE,
	label TEXT NOT NULL,
	notes TEXT,
	sort_order INTEGER NOT NULL,
	UNIQUE (day_id, sort_order)
);

CREATE TABLE IF NOT EXISTS program_day_exercises (
	id {{ID}},
	day_id {{BIGINT}} NOT NULL REFERENCES program_days(id) ON DELETE CASCADE,
	exercise_id {{BIGINT}} NOT NULL REFERENCES exercises(id),
	target_sets INTEGER,
	target_reps INTEGER,
	target_weight {{REAL}},
	target_rpe {{REAL}},
	target_reps_per_set TEXT,
	target_weight_per_set TEXT,
	rest_seconds INTEGER,
	notes TEXT,
	group_id {{BIGINT}} REFERENCES program_exercise_groups(id) ON DELETE SET NULL,
	section_id {{BIGINT}} REFERENCES program_sections(id) ON DELETE SET NULL,
	sort_order INTEGER NOT NULL,
	UNIQUE (day_id, sort_order)
);

CREATE TABLE IF NOT EXISTS sessions (
	id {{ID}},
	user_id {{BIGINT}} NOT NULL,
	program_version_id {{BIGINT}} REFERENCES program_versions(id) ON DELETE SET NULL,
	program_day_id {{BIGINT}} REFERENCES program_days(id) ON DELETE SET NULL,
	started_at {{TIME}} NOT NULL,
	ended_at {{TIME}},
	notes TEXT,
	is_validated {{BOOL}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON sessions (user_id, started_at DESC);

CREATE TABLE IF NOT EXISTS session_exercise_groups (
	id {{ID}},
	session_id {{BIGINT}} NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	group_type TEXT NOT NULL,
	label TEXT,
	notes TEXT,
	rest_seconds INTEGER,
	sort_order INTEGER NOT NULL,
	UNIQUE (session_id, sort_order)
);

CREATE TABLE IF NOT EXISTS session_sections (
	id {{ID}},
	session_id {{BIGINT}} NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	label TEXT NOT NULL,
	notes TEXT,
	sort_order INTEGER NOT NULL,
	UNIQUE (session_id, sort_order)
);

CREATE TABLE IF NOT EXISTS session_exercises (
	id {{ID}},
	session_id {{BIGINT}} NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	exercise_id {{BIGINT}} NOT NULL REFERENCES exercises(id),
	sort_order INTEGER NOT NULL,
	group_id {{BIGINT}} REFERENCES session_exercise_groups(id) ON DELETE SET NULL,
	section_id {{BIGINT}} REFERENCES session_sections(id) ON DELETE SET NULL,
	rest_seconds INTEGER,
	notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_session_exercises_session ON session_exercises (session_id, exercise_id);

CREATE TABLE IF NOT EXISTS sets (
	id {{ID}},
	session_exercise_id {{BIGINT}} NOT NULL REFERENCES session_exercises(id) ON DELETE CASCADE,
	set_number INTEGER NOT NULL,
	set_type TEXT NOT NULL DEFAULT 'working',
	reps INTEGER,
	weight {{REAL}},
	rpe {{REAL}},
	notes TEXT,
	logged_at {{TIME}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sets_session_exercise ON sets (session_exercise_id, set_number);

CREATE TABLE IF NOT EXISTS personal_records (
	id {{ID}},
	user_id {{BIGINT}} NOT NULL,
	exercise_id {{BIGINT}} NOT NULL REFERENCES exercises(id) ON DELETE CASCADE,
	record_type TEXT NOT NULL,
	value {{REAL}} NOT NULL,
	achieved_at {{TIME}} NOT NULL,
	set_id {{BIGINT}} REFERENCES sets(id) ON DELETE SET NULL,
	UNIQUE (user_id, exercise_id, record_type)
);

CREATE TABLE IF NOT EXISTS pr_history (
	id {{ID}},
	user_id {{BIGINT}} NOT NULL,
	exercise_id {{BIGINT}} NOT NULL REFERENCES exercises(id) ON DELETE CASCADE,
	record_type TEXT NOT NULL,
	value {{REAL}} NOT NULL,
	previous_value {{REAL}},
	achieved_at {{TIME}} NOT NULL,
	set_id {{BIGINT}} REFERENCES sets(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_pr_history_lookup ON pr_history (user_id, exercise_id, record_type, achieved_at);

CREATE TABLE IF NOT EXISTS body_measurements (
	id {{ID}},
	user_id {{BIGINT}} NOT NULL,
	measurement_type TEXT NOT NULL,
	value {{REAL}} NOT NULL,
	unit TEXT NOT NULL,
	measured_at {{TIME}} NOT NULL,
	notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_body_measurements_type ON body_measurements (user_id, measurement_type, measured_at DESC);

CREATE TABLE IF NOT EXISTS user_profile (
	user_id {{BIGINT}} PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at {{TIME}} NOT NULL
);
`

// initSchema creates or updates the database schema.
func (d *DB) initSchema() error {
	schema := schemaTypes[d.driver].Replace(schemaTemplate)
	_, err := d.db.Exec(schema)
	return err
}
