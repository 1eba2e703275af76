package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all autograde tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS auto_exercises (
		id              TEXT PRIMARY KEY,
		grading_script  TEXT NOT NULL,
		container_image TEXT NOT NULL DEFAULT '',
		max_time_sec    INTEGER NOT NULL DEFAULT 60,
		max_mem_mb      INTEGER NOT NULL DEFAULT 256,
		assets          TEXT NOT NULL DEFAULT '[]',
		created_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS exercises (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL,
		grader_type      TEXT NOT NULL DEFAULT 'TEACHER',
		auto_exercise_id TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS executors (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		base_url   TEXT NOT NULL,
		max_load   INTEGER NOT NULL DEFAULT 1,
		drain      INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS auto_exercise_executors (
		auto_exercise_id TEXT NOT NULL REFERENCES auto_exercises(id) ON DELETE CASCADE,
		executor_id      TEXT NOT NULL REFERENCES executors(id) ON DELETE CASCADE,
		PRIMARY KEY (auto_exercise_id, executor_id)
	)`,

	`CREATE TABLE IF NOT EXISTS submissions (
		id                 TEXT PRIMARY KEY,
		exercise_id        TEXT NOT NULL,
		student_id         TEXT NOT NULL,
		solution           TEXT NOT NULL,
		number             INTEGER NOT NULL,
		autograde_status   TEXT NOT NULL DEFAULT 'NONE',
		grade              INTEGER,
		is_auto_grade      INTEGER NOT NULL DEFAULT 0,
		auto_feedback      TEXT,
		created_at         TEXT NOT NULL,
		grading_started_at TEXT,
		UNIQUE (exercise_id, student_id, number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(autograde_status, created_at)`,

	`CREATE TABLE IF NOT EXISTS automatic_assessments (
		id            TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		grade         INTEGER NOT NULL,
		feedback      TEXT,
		created_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automatic_assessments_submission ON automatic_assessments(submission_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS teacher_activities (
		id                 TEXT PRIMARY KEY,
		submission_id      TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		teacher_id         TEXT NOT NULL,
		grade              INTEGER,
		feedback           TEXT,
		merge_window_start TEXT NOT NULL,
		edited_at          TEXT
	)`,
	// Merge window lookup: latest row per (submission, teacher).
	`CREATE INDEX IF NOT EXISTS idx_teacher_activities_window ON teacher_activities(submission_id, teacher_id, merge_window_start)`,

	`CREATE TABLE IF NOT EXISTS anonymous_submissions (
		id          TEXT PRIMARY KEY,
		exercise_id TEXT NOT NULL,
		solution    TEXT NOT NULL,
		grade       INTEGER NOT NULL,
		feedback    TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anonymous_submissions_exercise ON anonymous_submissions(exercise_id, created_at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "exercises",
		column:   "anonymous_autoassess_enabled",
		alterSQL: "ALTER TABLE exercises ADD COLUMN anonymous_autoassess_enabled INTEGER NOT NULL DEFAULT 0",
	},
	{
		table:    "submissions",
		column:   "student_id",
		alterSQL: "ALTER TABLE submissions ADD COLUMN student_id TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_submissions_student ON submissions(exercise_id, student_id, number)",
	},
	{
		table:    "submissions",
		column:   "grading_started_at",
		alterSQL: "ALTER TABLE submissions ADD COLUMN grading_started_at TEXT",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
