package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/me/autograde/pkg/model"
)

// CreateAnonymousSubmission inserts a and then deletes every row of the same
// exercise older than the keep-th newest one. Both happen in one transaction.
func (s *SQLiteStore) CreateAnonymousSubmission(ctx context.Context, a *model.AnonymousSubmission, keep int) (int, error) {
	s.logger.Debug("sql", "op", "insert", "table", "anonymous_submissions", "id", a.ID, "exercise_id", a.ExerciseID)

	if keep < 1 {
		return 0, fmt.Errorf("anonymous retention must keep at least one row, got %d", keep)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO anonymous_submissions (id, exercise_id, solution, grade, feedback, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ExerciseID, a.Solution, a.Grade, nullString(a.Feedback), formatTime(a.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("insert anonymous submission: %w", err)
	}

	// The keep-th newest row is the oldest survivor.
	var cutoffAt string
	var cutoffRow int64
	err = tx.QueryRowContext(ctx,
		`SELECT created_at, rowid FROM anonymous_submissions WHERE exercise_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1 OFFSET ?`,
		a.ExerciseID, keep-1,
	).Scan(&cutoffAt, &cutoffRow)
	if err == sql.ErrNoRows {
		return 0, tx.Commit()
	}
	if err != nil {
		return 0, fmt.Errorf("find retention cutoff: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM anonymous_submissions WHERE exercise_id = ?
		 AND (created_at < ? OR (created_at = ? AND rowid < ?))`,
		a.ExerciseID, cutoffAt, cutoffAt, cutoffRow)
	if err != nil {
		return 0, fmt.Errorf("evict anonymous submissions: %w", err)
	}
	evicted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(evicted), nil
}

func (s *SQLiteStore) ListAnonymousSubmissions(ctx context.Context, exerciseID string) ([]*model.AnonymousSubmission, error) {
	s.logger.Debug("sql", "op", "list", "table", "anonymous_submissions", "exercise_id", exerciseID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exercise_id, solution, grade, feedback, created_at FROM anonymous_submissions
		 WHERE exercise_id = ? ORDER BY created_at DESC, rowid DESC`, exerciseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AnonymousSubmission
	for rows.Next() {
		var a model.AnonymousSubmission
		var feedback sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ExerciseID, &a.Solution, &a.Grade, &feedback, &createdAt); err != nil {
			return nil, err
		}
		a.Feedback = strPtr(feedback)
		a.CreatedAt = parseTime(createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}
