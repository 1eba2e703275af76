package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/me/autograde/pkg/model"
)

const activityColumns = `id, submission_id, teacher_id, grade, feedback, merge_window_start, edited_at`

func scanActivity(sc scanner) (*model.TeacherActivity, error) {
	var a model.TeacherActivity
	var grade sql.NullInt64
	var feedback, editedAt sql.NullString
	var windowStart string
	if err := sc.Scan(&a.ID, &a.SubmissionID, &a.TeacherID, &grade, &feedback, &windowStart, &editedAt); err != nil {
		return nil, err
	}
	a.Grade = intPtr(grade)
	a.Feedback = strPtr(feedback)
	a.MergeWindowStart = parseTime(windowStart)
	a.EditedAt = parseTimePtr(editedAt)
	return &a, nil
}

func getActivity(ctx context.Context, q querier, id string) (*model.TeacherActivity, error) {
	a, err := scanActivity(q.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM teacher_activities WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// latestActivity returns the teacher's most recent episode on a submission.
func latestActivity(ctx context.Context, q querier, submissionID, teacherID string) (*model.TeacherActivity, error) {
	a, err := scanActivity(q.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM teacher_activities
		 WHERE submission_id = ? AND teacher_id = ?
		 ORDER BY merge_window_start DESC, rowid DESC LIMIT 1`,
		submissionID, teacherID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func withinWindow(start, now time.Time, window time.Duration) bool {
	return now.Sub(start) < window
}

// MergeTeacherGrade records a teacher grade. It extends the teacher's open
// episode when that started less than window ago, otherwise it starts a new
// one. The submission grade becomes the teacher grade in the same transaction.
func (s *SQLiteStore) MergeTeacherGrade(ctx context.Context, submissionID, teacherID string, grade int, now time.Time, window time.Duration) (*model.TeacherActivity, error) {
	s.logger.Debug("sql", "op", "merge_grade", "table", "teacher_activities",
		"submission_id", submissionID, "teacher_id", teacherID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET grade = ?, is_auto_grade = 0 WHERE id = ?`, grade, submissionID)
	if err != nil {
		return nil, fmt.Errorf("update submission grade: %w", err)
	}
	if err := expectAffected(res, "submission", submissionID); err != nil {
		return nil, err
	}

	latest, err := latestActivity(ctx, tx, submissionID, teacherID)
	if err != nil {
		return nil, err
	}

	var id string
	if latest != nil && withinWindow(latest.MergeWindowStart, now, window) {
		id = latest.ID
		_, err = tx.ExecContext(ctx,
			`UPDATE teacher_activities SET grade = ?, merge_window_start = ? WHERE id = ?`,
			grade, formatTime(now), id)
	} else {
		id = "act_" + uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teacher_activities (id, submission_id, teacher_id, grade, merge_window_start) VALUES (?, ?, ?, ?, ?)`,
			id, submissionID, teacherID, grade, formatTime(now))
	}
	if err != nil {
		return nil, fmt.Errorf("write activity: %w", err)
	}

	a, err := getActivity(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

// MergeTeacherFeedback records teacher feedback. An open episode is only
// extended while it has no feedback yet; feedback already written closes it.
func (s *SQLiteStore) MergeTeacherFeedback(ctx context.Context, submissionID, teacherID, feedback string, now time.Time, window time.Duration) (*model.TeacherActivity, error) {
	s.logger.Debug("sql", "op", "merge_feedback", "table", "teacher_activities",
		"submission_id", submissionID, "teacher_id", teacherID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sub, err := getSubmission(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}

	latest, err := latestActivity(ctx, tx, submissionID, teacherID)
	if err != nil {
		return nil, err
	}

	var id string
	if latest != nil && latest.Feedback == nil && withinWindow(latest.MergeWindowStart, now, window) {
		id = latest.ID
		_, err = tx.ExecContext(ctx,
			`UPDATE teacher_activities SET feedback = ?, merge_window_start = ? WHERE id = ?`,
			feedback, formatTime(now), id)
	} else {
		id = "act_" + uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teacher_activities (id, submission_id, teacher_id, feedback, merge_window_start) VALUES (?, ?, ?, ?, ?)`,
			id, submissionID, teacherID, feedback, formatTime(now))
	}
	if err != nil {
		return nil, fmt.Errorf("write activity: %w", err)
	}

	a, err := getActivity(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

// EditTeacherFeedback replaces the feedback of an existing episode (nil
// clears it) and then removes episodes of the same submission that carry
// neither grade nor feedback. It returns nil when the edited row was removed.
func (s *SQLiteStore) EditTeacherFeedback(ctx context.Context, activityID string, feedback *string, now time.Time) (*model.TeacherActivity, error) {
	s.logger.Debug("sql", "op", "edit_feedback", "table", "teacher_activities", "id", activityID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := getActivity(ctx, tx, activityID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("activity %s: %w", activityID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE teacher_activities SET feedback = ?, edited_at = ? WHERE id = ?`,
		nullString(feedback), formatTime(now), activityID); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM teacher_activities WHERE submission_id = ? AND grade IS NULL AND feedback IS NULL`,
		current.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("delete empty activities: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("sql", "op", "delete_empty", "table", "teacher_activities",
			"submission_id", current.SubmissionID, "rows", n)
	}

	a, err := getActivity(ctx, tx, activityID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) GetTeacherActivity(ctx context.Context, id string) (*model.TeacherActivity, error) {
	s.logger.Debug("sql", "op", "select", "table", "teacher_activities", "id", id)
	return getActivity(ctx, s.db, id)
}

func (s *SQLiteStore) GetLatestTeacherActivity(ctx context.Context, submissionID string) (*model.TeacherActivity, error) {
	s.logger.Debug("sql", "op", "select_latest", "table", "teacher_activities", "submission_id", submissionID)

	a, err := scanActivity(s.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM teacher_activities
		 WHERE submission_id = ? ORDER BY merge_window_start DESC, rowid DESC LIMIT 1`, submissionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) ListTeacherActivities(ctx context.Context, submissionID string) ([]*model.TeacherActivity, error) {
	s.logger.Debug("sql", "op", "list", "table", "teacher_activities", "submission_id", submissionID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM teacher_activities
		 WHERE submission_id = ? ORDER BY merge_window_start, rowid`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.TeacherActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
