package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/me/autograde/pkg/model"
)

const submissionColumns = `id, exercise_id, student_id, solution, number, autograde_status,
	grade, is_auto_grade, auto_feedback, created_at, grading_started_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(sc scanner) (*model.Submission, error) {
	var sub model.Submission
	var status, createdAt string
	var grade sql.NullInt64
	var feedback, startedAt sql.NullString
	if err := sc.Scan(&sub.ID, &sub.ExerciseID, &sub.StudentID, &sub.Solution, &sub.Number, &status,
		&grade, &sub.IsAutoGrade, &feedback, &createdAt, &startedAt); err != nil {
		return nil, err
	}
	sub.AutoGradeStatus = model.AutoGradeStatus(status)
	sub.Grade = intPtr(grade)
	sub.AutoFeedback = strPtr(feedback)
	sub.CreatedAt = parseTime(createdAt)
	sub.GradingStartedAt = parseTimePtr(startedAt)
	return &sub, nil
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	s.logger.Debug("sql", "op", "insert", "table", "submissions", "id", sub.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var number int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM submissions WHERE exercise_id = ? AND student_id = ?`,
		sub.ExerciseID, sub.StudentID,
	).Scan(&number); err != nil {
		return fmt.Errorf("next number: %w", err)
	}

	// An IN_PROGRESS submission starts grading when it is created.
	var startedAt *time.Time
	if sub.AutoGradeStatus == model.AutoGradeInProgress {
		t := sub.CreatedAt
		startedAt = &t
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ExerciseID, sub.StudentID, sub.Solution, number, string(sub.AutoGradeStatus),
		nullInt(sub.Grade), sub.IsAutoGrade, nullString(sub.AutoFeedback), formatTime(sub.CreatedAt),
		nullTime(startedAt),
	)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	sub.Number = number
	sub.GradingStartedAt = startedAt
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	s.logger.Debug("sql", "op", "select", "table", "submissions", "id", id)
	return getSubmission(ctx, s.db, id)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSubmission(ctx context.Context, q querier, id string) (*model.Submission, error) {
	sub, err := scanSubmission(q.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStore) GetLatestSubmission(ctx context.Context, exerciseID, studentID string) (*model.Submission, error) {
	s.logger.Debug("sql", "op", "select_latest", "table", "submissions", "exercise_id", exerciseID, "student_id", studentID)

	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exercise_id = ? AND student_id = ? ORDER BY number DESC LIMIT 1`,
		exerciseID, studentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, exerciseID, studentID string, opts model.ListOptions) ([]*model.Submission, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "submissions", "exercise_id", exerciseID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := `WHERE exercise_id = ?`
	args := []any{exerciseID}
	if studentID != "" {
		where += ` AND student_id = ?`
		args = append(args, studentID)
	}
	if opts.Status != "" {
		where += ` AND autograde_status = ?`
		args = append(args, string(opts.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	return subs, total, rows.Err()
}

// ListInProgressBefore lists IN_PROGRESS submissions whose current grading
// attempt started at or before before.
func (s *SQLiteStore) ListInProgressBefore(ctx context.Context, before time.Time) ([]*model.Submission, error) {
	s.logger.Debug("sql", "op", "list_in_progress", "table", "submissions", "before", before)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE autograde_status = 'IN_PROGRESS' AND COALESCE(grading_started_at, created_at) <= ?
		 ORDER BY COALESCE(grading_started_at, created_at)`,
		formatTime(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// StartRegrade moves a settled submission back to IN_PROGRESS. A submission
// already IN_PROGRESS yields model.ErrRetryInFlight, so concurrent retries
// cannot both pass. at is recorded as the start of the new attempt.
func (s *SQLiteStore) StartRegrade(ctx context.Context, id string, at time.Time) (*model.Submission, error) {
	s.logger.Debug("sql", "op", "start_regrade", "table", "submissions", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sub, err := getSubmission(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if !model.RetryableFrom(sub.AutoGradeStatus) {
		return nil, model.ErrRetryInFlight
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE submissions SET autograde_status = 'IN_PROGRESS', grading_started_at = ?
		 WHERE id = ? AND autograde_status != 'IN_PROGRESS'`,
		formatTime(at), id); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	sub.AutoGradeStatus = model.AutoGradeInProgress
	started := at.UTC()
	sub.GradingStartedAt = &started
	return sub, nil
}

// CompleteGrading records an automatic assessment and moves the submission to
// COMPLETED. The submission grade follows the automatic result unless a
// teacher has graded it.
func (s *SQLiteStore) CompleteGrading(ctx context.Context, id string, res *model.GradeResult, at time.Time) (*model.Submission, error) {
	s.logger.Debug("sql", "op", "complete_grading", "table", "submissions", "id", id, "grade", res.Grade)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sub, err := getSubmission(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if !sub.AutoGradeStatus.CanTransitionTo(model.AutoGradeCompleted) {
		return nil, &model.InvalidTransitionError{
			Entity: "Submission", ID: id,
			From: sub.AutoGradeStatus.String(), To: model.AutoGradeCompleted.String(),
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO automatic_assessments (id, submission_id, grade, feedback, created_at) VALUES (?, ?, ?, ?, ?)`,
		"aa_"+uuid.New().String(), id, res.Grade, nullString(res.Feedback), formatTime(at),
	); err != nil {
		return nil, fmt.Errorf("insert assessment: %w", err)
	}

	teacherGraded, err := hasTeacherGrade(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if teacherGraded {
		_, err = tx.ExecContext(ctx,
			`UPDATE submissions SET autograde_status = 'COMPLETED', auto_feedback = ? WHERE id = ?`,
			nullString(res.Feedback), id)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE submissions SET autograde_status = 'COMPLETED', grade = ?, is_auto_grade = 1, auto_feedback = ? WHERE id = ?`,
			res.Grade, nullString(res.Feedback), id)
	}
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}

	updated, err := getSubmission(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// FailStaleGrading fails a submission whose grading attempt started at or
// before startedBefore. It returns (nil, nil) when the submission has since
// settled or a newer attempt has started.
func (s *SQLiteStore) FailStaleGrading(ctx context.Context, id string, startedBefore time.Time) (*model.Submission, error) {
	s.logger.Debug("sql", "op", "fail_stale_grading", "table", "submissions", "id", id, "started_before", startedBefore)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET autograde_status = 'FAILED',
		   grade = CASE WHEN is_auto_grade = 1 THEN NULL ELSE grade END,
		   auto_feedback = NULL
		 WHERE id = ? AND autograde_status = 'IN_PROGRESS'
		   AND COALESCE(grading_started_at, created_at) <= ?`,
		id, formatTime(startedBefore))
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, nil
	}

	updated, err := getSubmission(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// FailGrading moves the submission to FAILED and drops an automatic grade.
func (s *SQLiteStore) FailGrading(ctx context.Context, id string) (*model.Submission, error) {
	s.logger.Debug("sql", "op", "fail_grading", "table", "submissions", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sub, err := getSubmission(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if !sub.AutoGradeStatus.CanTransitionTo(model.AutoGradeFailed) {
		return nil, &model.InvalidTransitionError{
			Entity: "Submission", ID: id,
			From: sub.AutoGradeStatus.String(), To: model.AutoGradeFailed.String(),
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE submissions SET autograde_status = 'FAILED',
		   grade = CASE WHEN is_auto_grade = 1 THEN NULL ELSE grade END,
		   auto_feedback = NULL
		 WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}

	updated, err := getSubmission(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func hasTeacherGrade(ctx context.Context, q querier, submissionID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM teacher_activities WHERE submission_id = ? AND grade IS NOT NULL)`,
		submissionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check teacher grade: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) GetLatestAutoAssessment(ctx context.Context, submissionID string) (*model.AutomaticAssessment, error) {
	s.logger.Debug("sql", "op", "select_latest", "table", "automatic_assessments", "submission_id", submissionID)

	var aa model.AutomaticAssessment
	var feedback sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, submission_id, grade, feedback, created_at FROM automatic_assessments
		 WHERE submission_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, submissionID,
	).Scan(&aa.ID, &aa.SubmissionID, &aa.Grade, &feedback, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	aa.Feedback = strPtr(feedback)
	aa.CreatedAt = parseTime(createdAt)
	return &aa, nil
}
