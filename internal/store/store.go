package store

import (
	"context"
	"errors"
	"time"

	"github.com/me/autograde/pkg/model"
)

// ErrNotFound is returned by writes that target a missing row.
// Reads return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// Store defines the persistence layer for autograde entities.
type Store interface {
	// Exercises
	CreateExercise(ctx context.Context, ex *model.Exercise) error
	GetExercise(ctx context.Context, id string) (*model.Exercise, error)
	UpdateExercise(ctx context.Context, ex *model.Exercise) error
	CreateAutoExercise(ctx context.Context, ae *model.AutoExercise) error
	GetAutoExercise(ctx context.Context, id string) (*model.AutoExercise, error)

	// Executors
	CreateExecutor(ctx context.Context, ex *model.Executor) error
	GetExecutor(ctx context.Context, id string) (*model.Executor, error)
	ListExecutors(ctx context.Context) ([]*model.Executor, error)
	SetExecutorDrain(ctx context.Context, id string, drain bool) error
	DeleteExecutor(ctx context.Context, id string) error
	LinkExecutor(ctx context.Context, autoExerciseID, executorID string) error
	ListExecutorsFor(ctx context.Context, autoExerciseID string) ([]*model.Executor, error)

	// Submissions. CreateSubmission assigns the per (exercise, student) number.
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	GetLatestSubmission(ctx context.Context, exerciseID, studentID string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, exerciseID, studentID string, opts model.ListOptions) ([]*model.Submission, int, error)
	ListInProgressBefore(ctx context.Context, before time.Time) ([]*model.Submission, error)

	// Grading state machine. Each call is one transaction.
	StartRegrade(ctx context.Context, id string, at time.Time) (*model.Submission, error)
	CompleteGrading(ctx context.Context, id string, res *model.GradeResult, at time.Time) (*model.Submission, error)
	FailGrading(ctx context.Context, id string) (*model.Submission, error)
	FailStaleGrading(ctx context.Context, id string, startedBefore time.Time) (*model.Submission, error)
	GetLatestAutoAssessment(ctx context.Context, submissionID string) (*model.AutomaticAssessment, error)

	// Teacher activity with merge window
	MergeTeacherGrade(ctx context.Context, submissionID, teacherID string, grade int, now time.Time, window time.Duration) (*model.TeacherActivity, error)
	MergeTeacherFeedback(ctx context.Context, submissionID, teacherID, feedback string, now time.Time, window time.Duration) (*model.TeacherActivity, error)
	EditTeacherFeedback(ctx context.Context, activityID string, feedback *string, now time.Time) (*model.TeacherActivity, error)
	GetTeacherActivity(ctx context.Context, id string) (*model.TeacherActivity, error)
	GetLatestTeacherActivity(ctx context.Context, submissionID string) (*model.TeacherActivity, error)
	ListTeacherActivities(ctx context.Context, submissionID string) ([]*model.TeacherActivity, error)

	// Anonymous submissions with bounded retention
	CreateAnonymousSubmission(ctx context.Context, a *model.AnonymousSubmission, keep int) (evicted int, err error)
	ListAnonymousSubmissions(ctx context.Context, exerciseID string) ([]*model.AnonymousSubmission, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
