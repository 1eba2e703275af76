package grading

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/me/autograde/internal/notify"
	"github.com/me/autograde/internal/observer"
	"github.com/me/autograde/internal/scheduler"
	"github.com/me/autograde/internal/store"
	"github.com/me/autograde/pkg/model"
)

func (s *Service) getExercise(ctx context.Context, id string) (*model.Exercise, error) {
	ex, err := s.store.GetExercise(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get exercise %s: %w", id, err)
	}
	if ex == nil {
		return nil, fmt.Errorf("exercise %s: %w", id, store.ErrNotFound)
	}
	return ex, nil
}

func (s *Service) getSubmission(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get submission %s: %w", id, err)
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", id, store.ErrNotFound)
	}
	return sub, nil
}

// Submit records a student's solution. For automatically graded exercises
// the submission starts IN_PROGRESS and grading is queued; Submit returns as
// soon as the row is stored.
func (s *Service) Submit(ctx context.Context, exerciseID, studentID, solution string) (*model.Submission, error) {
	ex, err := s.getExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:              "sub_" + uuid.New().String(),
		ExerciseID:      exerciseID,
		StudentID:       studentID,
		Solution:        solution,
		AutoGradeStatus: model.AutoGradeNone,
		CreatedAt:       s.now().UTC(),
	}

	if !ex.IsAutoGraded() {
		if err := s.store.CreateSubmission(ctx, sub); err != nil {
			return nil, fmt.Errorf("create submission: %w", err)
		}
		s.invalidate(ctx, exerciseID, studentID)
		s.logger.Info("submission stored", "submission_id", sub.ID, "exercise_id", exerciseID, "grader", ex.GraderType)
		return sub, nil
	}

	// The handle exists before the IN_PROGRESS row so that readers never see
	// an in-flight submission they cannot wait on.
	sub.AutoGradeStatus = model.AutoGradeInProgress
	h, err := s.obs.Put(sub.ID, model.CallerStudent)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		s.obs.Resolve(h, err)
		return nil, fmt.Errorf("create submission: %w", err)
	}
	s.invalidate(ctx, exerciseID, studentID)

	a := attempt{sub: *sub, handle: h}
	s.sched.Submit(scheduler.WorkItem{
		SubmissionID: sub.ID,
		GraderID:     ex.AutoExerciseID,
		Solution:     solution,
		Priority:     model.PriorityAuthenticated,
		SubmittedAt:  sub.CreatedAt,
		OnComplete:   s.reconciler(a),
	})

	s.logger.Info("submission queued for grading",
		"submission_id", sub.ID,
		"exercise_id", exerciseID,
		"student_id", studentID,
		"number", sub.Number,
	)
	return sub, nil
}

// attempt is one grading attempt of a stored submission.
type attempt struct {
	sub    model.Submission
	handle *observer.Handle
	retry  bool
}

func (s *Service) reconciler(a attempt) scheduler.CompletionFunc {
	return func(ctx context.Context, res *model.GradeResult, gradeErr error) {
		s.reconcile(ctx, a, res, gradeErr)
	}
}

// reconcile records the outcome of an attempt. The submission always leaves
// IN_PROGRESS unless the store stays unavailable for the whole reconcile
// budget; the recovery sweep handles that case.
func (s *Service) reconcile(ctx context.Context, a attempt, res *model.GradeResult, gradeErr error) {
	log := s.logger.With("submission_id", a.sub.ID, "retry", a.retry)

	updated, err := s.persistOutcome(ctx, a.sub.ID, res, gradeErr)
	switch {
	case err != nil:
		log.Error("recording grading outcome failed", "grading_error", gradeErr, "error", err)
	case gradeErr != nil:
		log.Warn("grading failed", "error", gradeErr)
	default:
		log.Info("grading completed", "grade", res.Grade, "submission_grade", updated.Grade)
	}

	s.invalidate(ctx, a.sub.ExerciseID, a.sub.StudentID)

	if a.retry && gradeErr != nil {
		failure := notify.RetryFailure{
			ExerciseID:   a.sub.ExerciseID,
			SubmissionID: a.sub.ID,
			StudentID:    a.sub.StudentID,
			Solution:     a.sub.Solution,
			Err:          gradeErr,
		}
		s.notifier.Go("operator", func(ctx context.Context) error {
			return s.operator.NotifyRetryFailure(ctx, failure)
		})
	}
	s.syncGrade(a.sub.ExerciseID, a.sub.StudentID)

	// Waiters wake last so they observe the settled row and cache.
	s.obs.Resolve(a.handle, gradeErr)
}

// persistOutcome writes COMPLETED or FAILED, retrying transient store errors.
func (s *Service) persistOutcome(ctx context.Context, id string, res *model.GradeResult, gradeErr error) (*model.Submission, error) {
	return backoff.Retry(ctx,
		func() (*model.Submission, error) {
			var sub *model.Submission
			var err error
			if gradeErr == nil {
				sub, err = s.store.CompleteGrading(ctx, id, res, s.now().UTC())
			} else {
				sub, err = s.store.FailGrading(ctx, id)
			}
			if err == nil {
				return sub, nil
			}
			var te *model.InvalidTransitionError
			if errors.As(err, &te) || errors.Is(err, store.ErrNotFound) {
				return nil, backoff.Permanent(err)
			}
			s.logger.Warn("store write failed, retrying", "submission_id", id, "error", err)
			return nil, err
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.config.ReconcileBudget),
	)
}
