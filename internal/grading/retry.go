package grading

import (
	"context"
	"errors"
	"fmt"

	"github.com/me/autograde/internal/observer"
	"github.com/me/autograde/internal/scheduler"
	"github.com/me/autograde/pkg/model"
)

// Retry starts a teacher-requested regrade and returns without waiting.
// It fails with model.ErrNotAutoGradable for teacher-graded exercises and
// with model.ErrRetryInFlight while another attempt is running.
func (s *Service) Retry(ctx context.Context, submissionID, teacherID string) (*model.Submission, *observer.Handle, error) {
	sub, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	ex, err := s.getExercise(ctx, sub.ExerciseID)
	if err != nil {
		return nil, nil, err
	}
	if !ex.IsAutoGraded() {
		return nil, nil, model.ErrNotAutoGradable
	}

	h, err := s.obs.Put(submissionID, model.CallerTeacher)
	if errors.Is(err, model.ErrAlreadyObserved) {
		return nil, nil, model.ErrRetryInFlight
	}
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.store.StartRegrade(ctx, submissionID, s.now().UTC())
	if err != nil {
		// No attempt ran; release waiters and keep nothing.
		s.obs.Resolve(h, err)
		s.obs.Remove(submissionID)
		return nil, nil, err
	}
	s.invalidate(ctx, updated.ExerciseID, updated.StudentID)

	s.sched.Submit(scheduler.WorkItem{
		SubmissionID: submissionID,
		GraderID:     ex.AutoExerciseID,
		Solution:     updated.Solution,
		Priority:     model.PriorityAuthenticated,
		SubmittedAt:  s.now().UTC(),
		OnComplete:   s.reconciler(attempt{sub: *updated, handle: h, retry: true}),
	})

	s.logger.Info("regrade queued",
		"submission_id", submissionID,
		"exercise_id", updated.ExerciseID,
		"teacher_id", teacherID,
	)
	return updated, h, nil
}

// RetrySync starts a regrade and waits for it to settle. A failed grading
// attempt is not an error here; the returned submission is FAILED.
func (s *Service) RetrySync(ctx context.Context, submissionID, teacherID string) (*model.Submission, error) {
	_, h, err := s.Retry(ctx, submissionID, teacherID)
	if err != nil {
		return nil, err
	}
	if err := h.Wait(ctx); err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	sub, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("reload after regrade: %w", err)
	}
	return sub, nil
}
