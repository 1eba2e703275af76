package grading

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/me/autograde/internal/scheduler"
	"github.com/me/autograde/pkg/model"
)

// SubmitAnonymous grades a solution for an unauthenticated caller at
// ANONYMOUS priority and waits for the result. Graded solutions are stored
// with bounded retention per exercise.
func (s *Service) SubmitAnonymous(ctx context.Context, exerciseID, solution string) (*model.GradeResult, error) {
	ex, err := s.getExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if !ex.IsAutoGraded() {
		return nil, model.ErrNotAutoGradable
	}
	if !ex.AnonymousAutoassessEnabled {
		return nil, ErrAnonymousDisabled
	}

	// The result is stored by the completion hook, so it is kept even when
	// the caller stops waiting.
	var stored error
	ticket := s.sched.Submit(scheduler.WorkItem{
		GraderID:    ex.AutoExerciseID,
		Solution:    solution,
		Priority:    model.PriorityAnonymous,
		SubmittedAt: s.now().UTC(),
		OnComplete: func(ctx context.Context, res *model.GradeResult, err error) {
			if err == nil {
				stored = s.storeAnonymous(ctx, exerciseID, solution, res)
			}
		},
	})

	res, err := ticket.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return nil, stored
	}
	return res, nil
}

func (s *Service) storeAnonymous(ctx context.Context, exerciseID, solution string, res *model.GradeResult) error {
	anon := &model.AnonymousSubmission{
		ID:         "anon_" + uuid.New().String(),
		ExerciseID: exerciseID,
		Solution:   solution,
		Grade:      res.Grade,
		Feedback:   res.Feedback,
		CreatedAt:  s.now().UTC(),
	}
	evicted, err := s.store.CreateAnonymousSubmission(ctx, anon, s.config.AnonymousKeep)
	if err != nil {
		s.logger.Error("store anonymous submission", "exercise_id", exerciseID, "error", err)
		return fmt.Errorf("store anonymous submission: %w", err)
	}
	s.logger.Debug("anonymous submission graded",
		"exercise_id", exerciseID, "grade", res.Grade, "evicted", evicted)
	return nil
}

// ListAnonymous returns the retained anonymous submissions, newest first.
func (s *Service) ListAnonymous(ctx context.Context, exerciseID string) ([]*model.AnonymousSubmission, error) {
	if _, err := s.getExercise(ctx, exerciseID); err != nil {
		return nil, err
	}
	return s.store.ListAnonymousSubmissions(ctx, exerciseID)
}
