package grading

import (
	"context"
	"fmt"

	"github.com/me/autograde/internal/store"
	"github.com/me/autograde/pkg/model"
)

// PostGrade records a teacher grade. It overrides any automatic grade and is
// allowed whatever the grading status.
func (s *Service) PostGrade(ctx context.Context, submissionID, teacherID string, grade int) (*model.TeacherActivity, error) {
	if grade < 0 || grade > 100 {
		return nil, model.NewValidationError("invalid grade",
			model.FieldError{Field: "grade", Message: "must be between 0 and 100"})
	}
	sub, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	act, err := s.store.MergeTeacherGrade(ctx, submissionID, teacherID, grade, s.now().UTC(), s.config.MergeWindow)
	if err != nil {
		return nil, fmt.Errorf("record grade: %w", err)
	}
	s.invalidate(ctx, sub.ExerciseID, sub.StudentID)
	s.syncGrade(sub.ExerciseID, sub.StudentID)

	s.logger.Info("teacher grade recorded",
		"submission_id", submissionID, "teacher_id", teacherID, "activity_id", act.ID, "grade", grade)
	return act, nil
}

// PostFeedback records teacher feedback.
func (s *Service) PostFeedback(ctx context.Context, submissionID, teacherID, feedback string) (*model.TeacherActivity, error) {
	if feedback == "" {
		return nil, model.NewValidationError("invalid feedback",
			model.FieldError{Field: "feedback", Message: "must not be empty"})
	}
	sub, err := s.getSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	act, err := s.store.MergeTeacherFeedback(ctx, submissionID, teacherID, feedback, s.now().UTC(), s.config.MergeWindow)
	if err != nil {
		return nil, fmt.Errorf("record feedback: %w", err)
	}
	s.invalidate(ctx, sub.ExerciseID, sub.StudentID)

	s.logger.Info("teacher feedback recorded",
		"submission_id", submissionID, "teacher_id", teacherID, "activity_id", act.ID)
	return act, nil
}

// EditFeedback replaces the feedback of an activity. An empty feedback
// clears it; activities left with neither grade nor feedback are deleted, in
// which case the returned activity is nil.
func (s *Service) EditFeedback(ctx context.Context, activityID, teacherID, feedback string) (*model.TeacherActivity, error) {
	current, err := s.store.GetTeacherActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", activityID, err)
	}
	if current == nil {
		return nil, fmt.Errorf("activity %s: %w", activityID, store.ErrNotFound)
	}

	var fb *string
	if feedback != "" {
		fb = &feedback
	}
	act, err := s.store.EditTeacherFeedback(ctx, activityID, fb, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("edit feedback: %w", err)
	}

	if sub, err := s.store.GetSubmission(ctx, current.SubmissionID); err == nil && sub != nil {
		s.invalidate(ctx, sub.ExerciseID, sub.StudentID)
	}
	s.logger.Info("teacher feedback edited",
		"activity_id", activityID, "teacher_id", teacherID, "deleted", act == nil)
	return act, nil
}

// ListActivities returns a submission's teacher activity, oldest first.
func (s *Service) ListActivities(ctx context.Context, submissionID string) ([]*model.TeacherActivity, error) {
	if _, err := s.getSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	return s.store.ListTeacherActivities(ctx, submissionID)
}
