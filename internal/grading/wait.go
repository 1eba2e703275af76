package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/me/autograde/internal/cache"
	"github.com/me/autograde/pkg/model"
)

// ReadLatest returns the student's latest submission with its most recent
// automatic and teacher assessments, or nil when there is none. Settled
// views are cached until the next write invalidates them.
func (s *Service) ReadLatest(ctx context.Context, exerciseID, studentID string) (*model.LatestSubmission, error) {
	key := cache.LatestSubmissionKey(exerciseID, studentID)
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	} else if ok {
		var ls model.LatestSubmission
		if err := json.Unmarshal(raw, &ls); err == nil {
			return &ls, nil
		}
	}

	ls, err := s.readLatest(ctx, exerciseID, studentID)
	if err != nil || ls == nil {
		return ls, err
	}
	if ls.AutoGradeStatus != model.AutoGradeInProgress {
		if raw, err := json.Marshal(ls); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.config.CacheTTL); err != nil {
				s.logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
	}
	return ls, nil
}

func (s *Service) readLatest(ctx context.Context, exerciseID, studentID string) (*model.LatestSubmission, error) {
	sub, err := s.store.GetLatestSubmission(ctx, exerciseID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get latest submission: %w", err)
	}
	if sub == nil {
		return nil, nil
	}
	auto, err := s.store.GetLatestAutoAssessment(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("get auto assessment: %w", err)
	}
	teacher, err := s.store.GetLatestTeacherActivity(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("get teacher activity: %w", err)
	}
	return model.NewLatestSubmission(sub, auto, teacher), nil
}

// AwaitLatest is ReadLatest that first waits for an in-flight grading
// attempt of the latest submission to resolve. Only ctx bounds the wait.
func (s *Service) AwaitLatest(ctx context.Context, exerciseID, studentID string) (*model.LatestSubmission, error) {
	sub, err := s.store.GetLatestSubmission(ctx, exerciseID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get latest submission: %w", err)
	}
	if sub == nil {
		return nil, nil
	}
	if h := s.obs.Get(sub.ID); h != nil {
		s.logger.Debug("awaiting grading", "submission_id", sub.ID)
		if err := h.Wait(ctx); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return s.readLatest(ctx, exerciseID, studentID)
}

// PollLatestAutoGraded re-reads the latest submission on a growing sleep
// schedule until it is no longer IN_PROGRESS. It returns
// model.ErrServerTimeout once the schedule is exhausted.
func (s *Service) PollLatestAutoGraded(ctx context.Context, exerciseID, studentID string) (*model.LatestSubmission, error) {
	for step := 0; ; step++ {
		ls, err := s.readLatest(ctx, exerciseID, studentID)
		if err != nil {
			return nil, err
		}
		if ls == nil || ls.AutoGradeStatus != model.AutoGradeInProgress {
			return ls, nil
		}
		if step >= s.config.PollSteps {
			s.logger.Info("poll budget exhausted", "submission_id", ls.ID, "steps", step)
			return nil, model.ErrServerTimeout
		}
		if err := sleepCtx(ctx, s.config.PollStart+time.Duration(step)*s.config.PollStep); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
