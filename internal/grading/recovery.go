package grading

import (
	"context"
	"fmt"
	"time"
)

// RecoverStale fails IN_PROGRESS submissions whose grading attempt started
// more than olderThan ago and that no grading attempt is tracking. They are
// not regraded; a teacher has to retry them. At startup olderThan is 0.
func (s *Service) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	subs, err := s.store.ListInProgressBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list in-progress submissions: %w", err)
	}

	recovered := 0
	for _, sub := range subs {
		if s.obs.Get(sub.ID) != nil {
			continue
		}
		// A retry that started after the listing is newer than cutoff and
		// is left alone.
		failed, err := s.store.FailStaleGrading(ctx, sub.ID, cutoff)
		if err != nil {
			return recovered, fmt.Errorf("fail stale submission %s: %w", sub.ID, err)
		}
		if failed == nil {
			continue
		}
		recovered++
		s.invalidate(ctx, sub.ExerciseID, sub.StudentID)
		s.syncGrade(sub.ExerciseID, sub.StudentID)
		s.logger.Warn("stale submission marked failed",
			"submission_id", sub.ID, "started_at", sub.GradingStartedAt, "created_at", sub.CreatedAt)
	}
	return recovered, nil
}

// RunSweeper recovers stale submissions and drops old observer handles every
// interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	s.logger.Info("sweeper started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := s.RecoverStale(ctx, s.config.RecoveryAge)
			if err != nil {
				s.logger.Error("recover stale submissions", "error", err)
			}
			swept := s.obs.Sweep(s.config.ObserverRetention)
			if n > 0 || swept > 0 {
				s.logger.Info("sweep", "recovered", n, "handles_swept", swept)
			}
		}
	}
}
