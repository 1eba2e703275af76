// Package grading owns the submission grading lifecycle: ingress, the
// reconciler that records backend results, teacher retries and activity,
// anonymous grading and the two ways of waiting for a result.
package grading

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/me/autograde/internal/cache"
	"github.com/me/autograde/internal/logging"
	"github.com/me/autograde/internal/notify"
	"github.com/me/autograde/internal/observer"
	"github.com/me/autograde/internal/scheduler"
	"github.com/me/autograde/internal/store"
)

// ErrAnonymousDisabled is returned when anonymous grading is off for an exercise.
var ErrAnonymousDisabled = errors.New("anonymous autoassessment is disabled for this exercise")

// Config holds the grading timings and limits.
type Config struct {
	MergeWindow       time.Duration
	AnonymousKeep     int
	PollStart         time.Duration
	PollStep          time.Duration
	PollSteps         int
	RecoveryAge       time.Duration
	ObserverRetention time.Duration
	ReconcileBudget   time.Duration
	CacheTTL          time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MergeWindow:       10 * time.Second,
		AnonymousKeep:     50,
		PollStart:         500 * time.Millisecond,
		PollStep:          250 * time.Millisecond,
		PollSteps:         10,
		RecoveryAge:       30 * time.Minute,
		ObserverRetention: 10 * time.Minute,
		ReconcileBudget:   time.Minute,
		CacheTTL:          time.Minute,
	}
}

// Service implements the grading flows on top of the store, scheduler and
// observer.
type Service struct {
	store     store.Store
	sched     scheduler.Scheduler
	obs       *observer.Observer
	operator  notify.Operator
	gradeSync notify.GradeSync
	notifier  *notify.Dispatcher
	cache     cache.Cache
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithOperator sets where failed retries are reported.
func WithOperator(op notify.Operator) Option {
	return func(s *Service) { s.operator = op }
}

// WithGradeSync sets the downstream grade sync.
func WithGradeSync(gs notify.GradeSync) Option {
	return func(s *Service) { s.gradeSync = gs }
}

// WithNotifier sets the dispatcher used for fire-and-forget calls.
func WithNotifier(d *notify.Dispatcher) Option {
	return func(s *Service) { s.notifier = d }
}

// WithCache sets the read-model cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(st store.Store, sched scheduler.Scheduler, obs *observer.Observer, opts ...Option) *Service {
	s := &Service{
		store:     st,
		sched:     sched,
		obs:       obs,
		gradeSync: notify.NopGradeSync{},
		cache:     cache.NewMemoryCache(),
		config:    DefaultConfig(),
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "grading")
	if s.operator == nil {
		s.operator = notify.NewLogOperator(s.logger)
	}
	if s.notifier == nil {
		s.notifier = notify.NewDispatcher(10*time.Second, s.logger)
	}
	return s
}

// Notifier returns the dispatcher so shutdown can wait for pending calls.
func (s *Service) Notifier() *notify.Dispatcher {
	return s.notifier
}

func (s *Service) invalidate(ctx context.Context, exerciseID, studentID string) {
	if err := s.cache.Delete(ctx, cache.LatestSubmissionKey(exerciseID, studentID)); err != nil {
		s.logger.Warn("cache invalidation failed",
			"exercise_id", exerciseID, "student_id", studentID, "error", err)
	}
}

func (s *Service) syncGrade(exerciseID, studentID string) {
	s.notifier.Go("grade-sync", func(ctx context.Context) error {
		return s.gradeSync.SyncGrade(ctx, exerciseID, studentID)
	})
}
