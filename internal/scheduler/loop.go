package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/autograde/internal/grader"
	"github.com/me/autograde/pkg/model"
)

// ErrQueueWaitExceeded is wrapped in the grading error of work that waited
// longer than Config.MaxQueueWait for a slot.
var ErrQueueWaitExceeded = errors.New("queue wait exceeded")

// Config holds scheduler configuration.
type Config struct {
	MaxConcurrent  int           // <= 0 means unlimited
	BackendTimeout time.Duration // 0 disables the per-call timeout
	MaxQueueWait   time.Duration // 0 disables queue expiry
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  4,
		BackendTimeout: 2 * time.Minute,
	}
}

// Loop implements Scheduler. A slot is acquired before the next item is
// chosen, so the choice is made when capacity frees up.
type Loop struct {
	client  grader.Client
	config  Config
	sem     *Semaphore
	queue   *Queue
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	wake     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	running int
}

// NewLoop creates a new scheduler loop. metrics may be nil.
func NewLoop(client grader.Client, cfg Config, metrics *Metrics, logger *slog.Logger) *Loop {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Loop{
		client:  client,
		config:  cfg,
		sem:     NewSemaphore(cfg.MaxConcurrent),
		queue:   NewQueue(),
		metrics: metrics,
		logger:  logger.With("component", "scheduler"),
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Submit enqueues item. After Stop the returned ticket is already resolved
// with ErrSchedulerStopped.
func (l *Loop) Submit(item WorkItem) *Ticket {
	t := newTicket()
	now := l.now()
	if item.SubmittedAt.IsZero() {
		item.SubmittedAt = now
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.finish(context.Background(), &queued{item: item, ticket: t}, nil, ErrSchedulerStopped, outcomeStopped)
		return t
	}
	l.queue.Push(&queued{item: item, ticket: t, enqueuedAt: now})
	l.mu.Unlock()

	l.metrics.QueueSize.WithLabelValues(item.Priority.String()).Inc()
	l.logger.Debug("work enqueued",
		"submission_id", item.SubmissionID,
		"grader_id", item.GraderID,
		"priority", item.Priority.String(),
	)

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return t
}

// SubmitAndAwait implements Scheduler.
func (l *Loop) SubmitAndAwait(ctx context.Context, graderID, solution string, priority model.PriorityLevel) (*model.GradeResult, error) {
	t := l.Submit(WorkItem{GraderID: graderID, Solution: solution, Priority: priority})
	return t.Wait(ctx)
}

// Stats implements Scheduler.
func (l *Loop) Stats() Stats {
	counts := l.queue.Counts()
	queued := make(map[string]int, len(counts))
	for p, n := range counts {
		queued[p.String()] = n
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Queued:        queued,
		InFlight:      l.running,
		MaxConcurrent: l.sem.Capacity(),
		Stopped:       l.stopped,
	}
}

// Start runs the dispatch loop. Blocks until ctx is cancelled or Stop is called.
// Backend calls run under a context detached from ctx so that in-flight work
// finishes during shutdown.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	l.started = true
	l.mu.Unlock()

	l.logger.Info("scheduler started",
		"max_concurrent", l.config.MaxConcurrent,
		"backend_timeout", l.config.BackendTimeout,
		"max_queue_wait", l.config.MaxQueueWait,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()
	base := context.WithoutCancel(ctx)

	for {
		if !l.sem.Acquire(runCtx) {
			break
		}
		q := l.next(runCtx)
		if q == nil {
			l.sem.Release()
			break
		}
		l.dispatch(base, q)
	}

	l.shutdown(base)
	close(l.doneCh)

	if ctx.Err() != nil {
		l.logger.Info("scheduler stopped (context cancelled)")
		return ctx.Err()
	}
	l.logger.Info("scheduler stopped (stop called)")
	return nil
}

// Stop fails queued work and waits for in-flight work to finish.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		l.shutdown(context.Background())
		return nil
	}
	<-l.doneCh
	return nil
}

// next blocks until an item is queued or ctx is done.
func (l *Loop) next(ctx context.Context) *queued {
	for {
		if q := l.queue.Pop(); q != nil {
			return q
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Loop) dispatch(base context.Context, q *queued) {
	prio := q.item.Priority.String()
	l.metrics.QueueSize.WithLabelValues(prio).Dec()
	l.metrics.Dispatched.WithLabelValues(prio).Inc()

	l.mu.Lock()
	l.running++
	l.mu.Unlock()
	l.metrics.InFlight.Inc()

	l.inflight.Add(1)
	go l.run(base, q)
}

func (l *Loop) run(base context.Context, q *queued) {
	defer l.inflight.Done()

	item := q.item
	start := l.now()
	waited := start.Sub(q.enqueuedAt)
	l.metrics.QueueWaitSeconds.Observe(waited.Seconds())

	var res *model.GradeResult
	var err error
	outcome := outcomeSuccess

	if l.config.MaxQueueWait > 0 && waited > l.config.MaxQueueWait {
		err = &model.GradingError{GraderID: item.GraderID, Err: ErrQueueWaitExceeded}
		outcome = outcomeExpired
	} else {
		ctx, cancel := base, context.CancelFunc(func() {})
		if l.config.BackendTimeout > 0 {
			ctx, cancel = context.WithTimeout(base, l.config.BackendTimeout)
		}
		res, err = l.client.Grade(ctx, item.GraderID, item.Solution)
		cancel()
		if err == nil && res == nil {
			err = errors.New("backend returned no result")
		}
		l.metrics.GradingDuration.Observe(l.now().Sub(start).Seconds())
		if err != nil {
			err = &model.GradingError{GraderID: item.GraderID, Err: err}
			res = nil
			outcome = outcomeFailure
		}
	}

	l.mu.Lock()
	l.running--
	l.mu.Unlock()
	l.metrics.InFlight.Dec()
	l.sem.Release()

	if err != nil {
		l.logger.Warn("grading failed",
			"submission_id", item.SubmissionID,
			"grader_id", item.GraderID,
			"waited", waited,
			"error", err,
		)
	} else {
		l.logger.Debug("grading done",
			"submission_id", item.SubmissionID,
			"grader_id", item.GraderID,
			"grade", res.Grade,
			"duration", l.now().Sub(start),
		)
	}

	l.finish(base, q, res, err, outcome)
}

// finish runs the completion hook and then resolves the ticket.
func (l *Loop) finish(ctx context.Context, q *queued, res *model.GradeResult, err error, outcome string) {
	l.metrics.Results.WithLabelValues(outcome).Inc()
	if q.item.OnComplete != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("completion hook panicked",
						"submission_id", q.item.SubmissionID, "panic", r)
				}
			}()
			q.item.OnComplete(ctx, res, err)
		}()
	}
	q.ticket.resolve(res, err)
}

// shutdown rejects new work, fails queued work and waits for in-flight work.
func (l *Loop) shutdown(ctx context.Context) {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	pending := l.queue.Drain()
	if len(pending) > 0 {
		l.logger.Info("failing queued work", "count", len(pending))
	}
	for _, q := range pending {
		l.metrics.QueueSize.WithLabelValues(q.item.Priority.String()).Dec()
		l.finish(ctx, q, nil, ErrSchedulerStopped, outcomeStopped)
	}
	l.inflight.Wait()
}
