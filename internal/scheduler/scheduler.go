package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/me/autograde/pkg/model"
)

// ErrSchedulerStopped is the result of work still queued when the scheduler stops.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Scheduler runs grading work items with bounded concurrency, highest
// priority first and FIFO within a priority.
type Scheduler interface {
	// Start runs the dispatch loop. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop fails queued work and waits for in-flight work to finish.
	Stop() error

	// Submit enqueues item and returns without waiting.
	Submit(item WorkItem) *Ticket

	// SubmitAndAwait enqueues a work item and waits for its result. If ctx is
	// done first it returns ctx.Err(); the work item still runs.
	SubmitAndAwait(ctx context.Context, graderID, solution string, priority model.PriorityLevel) (*model.GradeResult, error)

	// Stats reports queue depth and in-flight work.
	Stats() Stats
}

// CompletionFunc is called once per work item after its concurrency slot is
// released. err is nil on success and a *model.GradingError or
// ErrSchedulerStopped otherwise.
type CompletionFunc func(ctx context.Context, res *model.GradeResult, err error)

// WorkItem is one grading request.
type WorkItem struct {
	SubmissionID string // Empty for anonymous work
	GraderID     string
	Solution     string
	Priority     model.PriorityLevel
	SubmittedAt  time.Time
	OnComplete   CompletionFunc
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Queued        map[string]int `json:"queued"`
	InFlight      int            `json:"in_flight"`
	MaxConcurrent int            `json:"max_concurrent"` // 0 means unlimited
	Stopped       bool           `json:"stopped"`
}

// Ticket resolves when its work item has finished, including OnComplete.
type Ticket struct {
	done chan struct{}
	res  *model.GradeResult
	err  error
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

func (t *Ticket) resolve(res *model.GradeResult, err error) {
	t.res, t.err = res, err
	close(t.done)
}

// Done is closed when the result is available.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome. Only valid after Done is closed.
func (t *Ticket) Result() (*model.GradeResult, error) {
	return t.res, t.err
}

// Wait blocks until the ticket resolves or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (*model.GradeResult, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
