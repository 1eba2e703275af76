// Package observer tracks in-flight grading attempts so callers can wait for
// a submission to leave IN_PROGRESS.
package observer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/me/autograde/pkg/model"
)

// Handle represents one in-flight grading attempt.
type Handle struct {
	SubmissionID string
	CallerType   model.CallerType
	CreatedAt    time.Time

	done       chan struct{}
	err        error
	resolvedAt time.Time
}

// Done is closed when the attempt resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the attempt resolves or ctx is done. It returns the
// attempt's error, or ctx.Err().
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolved reports whether the attempt has finished.
func (h *Handle) Resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// HandleInfo is a diagnostic view of a handle.
type HandleInfo struct {
	SubmissionID string           `json:"submission_id"`
	CallerType   model.CallerType `json:"caller_type"`
	CreatedAt    time.Time        `json:"created_at"`
	Resolved     bool             `json:"resolved"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Observer holds at most one live handle per submission.
type Observer struct {
	mu      sync.Mutex
	handles map[string]*Handle
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an empty Observer.
func New(logger *slog.Logger) *Observer {
	return &Observer{
		handles: make(map[string]*Handle),
		now:     time.Now,
		logger:  logger.With("component", "observer"),
	}
}

// Put registers a handle for submissionID. It fails with
// model.ErrAlreadyObserved while another handle is live. A resolved TEACHER
// handle kept for diagnostics is replaced.
func (o *Observer) Put(submissionID string, caller model.CallerType) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if h, ok := o.handles[submissionID]; ok && !h.Resolved() {
		return nil, model.ErrAlreadyObserved
	}
	h := &Handle{
		SubmissionID: submissionID,
		CallerType:   caller,
		CreatedAt:    o.now(),
		done:         make(chan struct{}),
	}
	o.handles[submissionID] = h
	o.logger.Debug("handle registered", "submission_id", submissionID, "caller_type", caller)
	return h, nil
}

// Get returns the live handle for submissionID, or nil.
func (o *Observer) Get(submissionID string) *Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handles[submissionID]
	if !ok || h.Resolved() {
		return nil
	}
	return h
}

// Resolve finishes h and releases every waiter. STUDENT handles are dropped
// at once; TEACHER handles stay until Sweep. Resolving twice is a no-op.
func (o *Observer) Resolve(h *Handle, err error) {
	if h == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if h.Resolved() {
		return
	}
	h.err = err
	h.resolvedAt = o.now()
	close(h.done)

	if cur, ok := o.handles[h.SubmissionID]; ok && cur == h && h.CallerType != model.CallerTeacher {
		delete(o.handles, h.SubmissionID)
	}
	o.logger.Debug("handle resolved",
		"submission_id", h.SubmissionID,
		"caller_type", h.CallerType,
		"failed", err != nil,
	)
}

// Remove drops the handle for submissionID without resolving it.
func (o *Observer) Remove(submissionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.handles, submissionID)
}

// Sweep drops resolved handles that resolved more than maxAge ago and
// returns how many were dropped.
func (o *Observer) Sweep(maxAge time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := o.now().Add(-maxAge)
	n := 0
	for id, h := range o.handles {
		if h.Resolved() && h.resolvedAt.Before(cutoff) {
			delete(o.handles, id)
			n++
		}
	}
	if n > 0 {
		o.logger.Debug("swept resolved handles", "count", n)
	}
	return n
}

// Snapshot lists every tracked handle, oldest first.
func (o *Observer) Snapshot() []HandleInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]HandleInfo, 0, len(o.handles))
	for _, h := range o.handles {
		info := HandleInfo{
			SubmissionID: h.SubmissionID,
			CallerType:   h.CallerType,
			CreatedAt:    h.CreatedAt,
			Resolved:     h.Resolved(),
		}
		if info.Resolved {
			at := h.resolvedAt
			info.ResolvedAt = &at
			if h.err != nil {
				info.Error = h.err.Error()
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SubmissionID < out[j].SubmissionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Live returns the number of unresolved handles.
func (o *Observer) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, h := range o.handles {
		if !h.Resolved() {
			n++
		}
	}
	return n
}
