package grader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/me/autograde/pkg/model"
)

type entry struct {
	executor model.Executor
	backend  Backend
	load     int
}

// Registry maps executor ids to their backends and tracks how many grading
// calls each executor is serving.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*entry
	freed      chan struct{} // closed and replaced whenever capacity may have grown
	newBackend BackendFactory
	logger     *slog.Logger
}

// NewRegistry creates an empty Registry. Executors are added by Sync or on
// first use by Pick.
func NewRegistry(newBackend BackendFactory, logger *slog.Logger) *Registry {
	return &Registry{
		entries:    make(map[string]*entry),
		freed:      make(chan struct{}),
		newBackend: newBackend,
		logger:     logger.With("component", "executor-registry"),
	}
}

// Sync replaces the registered executors with execs. Load counters of
// executors that stay registered are kept.
func (r *Registry) Sync(execs []*model.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(execs))
	for _, ex := range execs {
		seen[ex.ID] = true
		r.upsertLocked(ex)
	}
	for id, e := range r.entries {
		if !seen[id] && e.load == 0 {
			delete(r.entries, id)
			r.logger.Info("executor unregistered", "id", id)
		}
	}
	r.signalLocked()
}

func (r *Registry) signalLocked() {
	close(r.freed)
	r.freed = make(chan struct{})
}

func (r *Registry) upsertLocked(ex *model.Executor) *entry {
	e, ok := r.entries[ex.ID]
	if !ok || e.executor.BaseURL != ex.BaseURL {
		load := 0
		if ok {
			load = e.load
		}
		e = &entry{executor: *ex, backend: r.newBackend(ex), load: load}
		r.entries[ex.ID] = e
		r.logger.Info("executor registered", "id", ex.ID, "name", ex.Name, "base_url", ex.BaseURL)
		return e
	}
	e.executor.Name = ex.Name
	e.executor.MaxLoad = ex.MaxLoad
	e.executor.Drain = ex.Drain
	return e
}

// Lease is a reserved slot on one executor. Release must be called once the
// grading call returns.
type Lease struct {
	Executor model.Executor
	Backend  Backend

	once    sync.Once
	release func()
}

// Release gives the slot back. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Pick reserves the non-drained executor in capable with the lowest
// load/max-load ratio. Ties go to the earlier entry of capable. An executor
// never serves more than MaxLoad calls at once; when every candidate is full
// Pick waits for a slot until ctx is done.
func (r *Registry) Pick(ctx context.Context, capable []*model.Executor) (*Lease, error) {
	for {
		r.mu.Lock()
		candidates := lo.FilterMap(capable, func(ex *model.Executor, _ int) (*entry, bool) {
			if ex.Drain {
				return nil, false
			}
			return r.upsertLocked(ex), true
		})
		if len(candidates) == 0 {
			r.mu.Unlock()
			return nil, ErrNoExecutor
		}

		free := lo.Filter(candidates, func(e *entry, _ int) bool {
			return e.load < capacity(e)
		})
		if len(free) > 0 {
			l := r.leaseLocked(lo.MinBy(free, func(a, b *entry) bool {
				return ratio(a) < ratio(b)
			}))
			r.mu.Unlock()
			return l, nil
		}

		freed := r.freed
		r.mu.Unlock()
		r.logger.Debug("all executors busy, waiting", "candidates", len(candidates))

		select {
		case <-freed:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: all executors at max load: %w", ErrNoExecutor, ctx.Err())
		}
	}
}

func (r *Registry) leaseLocked(best *entry) *Lease {
	best.load++
	id := best.executor.ID
	l := &Lease{Executor: best.executor, Backend: best.backend}
	l.Executor.Load = best.load
	l.release = func() { r.release(id) }
	return l
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.load > 0 {
		e.load--
	}
	r.signalLocked()
}

func capacity(e *entry) int {
	return max(e.executor.MaxLoad, 1)
}

func ratio(e *entry) float64 {
	ex := e.executor
	ex.Load = e.load
	return ex.LoadRatio()
}

// Load returns the number of grading calls in flight on executor id.
func (r *Registry) Load(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.load
	}
	return 0
}

// Remove drops executor id from the registry. In-flight leases still release
// cleanly.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}
