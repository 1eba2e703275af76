package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher runs fire-and-forget calls in tracked goroutines. Failures are
// logged and never reach the caller.
type Dispatcher struct {
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher giving each call timeout to finish.
func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		timeout: timeout,
		logger:  logger.With("component", "notify"),
	}
}

// Go runs fn in the background under a fresh context.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification panicked", "name", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.logger.Warn("notification failed", "name", name, "error", err)
		}
	}()
}

// Wait blocks until every started call has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
