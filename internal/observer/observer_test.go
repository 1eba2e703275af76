package observer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/autograde/pkg/model"
)

func newTestObserver() *Observer {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPut_SingleLiveHandle(t *testing.T) {
	o := newTestObserver()

	h, err := o.Put("sub_1", model.CallerStudent)
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = o.Put("sub_1", model.CallerTeacher)
	require.ErrorIs(t, err, model.ErrAlreadyObserved)
	assert.ErrorIs(t, err, model.ErrInvariantViolation)

	// Other submissions are independent.
	_, err = o.Put("sub_2", model.CallerStudent)
	require.NoError(t, err)

	assert.Same(t, h, o.Get("sub_1"))
	assert.Equal(t, 2, o.Live())
}

func TestResolve_ReleasesAllWaiters(t *testing.T) {
	o := newTestObserver()
	h, err := o.Put("sub_1", model.CallerStudent)
	require.NoError(t, err)

	const waiters = 10
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Wait(context.Background())
		}()
	}

	gradingErr := errors.New("executor down")
	o.Resolve(h, gradingErr)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, gradingErr)
	}
	assert.True(t, h.Resolved())
}

func TestResolve_StudentHandleRemoved(t *testing.T) {
	o := newTestObserver()
	h, _ := o.Put("sub_1", model.CallerStudent)
	o.Resolve(h, nil)

	assert.Nil(t, o.Get("sub_1"))
	assert.Empty(t, o.Snapshot())

	// A new attempt can be registered right away.
	_, err := o.Put("sub_1", model.CallerTeacher)
	require.NoError(t, err)
}

func TestResolve_TeacherHandleRetainedUntilSweep(t *testing.T) {
	o := newTestObserver()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	h, _ := o.Put("sub_1", model.CallerTeacher)
	o.Resolve(h, errors.New("boom"))

	assert.Nil(t, o.Get("sub_1"), "resolved handles are not live")
	snap := o.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Resolved)
	assert.Equal(t, "boom", snap[0].Error)

	// A retained handle does not block a new attempt.
	h2, err := o.Put("sub_1", model.CallerTeacher)
	require.NoError(t, err)
	o.Resolve(h2, nil)

	assert.Equal(t, 0, o.Sweep(time.Minute))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, o.Sweep(time.Minute))
	assert.Empty(t, o.Snapshot())
}

func TestResolve_Idempotent(t *testing.T) {
	o := newTestObserver()
	h, _ := o.Put("sub_1", model.CallerStudent)
	o.Resolve(h, nil)
	o.Resolve(h, errors.New("late"))
	assert.NoError(t, h.Wait(context.Background()))
	o.Resolve(nil, nil)
}

func TestResolve_StaleHandleDoesNotEvictNewer(t *testing.T) {
	o := newTestObserver()
	old, _ := o.Put("sub_1", model.CallerStudent)
	o.Remove("sub_1")
	newer, _ := o.Put("sub_1", model.CallerStudent)

	o.Resolve(old, nil)
	assert.Same(t, newer, o.Get("sub_1"))
}

func TestWait_ContextCancel(t *testing.T) {
	o := newTestObserver()
	h, _ := o.Put("sub_1", model.CallerStudent)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
	assert.False(t, h.Resolved())
	assert.Same(t, h, o.Get("sub_1"))
}

func TestPut_ConcurrentOnlyOneWins(t *testing.T) {
	o := newTestObserver()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Put("sub_1", model.CallerTeacher); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
