package grader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/autograde/pkg/model"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAutoExercise() *model.AutoExercise {
	return &model.AutoExercise{
		ID:             "aex_1",
		GradingScript:  "#!/bin/sh\necho 42",
		ContainerImage: "autograde/python",
		MaxTimeSec:     10,
		MaxMemMB:       64,
		Assets:         []model.Asset{{FileName: "t.py", FileContent: "pass"}},
	}
}

func TestHTTPBackend_Grade(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/grade" {
			t.Errorf("request = %s %s, want POST /v1/grade", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"grade": 42, "feedback": "ok"}`))
	}))
	defer srv.Close()

	b := NewHTTPBackend("exec-1", srv.URL+"/", newTestLogger())
	res, err := b.Grade(context.Background(), NewRequest(sampleAutoExercise(), "print(1)"))
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.Grade != 42 || res.Feedback == nil || *res.Feedback != "ok" {
		t.Errorf("result = %+v", res)
	}
	if got.Submission != "print(1)" || got.ImageName != "autograde/python" || got.MaxMemMB != 64 {
		t.Errorf("request body = %+v", got)
	}
	if len(got.Assets) != 1 || got.Assets[0].FileName != "t.py" {
		t.Errorf("assets = %+v", got.Assets)
	}
}

func TestHTTPBackend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "container exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBackend("exec-1", srv.URL, newTestLogger())
	_, err := b.Grade(context.Background(), NewRequest(sampleAutoExercise(), "x"))
	var ee *Error
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ee.Code != http.StatusInternalServerError || !strings.Contains(ee.Message, "exploded") {
		t.Errorf("error = %+v", ee)
	}
}

func TestHTTPBackend_GradeOutOfRange(t *testing.T) {
	for _, body := range []string{`{"grade": 101}`, `{"grade": -1}`, `{"feedback": "no grade"}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}))
		b := NewHTTPBackend("exec-1", srv.URL, newTestLogger())
		if _, err := b.Grade(context.Background(), NewRequest(sampleAutoExercise(), "x")); err == nil {
			t.Errorf("body %s: expected error", body)
		}
		srv.Close()
	}
}

func TestHTTPBackend_ContextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := NewHTTPBackend("exec-1", srv.URL, newTestLogger())
	if _, err := b.Grade(ctx, NewRequest(sampleAutoExercise(), "x")); err == nil {
		t.Fatal("expected timeout error")
	}
}

// fakeBackend counts calls and returns a fixed grade.
type fakeBackend struct {
	mu    sync.Mutex
	calls int
	grade int
	err   error
}

func (f *fakeBackend) Grade(_ context.Context, _ *Request) (*model.GradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.GradeResult{Grade: f.grade}, nil
}

func fakeFactory(backends map[string]*fakeBackend) BackendFactory {
	return func(ex *model.Executor) Backend {
		if b, ok := backends[ex.ID]; ok {
			return b
		}
		return &fakeBackend{}
	}
}

func TestRegistry_PickLeastLoaded(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(fakeFactory(nil), newTestLogger())
	a := &model.Executor{ID: "a", Name: "a", MaxLoad: 2}
	b := &model.Executor{ID: "b", Name: "b", MaxLoad: 4}
	capable := []*model.Executor{a, b}

	l1, err := r.Pick(ctx, capable)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if l1.Executor.ID != "a" {
		t.Errorf("first pick = %s, want a (tie goes to first)", l1.Executor.ID)
	}
	// a is at 1/2, b at 0/4.
	l2, _ := r.Pick(ctx, capable)
	if l2.Executor.ID != "b" {
		t.Errorf("second pick = %s, want b", l2.Executor.ID)
	}
	// a 1/2, b 1/4.
	l3, _ := r.Pick(ctx, capable)
	if l3.Executor.ID != "b" {
		t.Errorf("third pick = %s, want b", l3.Executor.ID)
	}

	if got := r.Load("b"); got != 2 {
		t.Errorf("Load(b) = %d, want 2", got)
	}
	l2.Release()
	l2.Release()
	if got := r.Load("b"); got != 1 {
		t.Errorf("Load(b) after double release = %d, want 1", got)
	}
	l1.Release()
	l3.Release()
}

func TestRegistry_SkipsDrained(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(fakeFactory(nil), newTestLogger())
	capable := []*model.Executor{
		{ID: "a", MaxLoad: 1, Drain: true},
		{ID: "b", MaxLoad: 1},
	}
	l, err := r.Pick(ctx, capable)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if l.Executor.ID != "b" {
		t.Errorf("pick = %s, want b", l.Executor.ID)
	}

	_, err = r.Pick(ctx, []*model.Executor{{ID: "a", MaxLoad: 1, Drain: true}})
	if !errors.Is(err, ErrNoExecutor) {
		t.Errorf("err = %v, want ErrNoExecutor", err)
	}
	if _, err := r.Pick(ctx, nil); !errors.Is(err, ErrNoExecutor) {
		t.Errorf("empty err = %v, want ErrNoExecutor", err)
	}
}

func TestRegistry_PickWaitsAtMaxLoad(t *testing.T) {
	r := NewRegistry(fakeFactory(nil), newTestLogger())
	capable := []*model.Executor{{ID: "a", Name: "a", MaxLoad: 1}}

	l1, err := r.Pick(context.Background(), capable)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := r.Pick(short, capable); !errors.Is(err, ErrNoExecutor) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Pick on a full executor: err = %v, want ErrNoExecutor after the deadline", err)
	}
	if got := r.Load("a"); got != 1 {
		t.Fatalf("Load(a) = %d, want 1", got)
	}

	got := make(chan *Lease, 1)
	go func() {
		l, err := r.Pick(context.Background(), capable)
		if err != nil {
			t.Errorf("waiting Pick: %v", err)
		}
		got <- l
	}()

	select {
	case <-got:
		t.Fatal("second call admitted while executor a was full")
	case <-time.After(30 * time.Millisecond):
	}

	l1.Release()
	select {
	case l2 := <-got:
		if l2 == nil || l2.Executor.ID != "a" {
			t.Fatalf("waiting Pick got %+v, want a lease on a", l2)
		}
		if r.Load("a") != 1 {
			t.Errorf("Load(a) = %d, want 1", r.Load("a"))
		}
		l2.Release()
	case <-time.After(time.Second):
		t.Fatal("waiting Pick not woken by Release")
	}
}

func TestRegistry_SyncKeepsBusyExecutors(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(fakeFactory(nil), newTestLogger())
	a := &model.Executor{ID: "a", MaxLoad: 1}
	b := &model.Executor{ID: "b", MaxLoad: 1}
	r.Sync([]*model.Executor{a, b})

	l, _ := r.Pick(ctx, []*model.Executor{a})
	r.Sync(nil)
	if got := r.Load("a"); got != 1 {
		t.Errorf("busy executor dropped by Sync, load = %d", got)
	}
	l.Release()
	r.Sync(nil)
	if got := r.Load("a"); got != 0 {
		t.Errorf("Load(a) = %d, want 0", got)
	}
}

type fakeSource struct {
	ae    *model.AutoExercise
	execs []*model.Executor
}

func (f *fakeSource) GetAutoExercise(_ context.Context, id string) (*model.AutoExercise, error) {
	if f.ae == nil || f.ae.ID != id {
		return nil, nil
	}
	return f.ae, nil
}

func (f *fakeSource) ListExecutorsFor(_ context.Context, _ string) ([]*model.Executor, error) {
	return f.execs, nil
}

func TestDispatcher_Grade(t *testing.T) {
	backend := &fakeBackend{grade: 77}
	src := &fakeSource{
		ae:    sampleAutoExercise(),
		execs: []*model.Executor{{ID: "exe_1", Name: "one", MaxLoad: 1}},
	}
	reg := NewRegistry(fakeFactory(map[string]*fakeBackend{"exe_1": backend}), newTestLogger())
	d := NewDispatcher(src, reg, newTestLogger())

	res, err := d.Grade(context.Background(), "aex_1", "print(1)")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.Grade != 77 {
		t.Errorf("grade = %d, want 77", res.Grade)
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls)
	}
	if got := reg.Load("exe_1"); got != 0 {
		t.Errorf("load after call = %d, want 0", got)
	}
}

func TestDispatcher_Errors(t *testing.T) {
	reg := NewRegistry(fakeFactory(nil), newTestLogger())

	d := NewDispatcher(&fakeSource{}, reg, newTestLogger())
	if _, err := d.Grade(context.Background(), "aex_missing", "x"); err == nil {
		t.Error("expected error for missing auto exercise")
	}

	d = NewDispatcher(&fakeSource{ae: sampleAutoExercise()}, reg, newTestLogger())
	if _, err := d.Grade(context.Background(), "aex_1", "x"); !errors.Is(err, ErrNoExecutor) {
		t.Errorf("err = %v, want ErrNoExecutor", err)
	}

	failing := &fakeBackend{err: errors.New("boom")}
	reg = NewRegistry(fakeFactory(map[string]*fakeBackend{"exe_1": failing}), newTestLogger())
	d = NewDispatcher(&fakeSource{
		ae:    sampleAutoExercise(),
		execs: []*model.Executor{{ID: "exe_1", MaxLoad: 1}},
	}, reg, newTestLogger())
	if _, err := d.Grade(context.Background(), "aex_1", "x"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want backend error", err)
	}
	if got := reg.Load("exe_1"); got != 0 {
		t.Errorf("load after failure = %d, want 0", got)
	}
}
