package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleFailure() RetryFailure {
	return RetryFailure{
		ExerciseID:   "ex_1",
		SubmissionID: "sub_1",
		StudentID:    "stud-1",
		Solution:     "print('hi')",
		Err:          errors.New("executor down"),
	}
}

func TestRetryFailure_Message(t *testing.T) {
	msg := sampleFailure().Message()
	for _, want := range []string{"Autoassessment failed", "ex_1", "sub_1", "stud-1", "executor down", "print('hi')"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSendGridOperator_Sends(t *testing.T) {
	var body map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	op := NewSendGridOperator("SG.key", srv.URL, "autograde@example.com", "ops@example.com", testLogger())
	if err := op.NotifyRetryFailure(context.Background(), sampleFailure()); err != nil {
		t.Fatalf("NotifyRetryFailure: %v", err)
	}
	if path != "/v3/mail/send" {
		t.Errorf("path = %q", path)
	}
	if auth != "Bearer SG.key" {
		t.Errorf("Authorization = %q", auth)
	}
	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "ops@example.com") || !strings.Contains(string(raw), "sub_1") {
		t.Errorf("mail body = %s", raw)
	}
}

func TestSendGridOperator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	op := NewSendGridOperator("bad", srv.URL, "a@example.com", "b@example.com", testLogger())
	if err := op.NotifyRetryFailure(context.Background(), sampleFailure()); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestLogOperator(t *testing.T) {
	var buf strings.Builder
	op := NewLogOperator(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := op.NotifyRetryFailure(context.Background(), sampleFailure()); err != nil {
		t.Fatalf("NotifyRetryFailure: %v", err)
	}
	if !strings.Contains(buf.String(), "sub_1") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestWebhookGradeSync(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookGradeSync(srv.URL+"/hooks/grades", testLogger())
	if err := s.SyncGrade(context.Background(), "ex_1", "stud-1"); err != nil {
		t.Fatalf("SyncGrade: %v", err)
	}
	if got["exercise_id"] != "ex_1" || got["student_id"] != "stud-1" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookGradeSync_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookGradeSync(srv.URL, testLogger())
	if err := s.SyncGrade(context.Background(), "ex_1", "stud-1"); err == nil {
		t.Fatal("expected error for 502")
	}
	if err := (NopGradeSync{}).SyncGrade(context.Background(), "ex_1", "stud-1"); err != nil {
		t.Errorf("NopGradeSync: %v", err)
	}
}

func TestDispatcher_GoAndWait(t *testing.T) {
	d := NewDispatcher(time.Second, testLogger())
	var ran atomic.Int32
	for range 5 {
		d.Go("count", func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("context has no deadline")
			}
			ran.Add(1)
			return nil
		})
	}
	d.Go("fails", func(context.Context) error { return errors.New("ignored") })
	d.Go("panics", func(context.Context) error { panic("boom") })
	d.Wait()
	if ran.Load() != 5 {
		t.Errorf("ran = %d, want 5", ran.Load())
	}
}
