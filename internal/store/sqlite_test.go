package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/me/autograde/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleAutoExercise() *model.AutoExercise {
	return &model.AutoExercise{
		ID:             "ae_test-1",
		GradingScript:  "#!/bin/sh\necho 100\n",
		ContainerImage: "autograde/python:3.12",
		MaxTimeSec:     30,
		MaxMemMB:       128,
		Assets:         []model.Asset{{FileName: "tests.py", FileContent: "assert True\n"}},
		CreatedAt:      baseTime,
	}
}

func sampleExercise(autoID string) *model.Exercise {
	return &model.Exercise{
		ID:             "ex_test-1",
		Title:          "Hello world",
		GraderType:     model.GraderAuto,
		AutoExerciseID: autoID,
		CreatedAt:      baseTime,
	}
}

func sampleSubmission(id string) *model.Submission {
	return &model.Submission{
		ID:              id,
		ExerciseID:      "ex_test-1",
		StudentID:       "stud-1",
		Solution:        "print('hello')",
		AutoGradeStatus: model.AutoGradeInProgress,
		CreatedAt:       baseTime,
	}
}

func mustCreateSubmission(t *testing.T, st *SQLiteStore, sub *model.Submission) {
	t.Helper()
	if err := st.CreateSubmission(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubmission %s: %v", sub.ID, err)
	}
}

func strp(s string) *string { return &s }

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("third migrate: %v", err)
	}
}

func TestCreateAndGetExercise(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	ae := sampleAutoExercise()
	if err := st.CreateAutoExercise(ctx, ae); err != nil {
		t.Fatalf("CreateAutoExercise: %v", err)
	}
	ex := sampleExercise(ae.ID)
	ex.AnonymousAutoassessEnabled = true
	if err := st.CreateExercise(ctx, ex); err != nil {
		t.Fatalf("CreateExercise: %v", err)
	}

	got, err := st.GetExercise(ctx, ex.ID)
	if err != nil {
		t.Fatalf("GetExercise: %v", err)
	}
	if got == nil {
		t.Fatal("GetExercise returned nil")
	}
	if got.GraderType != model.GraderAuto || got.AutoExerciseID != ae.ID {
		t.Errorf("exercise = %+v", got)
	}
	if !got.AnonymousAutoassessEnabled {
		t.Error("AnonymousAutoassessEnabled = false, want true")
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
	}

	gotAE, err := st.GetAutoExercise(ctx, ae.ID)
	if err != nil {
		t.Fatalf("GetAutoExercise: %v", err)
	}
	if len(gotAE.Assets) != 1 || gotAE.Assets[0].FileName != "tests.py" {
		t.Errorf("Assets = %+v", gotAE.Assets)
	}
	if gotAE.MaxTimeSec != 30 || gotAE.MaxMemMB != 128 {
		t.Errorf("limits = %d/%d", gotAE.MaxTimeSec, gotAE.MaxMemMB)
	}
}

func TestGetExercise_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetExercise(context.Background(), "ex_missing")
	if err != nil {
		t.Fatalf("GetExercise: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpdateExercise_NotFound(t *testing.T) {
	st := testStore(t)
	err := st.UpdateExercise(context.Background(), sampleExercise(""))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExecutorsAndLinks(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	ae := sampleAutoExercise()
	if err := st.CreateAutoExercise(ctx, ae); err != nil {
		t.Fatalf("CreateAutoExercise: %v", err)
	}
	for i, name := range []string{"exec-a", "exec-b"} {
		ex := &model.Executor{
			ID: "exe_" + name, Name: name, BaseURL: "http://" + name + ":8000",
			MaxLoad: 2, CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
		}
		if err := st.CreateExecutor(ctx, ex); err != nil {
			t.Fatalf("CreateExecutor: %v", err)
		}
	}
	if err := st.LinkExecutor(ctx, ae.ID, "exe_exec-b"); err != nil {
		t.Fatalf("LinkExecutor: %v", err)
	}
	// Linking twice is a no-op.
	if err := st.LinkExecutor(ctx, ae.ID, "exe_exec-b"); err != nil {
		t.Fatalf("LinkExecutor again: %v", err)
	}

	linked, err := st.ListExecutorsFor(ctx, ae.ID)
	if err != nil {
		t.Fatalf("ListExecutorsFor: %v", err)
	}
	if len(linked) != 1 || linked[0].Name != "exec-b" {
		t.Fatalf("linked = %+v", linked)
	}

	if err := st.SetExecutorDrain(ctx, "exe_exec-b", true); err != nil {
		t.Fatalf("SetExecutorDrain: %v", err)
	}
	got, _ := st.GetExecutor(ctx, "exe_exec-b")
	if got == nil || !got.Drain {
		t.Errorf("executor = %+v, want drained", got)
	}

	if err := st.DeleteExecutor(ctx, "exe_exec-b"); err != nil {
		t.Fatalf("DeleteExecutor: %v", err)
	}
	linked, _ = st.ListExecutorsFor(ctx, ae.ID)
	if len(linked) != 0 {
		t.Errorf("links survived delete: %+v", linked)
	}
	all, _ := st.ListExecutors(ctx)
	if len(all) != 1 {
		t.Errorf("ListExecutors = %d, want 1", len(all))
	}
	if err := st.DeleteExecutor(ctx, "exe_exec-b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestCreateSubmission_Numbering(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		sub := sampleSubmission(fmt.Sprintf("sub_%d", i))
		sub.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		mustCreateSubmission(t, st, sub)
		if sub.Number != i {
			t.Errorf("submission %d: Number = %d", i, sub.Number)
		}
	}
	other := sampleSubmission("sub_other")
	other.StudentID = "stud-2"
	mustCreateSubmission(t, st, other)
	if other.Number != 1 {
		t.Errorf("other student Number = %d, want 1", other.Number)
	}

	latest, err := st.GetLatestSubmission(ctx, "ex_test-1", "stud-1")
	if err != nil {
		t.Fatalf("GetLatestSubmission: %v", err)
	}
	if latest == nil || latest.ID != "sub_3" {
		t.Errorf("latest = %+v, want sub_3", latest)
	}

	none, err := st.GetLatestSubmission(ctx, "ex_test-1", "stud-404")
	if err != nil || none != nil {
		t.Errorf("GetLatestSubmission unknown = %+v, %v", none, err)
	}
}

func TestListSubmissions_FilterAndPaginate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sub := sampleSubmission(fmt.Sprintf("sub_%d", i))
		sub.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			sub.AutoGradeStatus = model.AutoGradeFailed
		}
		mustCreateSubmission(t, st, sub)
	}

	subs, total, err := st.ListSubmissions(ctx, "ex_test-1", "stud-1", model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if total != 5 || len(subs) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(subs))
	}
	if subs[0].ID != "sub_4" {
		t.Errorf("first = %s, want newest sub_4", subs[0].ID)
	}

	failed, total, err := st.ListSubmissions(ctx, "ex_test-1", "", model.ListOptions{Status: model.AutoGradeFailed})
	if err != nil {
		t.Fatalf("ListSubmissions failed: %v", err)
	}
	if total != 3 || len(failed) != 3 {
		t.Errorf("failed total=%d len=%d, want 3", total, len(failed))
	}
}

func TestCompleteGrading_SetsAutoGrade(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))

	sub, err := st.CompleteGrading(ctx, "sub_1", &model.GradeResult{Grade: 87, Feedback: strp("ok")}, baseTime)
	if err != nil {
		t.Fatalf("CompleteGrading: %v", err)
	}
	if sub.AutoGradeStatus != model.AutoGradeCompleted {
		t.Errorf("status = %s", sub.AutoGradeStatus)
	}
	if sub.Grade == nil || *sub.Grade != 87 || !sub.IsAutoGrade {
		t.Errorf("grade = %v auto=%v, want 87 auto", sub.Grade, sub.IsAutoGrade)
	}

	aa, err := st.GetLatestAutoAssessment(ctx, "sub_1")
	if err != nil {
		t.Fatalf("GetLatestAutoAssessment: %v", err)
	}
	if aa == nil || aa.Grade != 87 || aa.Feedback == nil || *aa.Feedback != "ok" {
		t.Errorf("assessment = %+v", aa)
	}
}

func TestCompleteGrading_KeepsTeacherGrade(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))

	if _, err := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 40, baseTime, 10*time.Second); err != nil {
		t.Fatalf("MergeTeacherGrade: %v", err)
	}
	sub, err := st.CompleteGrading(ctx, "sub_1", &model.GradeResult{Grade: 95}, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("CompleteGrading: %v", err)
	}
	if sub.Grade == nil || *sub.Grade != 40 || sub.IsAutoGrade {
		t.Errorf("grade = %v auto=%v, want teacher grade 40", sub.Grade, sub.IsAutoGrade)
	}
	if sub.AutoGradeStatus != model.AutoGradeCompleted {
		t.Errorf("status = %s", sub.AutoGradeStatus)
	}
}

func TestCompleteGrading_RejectsSettled(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	sub := sampleSubmission("sub_1")
	sub.AutoGradeStatus = model.AutoGradeNone
	mustCreateSubmission(t, st, sub)

	_, err := st.CompleteGrading(ctx, "sub_1", &model.GradeResult{Grade: 1}, baseTime)
	var te *model.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if te.From != "NONE" || te.To != "COMPLETED" {
		t.Errorf("transition = %s -> %s", te.From, te.To)
	}

	if _, err := st.CompleteGrading(ctx, "sub_missing", &model.GradeResult{}, baseTime); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestFailGrading_ClearsAutoGrade(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))

	if _, err := st.CompleteGrading(ctx, "sub_1", &model.GradeResult{Grade: 70, Feedback: strp("meh")}, baseTime); err != nil {
		t.Fatalf("CompleteGrading: %v", err)
	}
	if _, err := st.StartRegrade(ctx, "sub_1", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("StartRegrade: %v", err)
	}
	sub, err := st.FailGrading(ctx, "sub_1")
	if err != nil {
		t.Fatalf("FailGrading: %v", err)
	}
	if sub.AutoGradeStatus != model.AutoGradeFailed {
		t.Errorf("status = %s, want FAILED", sub.AutoGradeStatus)
	}
	if sub.Grade != nil || sub.AutoFeedback != nil {
		t.Errorf("grade=%v feedback=%v, want both cleared", sub.Grade, sub.AutoFeedback)
	}

	// A second failure without a retry in between is not a valid transition.
	if _, err := st.FailGrading(ctx, "sub_1"); err == nil {
		t.Error("expected error failing a FAILED submission")
	}
}

func TestStartRegrade(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))

	if _, err := st.StartRegrade(ctx, "sub_1", baseTime.Add(time.Minute)); !errors.Is(err, model.ErrRetryInFlight) {
		t.Fatalf("retry while in progress err = %v, want ErrRetryInFlight", err)
	}

	if _, err := st.FailGrading(ctx, "sub_1"); err != nil {
		t.Fatalf("FailGrading: %v", err)
	}
	sub, err := st.StartRegrade(ctx, "sub_1", baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("StartRegrade: %v", err)
	}
	if sub.AutoGradeStatus != model.AutoGradeInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", sub.AutoGradeStatus)
	}
	if sub.GradingStartedAt == nil || !sub.GradingStartedAt.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("grading started at %v, want %v", sub.GradingStartedAt, baseTime.Add(time.Minute))
	}
	// Only one of two back-to-back retries may pass.
	if _, err := st.StartRegrade(ctx, "sub_1", baseTime.Add(time.Minute)); !errors.Is(err, model.ErrRetryInFlight) {
		t.Errorf("second retry err = %v, want ErrRetryInFlight", err)
	}

	if _, err := st.StartRegrade(ctx, "sub_missing", baseTime); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestFailStaleGrading(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))
	cutoff := baseTime.Add(time.Second)

	// Started at baseTime, so it is stale at cutoff.
	sub, err := st.FailStaleGrading(ctx, "sub_1", cutoff)
	if err != nil {
		t.Fatalf("FailStaleGrading: %v", err)
	}
	if sub == nil || sub.AutoGradeStatus != model.AutoGradeFailed {
		t.Fatalf("got %+v, want a FAILED submission", sub)
	}

	// A retry started after the cutoff is not stale.
	if _, err := st.StartRegrade(ctx, "sub_1", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("StartRegrade: %v", err)
	}
	sub, err = st.FailStaleGrading(ctx, "sub_1", cutoff)
	if err != nil || sub != nil {
		t.Fatalf("FailStaleGrading on a fresh attempt = %+v, %v; want nil, nil", sub, err)
	}
	got, _ := st.GetSubmission(ctx, "sub_1")
	if got.AutoGradeStatus != model.AutoGradeInProgress {
		t.Errorf("status = %s, want IN_PROGRESS kept", got.AutoGradeStatus)
	}
	if subs, _ := st.ListInProgressBefore(ctx, cutoff); len(subs) != 0 {
		t.Errorf("fresh attempt listed as stale: %+v", subs)
	}

	// Settled and missing submissions are left alone.
	if _, err := st.CompleteGrading(ctx, "sub_1", &model.GradeResult{Grade: 5}, baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("CompleteGrading: %v", err)
	}
	if sub, err := st.FailStaleGrading(ctx, "sub_1", baseTime.Add(time.Hour)); err != nil || sub != nil {
		t.Errorf("completed submission: %+v, %v; want nil, nil", sub, err)
	}
	if sub, err := st.FailStaleGrading(ctx, "sub_missing", baseTime.Add(time.Hour)); err != nil || sub != nil {
		t.Errorf("missing submission: %+v, %v; want nil, nil", sub, err)
	}
}

func TestListInProgressBefore(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	old := sampleSubmission("sub_old")
	mustCreateSubmission(t, st, old)
	fresh := sampleSubmission("sub_fresh")
	fresh.CreatedAt = baseTime.Add(time.Hour)
	mustCreateSubmission(t, st, fresh)
	done := sampleSubmission("sub_done")
	done.AutoGradeStatus = model.AutoGradeCompleted
	mustCreateSubmission(t, st, done)

	subs, err := st.ListInProgressBefore(ctx, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListInProgressBefore: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub_old" {
		t.Errorf("got %+v, want only sub_old", subs)
	}
}

func TestMergeTeacherGrade_WithinWindow(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))
	window := 10 * time.Second

	first, err := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 50, baseTime, window)
	if err != nil {
		t.Fatalf("MergeTeacherGrade: %v", err)
	}
	second, err := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 60, baseTime.Add(5*time.Second), window)
	if err != nil {
		t.Fatalf("MergeTeacherGrade: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected merge into %s, got new row %s", first.ID, second.ID)
	}
	if second.Grade == nil || *second.Grade != 60 {
		t.Errorf("grade = %v, want 60", second.Grade)
	}

	// The window restarts at every merged write.
	third, err := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 70, baseTime.Add(14*time.Second), window)
	if err != nil {
		t.Fatalf("MergeTeacherGrade: %v", err)
	}
	if third.ID != first.ID {
		t.Errorf("expected merge into %s after window restart", first.ID)
	}

	later, err := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 80, baseTime.Add(time.Minute), window)
	if err != nil {
		t.Fatalf("MergeTeacherGrade: %v", err)
	}
	if later.ID == first.ID {
		t.Error("write after the window merged into the old row")
	}

	sub, _ := st.GetSubmission(ctx, "sub_1")
	if sub.Grade == nil || *sub.Grade != 80 || sub.IsAutoGrade {
		t.Errorf("submission grade = %v auto=%v, want 80 teacher", sub.Grade, sub.IsAutoGrade)
	}

	acts, _ := st.ListTeacherActivities(ctx, "sub_1")
	if len(acts) != 2 {
		t.Errorf("activities = %d, want 2", len(acts))
	}
}

func TestMergeTeacherGrade_PerTeacher(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))

	a, _ := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 50, baseTime, time.Minute)
	b, err := st.MergeTeacherGrade(ctx, "sub_1", "teach-2", 55, baseTime.Add(time.Second), time.Minute)
	if err != nil {
		t.Fatalf("MergeTeacherGrade: %v", err)
	}
	if a.ID == b.ID {
		t.Error("different teachers share an activity row")
	}

	latest, err := st.GetLatestTeacherActivity(ctx, "sub_1")
	if err != nil {
		t.Fatalf("GetLatestTeacherActivity: %v", err)
	}
	if latest.ID != b.ID {
		t.Errorf("latest = %s, want %s", latest.ID, b.ID)
	}
}

func TestMergeTeacherGrade_MissingSubmission(t *testing.T) {
	st := testStore(t)
	_, err := st.MergeTeacherGrade(context.Background(), "sub_missing", "teach-1", 1, baseTime, time.Minute)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMergeTeacherFeedback(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))
	window := 10 * time.Second

	graded, _ := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 90, baseTime, window)
	fb, err := st.MergeTeacherFeedback(ctx, "sub_1", "teach-1", "nice", baseTime.Add(time.Second), window)
	if err != nil {
		t.Fatalf("MergeTeacherFeedback: %v", err)
	}
	if fb.ID != graded.ID {
		t.Error("feedback did not merge into the graded row")
	}
	if fb.Grade == nil || *fb.Grade != 90 || fb.Feedback == nil || *fb.Feedback != "nice" {
		t.Errorf("activity = %+v", fb)
	}

	// A row that already has feedback is closed for further feedback.
	again, err := st.MergeTeacherFeedback(ctx, "sub_1", "teach-1", "even nicer", baseTime.Add(2*time.Second), window)
	if err != nil {
		t.Fatalf("MergeTeacherFeedback: %v", err)
	}
	if again.ID == graded.ID {
		t.Error("second feedback overwrote the first")
	}

	if _, err := st.MergeTeacherFeedback(ctx, "sub_missing", "teach-1", "x", baseTime, window); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestEditTeacherFeedback_DeletesEmptyRows(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustCreateSubmission(t, st, sampleSubmission("sub_1"))

	fbOnly, _ := st.MergeTeacherFeedback(ctx, "sub_1", "teach-1", "first look", baseTime, time.Second)
	graded, _ := st.MergeTeacherGrade(ctx, "sub_1", "teach-1", 75, baseTime.Add(time.Minute), time.Second)

	edited, err := st.EditTeacherFeedback(ctx, fbOnly.ID, nil, baseTime.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("EditTeacherFeedback: %v", err)
	}
	if edited != nil {
		t.Errorf("cleared feedback-only row survived: %+v", edited)
	}

	acts, _ := st.ListTeacherActivities(ctx, "sub_1")
	if len(acts) != 1 || acts[0].ID != graded.ID {
		t.Fatalf("activities = %+v, want only the graded row", acts)
	}

	// Clearing feedback on a graded row keeps it.
	kept, err := st.EditTeacherFeedback(ctx, graded.ID, nil, baseTime.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("EditTeacherFeedback: %v", err)
	}
	if kept == nil || kept.EditedAt == nil {
		t.Errorf("graded row = %+v, want kept with edited_at", kept)
	}

	edited, err = st.EditTeacherFeedback(ctx, graded.ID, strp("revised"), baseTime.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("EditTeacherFeedback: %v", err)
	}
	if edited.Feedback == nil || *edited.Feedback != "revised" {
		t.Errorf("feedback = %v, want revised", edited.Feedback)
	}

	if _, err := st.EditTeacherFeedback(ctx, "act_missing", nil, baseTime); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestCreateAnonymousSubmission_Retention(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	const keep = 50

	for i := 0; i < keep; i++ {
		evicted, err := st.CreateAnonymousSubmission(ctx, &model.AnonymousSubmission{
			ID: fmt.Sprintf("anon_%02d", i), ExerciseID: "ex_test-1", Solution: "x",
			Grade: i, CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
		}, keep)
		if err != nil {
			t.Fatalf("CreateAnonymousSubmission %d: %v", i, err)
		}
		if evicted != 0 {
			t.Fatalf("evicted %d rows below the cap", evicted)
		}
	}

	evicted, err := st.CreateAnonymousSubmission(ctx, &model.AnonymousSubmission{
		ID: "anon_new", ExerciseID: "ex_test-1", Solution: "x",
		Grade: 100, CreatedAt: baseTime.Add(time.Hour),
	}, keep)
	if err != nil {
		t.Fatalf("CreateAnonymousSubmission: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}

	rows, err := st.ListAnonymousSubmissions(ctx, "ex_test-1")
	if err != nil {
		t.Fatalf("ListAnonymousSubmissions: %v", err)
	}
	if len(rows) != keep {
		t.Fatalf("rows = %d, want %d", len(rows), keep)
	}
	if rows[0].ID != "anon_new" {
		t.Errorf("newest = %s, want anon_new", rows[0].ID)
	}
	for _, r := range rows {
		if r.ID == "anon_00" {
			t.Error("oldest row was not evicted")
		}
	}

	// Other exercises are counted separately.
	evicted, err = st.CreateAnonymousSubmission(ctx, &model.AnonymousSubmission{
		ID: "anon_other", ExerciseID: "ex_other", Solution: "x", CreatedAt: baseTime,
	}, keep)
	if err != nil || evicted != 0 {
		t.Errorf("other exercise evicted=%d err=%v", evicted, err)
	}
}

func TestCreateAnonymousSubmission_SameTimestamp(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := st.CreateAnonymousSubmission(ctx, &model.AnonymousSubmission{
			ID: fmt.Sprintf("anon_%d", i), ExerciseID: "ex_test-1", Solution: "x", CreatedAt: baseTime,
		}, 2); err != nil {
			t.Fatalf("CreateAnonymousSubmission: %v", err)
		}
	}
	rows, _ := st.ListAnonymousSubmissions(ctx, "ex_test-1")
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].ID != "anon_2" || rows[1].ID != "anon_1" {
		t.Errorf("kept %s,%s; want anon_2,anon_1", rows[0].ID, rows[1].ID)
	}
}

func TestCreateAnonymousSubmission_RejectsZeroKeep(t *testing.T) {
	st := testStore(t)
	_, err := st.CreateAnonymousSubmission(context.Background(), &model.AnonymousSubmission{
		ID: "anon_1", ExerciseID: "ex_test-1", CreatedAt: baseTime,
	}, 0)
	if err == nil {
		t.Error("expected error for keep=0")
	}
}
