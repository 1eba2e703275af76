package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/me/autograde/pkg/model"
)

type solutionRequest struct {
	Solution string `json:"solution" validate:"required,max=1000000"`
}

// handleSubmit stores a student submission and returns without waiting for
// grading.
// POST /api/v1/exercises/{eid}/submissions
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := IdentityFromContext(r.Context())

	var req solutionRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	sub, err := s.grading.Submit(r.Context(), chi.URLParam(r, "eid"), id.UserID, req.Solution)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondCreated(w, reqID, sub)
}

// GET /api/v1/exercises/{eid}/submissions
func (s *Server) handleListOwnSubmissions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := IdentityFromContext(r.Context())

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		opts.Limit = cast.ToInt(v)
	}
	if v := q.Get("offset"); v != "" {
		opts.Offset = cast.ToInt(v)
	}
	if v := q.Get("status"); v != "" {
		st := model.AutoGradeStatus(v)
		if !st.IsValid() {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid status filter",
					model.FieldError{Field: "status", Message: "must be NONE, IN_PROGRESS, COMPLETED or FAILED"}))
			return
		}
		opts.Status = st
	}
	opts.Clamp()

	subs, total, err := s.store.ListSubmissions(r.Context(), chi.URLParam(r, "eid"), id.UserID, opts)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*model.Submission{}
	}
	respondList(w, reqID, subs, model.NewPagination(total, opts))
}

// GET /api/v1/exercises/{eid}/submissions/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	ls, err := s.grading.ReadLatest(r.Context(), chi.URLParam(r, "eid"), id.UserID)
	s.respondLatest(w, r, ls, err)
}

// GET /api/v1/exercises/{eid}/submissions/latest/await
func (s *Server) handleAwaitLatest(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	ls, err := s.grading.AwaitLatest(r.Context(), chi.URLParam(r, "eid"), id.UserID)
	s.respondLatest(w, r, ls, err)
}

// GET /api/v1/exercises/{eid}/submissions/latest/autograded
func (s *Server) handlePollLatest(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	ls, err := s.grading.PollLatestAutoGraded(r.Context(), chi.URLParam(r, "eid"), id.UserID)
	s.respondLatest(w, r, ls, err)
}

func (s *Server) respondLatest(w http.ResponseWriter, r *http.Request, ls *model.LatestSubmission, err error) {
	reqID := RequestIDFromContext(r.Context())
	switch {
	case err != nil:
		s.respondServiceError(w, r, err)
	case ls == nil:
		respondNoContent(w, reqID)
	default:
		respondOK(w, reqID, ls)
	}
}

type submissionDetail struct {
	*model.Submission
	AutoAssessment  *model.AutomaticAssessment `json:"auto_assessment"`
	TeacherActivity *model.TeacherActivity     `json:"teacher_activity"`
	GradingInFlight bool                       `json:"grading_in_flight"`
}

// GET /api/v1/submissions/{sid}
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sid := chi.URLParam(r, "sid")

	sub, err := s.store.GetSubmission(r.Context(), sid)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if sub == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("submission", sid))
		return
	}

	detail := submissionDetail{Submission: sub}
	if detail.AutoAssessment, err = s.store.GetLatestAutoAssessment(r.Context(), sid); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if detail.TeacherActivity, err = s.store.GetLatestTeacherActivity(r.Context(), sid); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if s.observer != nil {
		detail.GradingInFlight = s.observer.Get(sid) != nil
	}
	respondOK(w, reqID, detail)
}

// handleRetry regrades a submission. With ?wait=true it responds once the
// attempt settles; otherwise it responds 202 right away.
// POST /api/v1/submissions/{sid}/autoassess/retry
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sid := chi.URLParam(r, "sid")
	teacher := IdentityFromContext(r.Context()).UserID

	if cast.ToBool(r.URL.Query().Get("wait")) {
		sub, err := s.grading.RetrySync(r.Context(), sid, teacher)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		respondOK(w, reqID, sub)
		return
	}

	sub, _, err := s.grading.Retry(r.Context(), sid, teacher)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, reqID, sub, nil, nil)
}

type gradeRequest struct {
	Grade *int `json:"grade" validate:"required,gte=0,lte=100"`
}

// POST /api/v1/submissions/{sid}/grade
func (s *Server) handlePostGrade(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req gradeRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	act, err := s.grading.PostGrade(r.Context(), chi.URLParam(r, "sid"),
		IdentityFromContext(r.Context()).UserID, *req.Grade)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOK(w, reqID, act)
}

type feedbackRequest struct {
	Feedback string `json:"feedback" validate:"required,max=100000"`
}

// POST /api/v1/submissions/{sid}/feedback
func (s *Server) handlePostFeedback(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req feedbackRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	act, err := s.grading.PostFeedback(r.Context(), chi.URLParam(r, "sid"),
		IdentityFromContext(r.Context()).UserID, req.Feedback)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOK(w, reqID, act)
}

// GET /api/v1/submissions/{sid}/activities
func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	acts, err := s.grading.ListActivities(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if acts == nil {
		acts = []*model.TeacherActivity{}
	}
	respondOK(w, reqID, acts)
}

type editFeedbackRequest struct {
	Feedback string `json:"feedback" validate:"max=100000"`
}

// handleEditFeedback replaces an activity's feedback. An empty feedback
// clears it; when that leaves the activity empty it is deleted and the
// response is 204.
// PUT /api/v1/submissions/{sid}/activities/{aid}/feedback
func (s *Server) handleEditFeedback(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sid := chi.URLParam(r, "sid")
	aid := chi.URLParam(r, "aid")

	var req editFeedbackRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	current, err := s.store.GetTeacherActivity(r.Context(), aid)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if current == nil || current.SubmissionID != sid {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("activity", aid))
		return
	}

	act, err := s.grading.EditFeedback(r.Context(), aid, IdentityFromContext(r.Context()).UserID, req.Feedback)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if act == nil {
		respondNoContent(w, reqID)
		return
	}
	respondOK(w, reqID, act)
}
