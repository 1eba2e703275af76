package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/autograde/pkg/model"
)

// handleAnonymousAutoassess grades a solution synchronously at anonymous
// priority. Any caller may use it.
// POST /api/v1/exercises/{eid}/anonymous/autoassess
func (s *Server) handleAnonymousAutoassess(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req solutionRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	res, err := s.grading.SubmitAnonymous(r.Context(), chi.URLParam(r, "eid"), req.Solution)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondOK(w, reqID, res)
}

// GET /api/v1/exercises/{eid}/anonymous
func (s *Server) handleListAnonymous(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	subs, err := s.grading.ListAnonymous(r.Context(), chi.URLParam(r, "eid"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*model.AnonymousSubmission{}
	}
	respondOK(w, reqID, subs)
}
