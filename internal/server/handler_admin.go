package server

import (
	"net/http"

	"github.com/me/autograde/internal/observer"
	"github.com/me/autograde/pkg/model"
)

type observerSnapshot struct {
	Live    int                   `json:"live"`
	Handles []observer.HandleInfo `json:"handles"`
}

// handleObserverSnapshot lists tracked grading attempts.
// GET /api/v1/admin/observer
func (s *Server) handleObserverSnapshot(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.observer == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("component", "observer"))
		return
	}

	handles := s.observer.Snapshot()
	if handles == nil {
		handles = []observer.HandleInfo{}
	}
	respondOK(w, reqID, observerSnapshot{Live: s.observer.Live(), Handles: handles})
}

// GET /api/v1/admin/scheduler
func (s *Server) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.scheduler == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("component", "scheduler"))
		return
	}
	respondOK(w, reqID, s.scheduler.Stats())
}
