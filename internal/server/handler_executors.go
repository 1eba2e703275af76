package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/me/autograde/pkg/model"
)

// GET /api/v1/executors
func (s *Server) handleListExecutors(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	execs, err := s.store.ListExecutors(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if execs == nil {
		execs = []*model.Executor{}
	}
	if s.registry != nil {
		for _, ex := range execs {
			ex.Load = s.registry.Load(ex.ID)
		}
	}
	respondOK(w, reqID, execs)
}

type createExecutorRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	BaseURL string `json:"base_url" validate:"required,url"`
	MaxLoad int    `json:"max_load" validate:"gte=1,lte=1000"`
}

// POST /api/v1/executors
func (s *Server) handleCreateExecutor(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req createExecutorRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	ex := &model.Executor{
		ID:        "exe_" + uuid.New().String(),
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		MaxLoad:   req.MaxLoad,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateExecutor(r.Context(), ex); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	s.logger.Info("executor created", "id", ex.ID, "name", ex.Name, "base_url", ex.BaseURL)
	respondCreated(w, reqID, ex)
}

type drainRequest struct {
	Drain bool `json:"drain"`
}

// handleDrainExecutor stops or resumes routing new grading calls to an
// executor. Calls already running finish.
// PUT /api/v1/executors/{xid}/drain
func (s *Server) handleDrainExecutor(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "xid")

	req := drainRequest{Drain: true}
	if r.ContentLength != 0 {
		if apiErr := s.decodeBody(r, &req); apiErr != nil {
			respondError(w, reqID, http.StatusBadRequest, apiErr)
			return
		}
	}

	if err := s.store.SetExecutorDrain(r.Context(), id, req.Drain); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	ex, err := s.store.GetExecutor(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if ex == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("executor", id))
		return
	}
	if s.registry != nil {
		ex.Load = s.registry.Load(id)
	}

	s.logger.Info("executor drain set", "id", id, "drain", req.Drain)
	respondOK(w, reqID, ex)
}

// handleDeleteExecutor removes an executor. It is refused while the
// executor serves grading calls unless ?force=true.
// DELETE /api/v1/executors/{xid}
func (s *Server) handleDeleteExecutor(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "xid")
	force := cast.ToBool(r.URL.Query().Get("force"))

	if s.registry != nil && !force {
		if load := s.registry.Load(id); load > 0 {
			respondError(w, reqID, http.StatusConflict, &model.APIError{
				Code:    model.ErrConflict,
				Message: "executor is serving grading calls; drain it first or use ?force=true",
			})
			return
		}
	}

	if err := s.store.DeleteExecutor(r.Context(), id); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if s.registry != nil {
		s.registry.Remove(id)
	}

	s.logger.Info("executor deleted", "id", id, "force", force)
	respondNoContent(w, reqID)
}

// PUT /api/v1/auto-exercises/{aid}/executors/{xid}
func (s *Server) handleLinkExecutor(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	aid := chi.URLParam(r, "aid")
	xid := chi.URLParam(r, "xid")

	ae, err := s.store.GetAutoExercise(r.Context(), aid)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if ae == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("auto exercise", aid))
		return
	}
	ex, err := s.store.GetExecutor(r.Context(), xid)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if ex == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("executor", xid))
		return
	}

	if err := s.store.LinkExecutor(r.Context(), aid, xid); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondNoContent(w, reqID)
}
