package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/me/autograde/pkg/model"
)

type autoExerciseRequest struct {
	GradingScript  string        `json:"grading_script" validate:"required"`
	ContainerImage string        `json:"container_image" validate:"required"`
	MaxTimeSec     int           `json:"max_time_sec" validate:"gte=1,lte=3600"`
	MaxMemMB       int           `json:"max_mem_mb" validate:"gte=1,lte=65536"`
	Assets         []model.Asset `json:"assets" validate:"dive"`
	ExecutorIDs    []string      `json:"executor_ids" validate:"dive,required"`
}

type createExerciseRequest struct {
	Title                      string               `json:"title" validate:"required,max=200"`
	GraderType                 model.GraderType     `json:"grader_type" validate:"required,oneof=TEACHER AUTO"`
	AnonymousAutoassessEnabled bool                 `json:"anonymous_autoassess_enabled"`
	AutoExercise               *autoExerciseRequest `json:"auto_exercise"`
}

// handleCreateExercise creates an exercise, with its auto exercise when it
// is automatically graded.
// POST /api/v1/exercises
func (s *Server) handleCreateExercise(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req createExerciseRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if req.GraderType == model.GraderAuto && req.AutoExercise == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "auto_exercise", Message: "is required for AUTO grading"}))
		return
	}

	now := s.now().UTC()
	ex := &model.Exercise{
		ID:                         "ex_" + uuid.New().String(),
		Title:                      req.Title,
		GraderType:                 req.GraderType,
		AnonymousAutoassessEnabled: req.AnonymousAutoassessEnabled,
		CreatedAt:                  now,
	}

	if ae := req.AutoExercise; ae != nil {
		for _, xid := range ae.ExecutorIDs {
			x, err := s.store.GetExecutor(r.Context(), xid)
			if err != nil {
				s.respondServiceError(w, r, err)
				return
			}
			if x == nil {
				respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("executor", xid))
				return
			}
		}

		auto := &model.AutoExercise{
			ID:             "aex_" + uuid.New().String(),
			GradingScript:  ae.GradingScript,
			ContainerImage: ae.ContainerImage,
			MaxTimeSec:     ae.MaxTimeSec,
			MaxMemMB:       ae.MaxMemMB,
			Assets:         ae.Assets,
			CreatedAt:      now,
		}
		if err := s.store.CreateAutoExercise(r.Context(), auto); err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		for _, xid := range ae.ExecutorIDs {
			if err := s.store.LinkExecutor(r.Context(), auto.ID, xid); err != nil {
				s.respondServiceError(w, r, err)
				return
			}
		}
		ex.AutoExerciseID = auto.ID
	}

	if err := s.store.CreateExercise(r.Context(), ex); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	s.logger.Info("exercise created", "id", ex.ID, "grader_type", ex.GraderType, "auto_exercise_id", ex.AutoExerciseID)
	respondCreated(w, reqID, ex)
}

// GET /api/v1/exercises/{eid}
func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "eid")

	ex, err := s.store.GetExercise(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if ex == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("exercise", id))
		return
	}
	respondOK(w, reqID, ex)
}

type setGraderRequest struct {
	GraderType                 model.GraderType `json:"grader_type" validate:"required,oneof=TEACHER AUTO"`
	AnonymousAutoassessEnabled *bool            `json:"anonymous_autoassess_enabled"`
}

// handleSetGrader switches who grades new submissions. Submissions already
// stored keep their status.
// PUT /api/v1/exercises/{eid}/grader
func (s *Server) handleSetGrader(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "eid")

	var req setGraderRequest
	if apiErr := s.decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	ex, err := s.store.GetExercise(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if ex == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("exercise", id))
		return
	}
	if req.GraderType == model.GraderAuto && ex.AutoExerciseID == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("exercise has no auto exercise",
				model.FieldError{Field: "grader_type", Message: "AUTO requires an auto exercise"}))
		return
	}

	ex.GraderType = req.GraderType
	if req.AnonymousAutoassessEnabled != nil {
		ex.AnonymousAutoassessEnabled = *req.AnonymousAutoassessEnabled
	}
	if err := s.store.UpdateExercise(r.Context(), ex); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	s.logger.Info("grader switched", "exercise_id", id, "grader_type", ex.GraderType,
		"by", IdentityFromContext(r.Context()).UserID)
	respondOK(w, reqID, ex)
}
