package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/me/autograde/internal/grading"
	"github.com/me/autograde/internal/store"
	"github.com/me/autograde/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

func respondNoContent(w http.ResponseWriter, reqID string) {
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusNoContent)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// respondServiceError maps errors from the grading core to HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := RequestIDFromContext(r.Context())

	var apiErr *model.APIError
	var te *model.InvalidTransitionError
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case model.ErrValidation:
			status = http.StatusBadRequest
		case model.ErrNotFound:
			status = http.StatusNotFound
		case model.ErrConflict:
			status = http.StatusConflict
		}
		respondError(w, reqID, status, apiErr)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, reqID, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: err.Error()})
	case errors.Is(err, model.ErrGradingFailed):
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{Code: model.ErrCodeGrading, Message: err.Error()})
	case errors.Is(err, model.ErrServerTimeout):
		respondError(w, reqID, http.StatusGatewayTimeout, &model.APIError{Code: model.ErrCodeTimeout, Message: err.Error()})
	case errors.Is(err, model.ErrNotAutoGradable):
		respondError(w, reqID, http.StatusUnprocessableEntity, &model.APIError{Code: model.ErrNotAutoGradeable, Message: err.Error()})
	case errors.Is(err, model.ErrRetryInFlight), errors.Is(err, model.ErrAlreadyObserved), errors.As(err, &te):
		respondError(w, reqID, http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: err.Error()})
	case errors.Is(err, grading.ErrAnonymousDisabled):
		respondError(w, reqID, http.StatusForbidden, &model.APIError{Code: model.ErrForbidden, Message: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client went away or its deadline passed; nobody reads this.
		respondError(w, reqID, http.StatusGatewayTimeout, &model.APIError{Code: model.ErrCodeTimeout, Message: err.Error()})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", reqID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
	}
}

// decodeBody decodes a JSON body into dst and runs its validate tags.
func (s *Server) decodeBody(r *http.Request, dst any) *model.APIError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &model.APIError{
			Code:    model.ErrValidation,
			Message: "invalid JSON body: " + err.Error(),
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return model.NewValidationError(err.Error())
		}
		details := make([]model.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, model.FieldError{
				Field:   fe.Field(),
				Message: fieldMessage(fe),
			})
		}
		return model.NewValidationError("invalid request", details...)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a URL"
	case "required_if":
		return "is required for " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}
