package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeGrading      ErrorCode = "GRADING_FAILED"
	ErrCodeTimeout      ErrorCode = "SERVER_TIMEOUT"
	ErrNotAutoGradeable ErrorCode = "NOT_AUTOGRADABLE"
)

// APIError is a structured error returned by the autograde API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError creates an INTERNAL_ERROR APIError.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrInternal, Message: msg}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s -> %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// Error taxonomy of the grading core.
var (
	// ErrGradingFailed marks a transient backend failure: unreachable, errored or timed out.
	ErrGradingFailed = errors.New("grading failed")

	// ErrInvariantViolation marks non-retryable programming or data errors.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrServerTimeout is returned when polling exhausts its budget while grading is still running.
	ErrServerTimeout = errors.New("grading still in progress, try again later")

	// ErrAlreadyObserved is returned when a second live handle is registered for a submission.
	ErrAlreadyObserved = fmt.Errorf("%w: submission already has an in-flight grading attempt", ErrInvariantViolation)

	// ErrNotAutoGradable is returned when automatic grading is requested for a teacher-graded exercise.
	ErrNotAutoGradable = fmt.Errorf("%w: exercise is not automatically graded", ErrInvariantViolation)

	// ErrRetryInFlight is returned when a retry targets a submission that is still being graded.
	ErrRetryInFlight = errors.New("submission is already being graded")
)

// GradingError wraps a backend failure for one grading request.
type GradingError struct {
	GraderID string
	Err      error
}

func (e *GradingError) Error() string {
	return fmt.Sprintf("grading %s: %v", e.GraderID, e.Err)
}

// Unwrap exposes the cause.
func (e *GradingError) Unwrap() error {
	return e.Err
}

// Is makes every GradingError match ErrGradingFailed.
func (e *GradingError) Is(target error) bool {
	return target == ErrGradingFailed
}
