// Package grader talks to the remote executors that run grading scripts.
package grader

import (
	"context"
	"errors"
	"fmt"

	"github.com/me/autograde/pkg/model"
)

// ErrNoExecutor is returned when no capable executor accepts work.
var ErrNoExecutor = errors.New("no executor available")

// Client grades a solution against the grader identified by graderID
// (an auto exercise id).
type Client interface {
	Grade(ctx context.Context, graderID, solution string) (*model.GradeResult, error)
}

// Backend is a single executor.
type Backend interface {
	Grade(ctx context.Context, req *Request) (*model.GradeResult, error)
}

// BackendFactory builds the Backend for an executor record.
type BackendFactory func(ex *model.Executor) Backend

// Request is the body of POST /v1/grade.
type Request struct {
	Submission    string        `json:"submission"`
	GradingScript string        `json:"grading_script"`
	Assets        []model.Asset `json:"assets"`
	ImageName     string        `json:"image_name"`
	MaxTimeSec    int           `json:"max_time_sec"`
	MaxMemMB      int           `json:"max_mem_mb"`
}

// NewRequest builds the request for solution under ae.
func NewRequest(ae *model.AutoExercise, solution string) *Request {
	assets := ae.Assets
	if assets == nil {
		assets = []model.Asset{}
	}
	return &Request{
		Submission:    solution,
		GradingScript: ae.GradingScript,
		Assets:        assets,
		ImageName:     ae.ContainerImage,
		MaxTimeSec:    ae.MaxTimeSec,
		MaxMemMB:      ae.MaxMemMB,
	}
}

// Error is a non-2xx answer from an executor.
type Error struct {
	Code    int
	Message string
	Path    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("executor error, request path: %s, code: %d, message: %s", e.Path, e.Code, e.Message)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, graderID, solution string) (*model.GradeResult, error)

func (f ClientFunc) Grade(ctx context.Context, graderID, solution string) (*model.GradeResult, error) {
	return f(ctx, graderID, solution)
}
