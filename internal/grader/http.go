package grader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/me/autograde/pkg/model"
)

const gradePath = "/v1/grade"

// HTTPBackend sends grading requests to one executor over HTTP.
type HTTPBackend struct {
	name   string
	client *resty.Client
	logger *slog.Logger
}

// NewHTTPBackend creates a backend for the executor at baseURL.
// Timeouts come from the request context.
func NewHTTPBackend(name, baseURL string, logger *slog.Logger) *HTTPBackend {
	c := resty.New()
	c.SetBaseURL(strings.TrimRight(baseURL, "/"))
	c.SetHeader("Accept", "application/json")
	return &HTTPBackend{
		name:   name,
		client: c,
		logger: logger.With("component", "grader-http", "executor", name),
	}
}

// HTTPBackendFactory returns a BackendFactory producing HTTPBackends.
func HTTPBackendFactory(logger *slog.Logger) BackendFactory {
	return func(ex *model.Executor) Backend {
		return NewHTTPBackend(ex.Name, ex.BaseURL, logger)
	}
}

// Grade implements Backend.
func (b *HTTPBackend) Grade(ctx context.Context, req *Request) (*model.GradeResult, error) {
	var out struct {
		Grade    *int    `json:"grade"`
		Feedback *string `json:"feedback"`
	}

	r := b.client.R().SetContext(ctx)
	r.SetBody(req)
	r.SetResult(&out)

	resp, err := r.Execute(resty.MethodPost, gradePath)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", gradePath, err)
	}
	if resp.IsError() {
		return nil, &Error{
			Code:    resp.StatusCode(),
			Message: strings.TrimSpace(resp.String()),
			Path:    gradePath,
		}
	}
	if out.Grade == nil {
		return nil, fmt.Errorf("executor %s: response has no grade", b.name)
	}
	if *out.Grade < 0 || *out.Grade > 100 {
		return nil, fmt.Errorf("executor %s: grade %d out of range 0..100", b.name, *out.Grade)
	}

	b.logger.Debug("graded", "grade", *out.Grade, "duration", resp.Time())
	return &model.GradeResult{Grade: *out.Grade, Feedback: out.Feedback}, nil
}
