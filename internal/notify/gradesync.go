package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"
)

// GradeSync pushes a student's current grade to a downstream gradebook.
type GradeSync interface {
	SyncGrade(ctx context.Context, exerciseID, studentID string) error
}

// WebhookGradeSync POSTs {exercise_id, student_id} to a URL.
type WebhookGradeSync struct {
	url    string
	client *resty.Client
	logger *slog.Logger
}

// NewWebhookGradeSync creates a webhook sync.
func NewWebhookGradeSync(url string, logger *slog.Logger) *WebhookGradeSync {
	return &WebhookGradeSync{
		url:    url,
		client: resty.New(),
		logger: logger.With("component", "grade-sync"),
	}
}

// SyncGrade implements GradeSync.
func (s *WebhookGradeSync) SyncGrade(ctx context.Context, exerciseID, studentID string) error {
	r := s.client.R().SetContext(ctx)
	r.SetBody(map[string]string{
		"exercise_id": exerciseID,
		"student_id":  studentID,
	})
	resp, err := r.Execute(resty.MethodPost, s.url)
	if err != nil {
		return fmt.Errorf("grade sync: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("grade sync: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	s.logger.Debug("grade synced", "exercise_id", exerciseID, "student_id", studentID)
	return nil
}

// NopGradeSync does nothing.
type NopGradeSync struct{}

// SyncGrade implements GradeSync.
func (NopGradeSync) SyncGrade(context.Context, string, string) error { return nil }
