// Package notify delivers best-effort messages to systems outside the
// grading core: operator mail and downstream grade sync.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// RetryFailure describes a teacher-requested regrade that failed.
type RetryFailure struct {
	ExerciseID   string
	SubmissionID string
	StudentID    string
	Solution     string
	Err          error
}

// Message renders the operator notification body.
func (f RetryFailure) Message() string {
	var b strings.Builder
	b.WriteString("Autoassessment failed\n\n")
	fmt.Fprintf(&b, "Exercise id: %s\n", f.ExerciseID)
	fmt.Fprintf(&b, "Submission id: %s\n", f.SubmissionID)
	fmt.Fprintf(&b, "Student id: %s\n", f.StudentID)
	if f.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", f.Err)
	}
	b.WriteString("Solution:\n\n")
	b.WriteString(f.Solution)
	return b.String()
}

// Operator notifies a human operator.
type Operator interface {
	NotifyRetryFailure(ctx context.Context, f RetryFailure) error
}

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridOperator mails notifications through SendGrid.
type SendGridOperator struct {
	key    string
	host   string
	from   *sgmail.Email
	to     *sgmail.Email
	logger *slog.Logger
}

// NewSendGridOperator creates an operator mailing to operatorAddr. host may
// be empty for the public SendGrid API.
func NewSendGridOperator(key, host, fromAddr, operatorAddr string, logger *slog.Logger) *SendGridOperator {
	if host == "" {
		host = sendGridHost
	}
	return &SendGridOperator{
		key:    key,
		host:   host,
		from:   sgmail.NewEmail("autograde", fromAddr),
		to:     sgmail.NewEmail("operator", operatorAddr),
		logger: logger.With("component", "notify-sendgrid"),
	}
}

func (o *SendGridOperator) prepare(subject, body string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(o.to)

	m := sgmail.NewV3Mail()
	m.SetFrom(o.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))
	return m
}

// NotifyRetryFailure implements Operator.
func (o *SendGridOperator) NotifyRetryFailure(ctx context.Context, f RetryFailure) error {
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	body := fmt.Sprintf("%s\n\n%s\n%s", f.Message(), id, now)

	req := sendgrid.GetRequest(o.key, sendGridEndpoint, o.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(o.prepare("autograde system notification "+id, body))

	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	o.logger.Info("operator notified", "notification_id", id, "submission_id", f.SubmissionID)
	return nil
}

// LogOperator writes notifications to the log. Used when mail is not configured.
type LogOperator struct {
	logger *slog.Logger
}

// NewLogOperator creates a LogOperator.
func NewLogOperator(logger *slog.Logger) *LogOperator {
	return &LogOperator{logger: logger.With("component", "notify-log")}
}

// NotifyRetryFailure implements Operator.
func (o *LogOperator) NotifyRetryFailure(_ context.Context, f RetryFailure) error {
	o.logger.Warn("operator notification (mail disabled)",
		"exercise_id", f.ExerciseID,
		"submission_id", f.SubmissionID,
		"student_id", f.StudentID,
		"message", f.Message(),
	)
	return nil
}
