package model

import "time"

// Submission is one solution a student handed in for an exercise.
type Submission struct {
	ID               string          `json:"id"`
	ExerciseID       string          `json:"exercise_id"`
	StudentID        string          `json:"student_id"`
	Solution         string          `json:"solution"`
	Number           int             `json:"number"` // Per (exercise, student) sequence, starting at 1
	AutoGradeStatus  AutoGradeStatus `json:"autograde_status"`
	Grade            *int            `json:"grade"`
	IsAutoGrade      bool            `json:"is_autograde"`
	AutoFeedback     *string         `json:"feedback_auto,omitempty"`
	CreatedAt        time.Time       `json:"submission_time"`
	GradingStartedAt *time.Time      `json:"grading_started_at,omitempty"` // Start of the current grading attempt
}

// AutomaticAssessment is one result returned by a grading backend.
type AutomaticAssessment struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	Grade        int       `json:"grade"`
	Feedback     *string   `json:"feedback"`
	CreatedAt    time.Time `json:"created_at"`
}

// TeacherActivity is one episode of a teacher grading or commenting a submission.
// Writes close together in time are merged into the same row.
type TeacherActivity struct {
	ID               string     `json:"id"`
	SubmissionID     string     `json:"submission_id"`
	TeacherID        string     `json:"teacher_id"`
	Grade            *int       `json:"grade"`
	Feedback         *string    `json:"feedback"`
	MergeWindowStart time.Time  `json:"merge_window_start"`
	EditedAt         *time.Time `json:"edited_at,omitempty"`
}

// IsEmpty reports whether the activity carries neither grade nor feedback.
func (a *TeacherActivity) IsEmpty() bool {
	return a.Grade == nil && a.Feedback == nil
}

// AnonymousSubmission is a graded solution from an unauthenticated user.
// Only the newest rows per exercise are kept.
type AnonymousSubmission struct {
	ID         string    `json:"id"`
	ExerciseID string    `json:"exercise_id"`
	Solution   string    `json:"solution"`
	Grade      int       `json:"grade"`
	Feedback   *string   `json:"feedback"`
	CreatedAt  time.Time `json:"created_at"`
}

// GradeResult is the outcome of one grading backend call.
type GradeResult struct {
	Grade    int     `json:"grade"`
	Feedback *string `json:"feedback"`
}

// LatestSubmission is the student-facing view of a submission with its
// most recent automatic and teacher assessments.
type LatestSubmission struct {
	ID              string          `json:"id"`
	Number          int             `json:"number"`
	Solution        string          `json:"solution"`
	SubmissionTime  time.Time       `json:"submission_time"`
	AutoGradeStatus AutoGradeStatus `json:"autograde_status"`
	Grade           *int            `json:"grade"`
	IsAutoGrade     bool            `json:"is_autograde"`
	GradeAuto       *int            `json:"grade_auto"`
	FeedbackAuto    *string         `json:"feedback_auto"`
	GradeTeacher    *int            `json:"grade_teacher"`
	FeedbackTeacher *string         `json:"feedback_teacher"`
}

// NewLatestSubmission assembles the view. auto and teacher may be nil.
func NewLatestSubmission(sub *Submission, auto *AutomaticAssessment, teacher *TeacherActivity) *LatestSubmission {
	ls := &LatestSubmission{
		ID:              sub.ID,
		Number:          sub.Number,
		Solution:        sub.Solution,
		SubmissionTime:  sub.CreatedAt,
		AutoGradeStatus: sub.AutoGradeStatus,
		Grade:           sub.Grade,
		IsAutoGrade:     sub.IsAutoGrade,
	}
	if auto != nil {
		g := auto.Grade
		ls.GradeAuto = &g
		ls.FeedbackAuto = auto.Feedback
	}
	if teacher != nil {
		ls.GradeTeacher = teacher.Grade
		ls.FeedbackTeacher = teacher.Feedback
	}
	return ls
}
