package model

// AutoGradeStatus represents the automatic grading state of a Submission.
type AutoGradeStatus string

const (
	AutoGradeNone       AutoGradeStatus = "NONE"
	AutoGradeInProgress AutoGradeStatus = "IN_PROGRESS"
	AutoGradeCompleted  AutoGradeStatus = "COMPLETED"
	AutoGradeFailed     AutoGradeStatus = "FAILED"
)

// String returns the string representation of the status.
func (s AutoGradeStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s AutoGradeStatus) IsValid() bool {
	switch s {
	case AutoGradeNone, AutoGradeInProgress, AutoGradeCompleted, AutoGradeFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no automatic transition leaves this status.
// FAILED counts as terminal: only an explicit retry moves it again.
func (s AutoGradeStatus) IsTerminal() bool {
	switch s {
	case AutoGradeNone, AutoGradeCompleted, AutoGradeFailed:
		return true
	}
	return false
}

// ValidAutoGradeTransitions defines the allowed status transitions for Submissions.
// FAILED -> IN_PROGRESS is only taken by a teacher retry.
var ValidAutoGradeTransitions = map[AutoGradeStatus][]AutoGradeStatus{
	AutoGradeInProgress: {AutoGradeCompleted, AutoGradeFailed},
	AutoGradeFailed:     {AutoGradeInProgress},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s AutoGradeStatus) CanTransitionTo(next AutoGradeStatus) bool {
	for _, allowed := range ValidAutoGradeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RetryableFrom reports whether a teacher retry may start from status s.
// A teacher may re-run grading on any settled submission; a submission
// already IN_PROGRESS has a live grading attempt and must not get a second one.
func RetryableFrom(s AutoGradeStatus) bool {
	switch s {
	case AutoGradeNone, AutoGradeCompleted, AutoGradeFailed:
		return true
	}
	return false
}

// GraderType identifies who grades an exercise.
type GraderType string

const (
	GraderTeacher GraderType = "TEACHER"
	GraderAuto    GraderType = "AUTO"
)

// IsValid reports whether g is a known grader type.
func (g GraderType) IsValid() bool {
	return g == GraderTeacher || g == GraderAuto
}

// PriorityLevel classifies a grading request. Higher values are dispatched first.
type PriorityLevel int

const (
	PriorityAnonymous PriorityLevel = iota
	PriorityAuthenticated
)

// String returns the priority name.
func (p PriorityLevel) String() string {
	switch p {
	case PriorityAnonymous:
		return "ANONYMOUS"
	case PriorityAuthenticated:
		return "AUTHENTICATED"
	}
	return "UNKNOWN"
}

// Before reports whether work at priority p is preferred over work at q.
func (p PriorityLevel) Before(q PriorityLevel) bool {
	return p > q
}

// CallerType tags an observer handle with the kind of flow that created it.
type CallerType string

const (
	CallerStudent CallerType = "STUDENT"
	CallerTeacher CallerType = "TEACHER"
)
