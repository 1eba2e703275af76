package model

import "time"

// Exercise is the context students submit solutions to.
type Exercise struct {
	ID                         string     `json:"id"`
	Title                      string     `json:"title"`
	GraderType                 GraderType `json:"grader_type"`
	AutoExerciseID             string     `json:"auto_exercise_id,omitempty"`
	AnonymousAutoassessEnabled bool       `json:"anonymous_autoassess_enabled"`
	CreatedAt                  time.Time  `json:"created_at"`
}

// IsAutoGraded reports whether submissions go through automatic grading.
func (e *Exercise) IsAutoGraded() bool {
	return e.GraderType == GraderAuto && e.AutoExerciseID != ""
}

// AutoExercise holds everything a grading backend needs besides the solution.
// Its ID is the grader identity handed to the scheduler.
type AutoExercise struct {
	ID             string    `json:"id"`
	GradingScript  string    `json:"grading_script"`
	ContainerImage string    `json:"container_image"`
	MaxTimeSec     int       `json:"max_time_sec"`
	MaxMemMB       int       `json:"max_mem_mb"`
	Assets         []Asset   `json:"assets"`
	CreatedAt      time.Time `json:"created_at"`
}

// Asset is a file placed next to the solution during grading.
type Asset struct {
	FileName    string `json:"file_name"`
	FileContent string `json:"file_content"`
}
