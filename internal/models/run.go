// internal/models/run.go
package models

import "time"

// RunRecord is the metadata stored next to Results in the optional archive
// sinks. It is never part of the output file.
type RunRecord struct {
	RunID           string    `json:"runId" db:"run_id"`
	InputPath       string    `json:"inputPath,omitempty" db:"input_path"`
	OutputPath      string    `json:"outputPath,omitempty" db:"output_path"`
	Model           string    `json:"model" db:"model"`
	ChiefComplaint  string    `json:"chiefComplaint" db:"chief_complaint"`
	Appropriate     bool      `json:"treatmentPlanAppropriate" db:"treatment_plan_appropriate"`
	QuestionSource  string    `json:"questionSource" db:"question_source"`
	CompletionCalls int       `json:"completionCalls" db:"completion_calls"`
	DurationMs      int64     `json:"durationMs" db:"duration_ms"`
	StartedAt       time.Time `json:"startedAt" db:"started_at"`
	Results         *Results  `json:"results" db:"results"`
}

// Question sources recorded on a run.
const (
	QuestionSourceLibrary = "library"
	QuestionSourceModel   = "model"
)
