// internal/workers/clinical-review/review-treatment-plan/models.go
package reviewtreatmentplan

import (
	"treatment-review/internal/common/validation"
	"treatment-review/internal/models"
)

// Input carries either the record text or a path to a .txt/.pdf record.
type Input struct {
	RecordText   string `json:"recordText"`
	DocumentPath string `json:"documentPath"`
	OutputPath   string `json:"outputPath"`
}

type Output struct {
	RunID                    string          `json:"runId"`
	ChiefComplaint           string          `json:"chiefComplaint"`
	TreatmentPlanAppropriate bool            `json:"treatmentPlanAppropriate"`
	Justification            string          `json:"justification"`
	QuestionSource           string          `json:"questionSource"`
	CompletionCalls          int             `json:"completionCalls"`
	OutputPath               string          `json:"outputPath,omitempty"`
	Results                  *models.Results `json:"results"`
}

// InputSchema describes the job variables read by the worker.
func InputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"recordText":   {Type: "string", Description: "free-text patient record"},
			"documentPath": {Type: "string", Description: "path to a .txt or .pdf patient record"},
			"outputPath":   {Type: "string", Description: "where to write the results file"},
		},
		AdditionalProperties: true,
	}
}
