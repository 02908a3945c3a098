package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treatment-review/internal/common/validation"
)

func TestResults_EnsureSlices(t *testing.T) {
	r := &Results{
		KeyPatientDetails: KeyPatientDetails{
			ChiefComplaint:     "migraine",
			CurrentMedications: []Medication{{Name: "Sumatriptan", Dosage: "50mg"}},
		},
		FollowUpQuestions: FollowUpQuestions{Questions: []string{"q"}},
	}
	r.EnsureSlices()

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "null")

	var doc interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	result := validation.ValidateDocument(doc, ResultsSchema())
	assert.True(t, result.Valid, "%v", result.GetErrorMessages())
}

func TestSchemas_RequireEveryField(t *testing.T) {
	tests := []struct {
		schema   validation.JSONSchema
		required []string
	}{
		{KeyPatientDetailsSchema(), []string{"chief_complaint", "proposed_treatment_plan", "allergies", "current_medications"}},
		{SideEffectsSchema(), []string{"side_effects"}},
		{FollowUpQuestionsSchema(), []string{"questions"}},
		{FollowUpAnswersSchema(), []string{"answers"}},
		{FinalDecisionSchema(), []string{"treatment_plan_appropriate", "justification"}},
	}

	for _, tt := range tests {
		assert.ElementsMatch(t, tt.required, tt.schema.Required)
		for _, name := range tt.required {
			assert.Contains(t, tt.schema.Properties, name)
		}
	}
}

func TestFollowUpAnswersSchema_ConfidenceRange(t *testing.T) {
	var doc interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"answers":[{"question":"q","answer":"a","confidence":12,"justification":"j"}]}`), &doc))

	result := validation.ValidateDocument(doc, FollowUpAnswersSchema())
	require.False(t, result.Valid)
	assert.Equal(t, "answers[0].confidence", result.Errors[0].Field)
}
