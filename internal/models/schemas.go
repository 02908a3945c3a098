// internal/models/schemas.go
package models

import "treatment-review/internal/common/validation"

// Schema names used in prompts, errors and metrics.
const (
	SchemaKeyPatientDetails = "KeyPatientDetails"
	SchemaSideEffects       = "SideEffects"
	SchemaFollowUpQuestions = "FollowUpQuestions"
	SchemaFollowUpAnswers   = "FollowUpAnswers"
	SchemaFinalDecision     = "FinalDecision"
	SchemaResults           = "Results"
)

func stringList(desc string) validation.Property {
	return validation.Property{
		Type:        "array",
		Description: desc,
		Items:       &validation.Property{Type: "string"},
	}
}

func medicationProperty() validation.Property {
	return validation.Property{
		Type:        "object",
		Description: "a medication the patient currently takes",
		Properties: map[string]validation.Property{
			"name":         {Type: "string", Description: "medication name"},
			"dosage":       {Type: "string", Description: "dose and frequency as written in the record"},
			"side_effects": stringList("known side effects of the medication, including ones not listed in the record"),
		},
		Required: []string{"name", "dosage", "side_effects"},
	}
}

func keyPatientDetailsProperties() map[string]validation.Property {
	return map[string]validation.Property{
		"chief_complaint": {
			Type:        "string",
			Description: "the patient's primary stated medical concern",
			MinLength:   validation.Int(1),
		},
		"proposed_treatment_plan": stringList("steps of the treatment plan the doctor proposes"),
		"allergies":               stringList("known allergies"),
		"current_medications": {
			Type:        "array",
			Description: "medications the patient is taking",
			Items: func() *validation.Property {
				p := medicationProperty()
				return &p
			}(),
		},
	}
}

var keyPatientDetailsRequired = []string{"chief_complaint", "proposed_treatment_plan", "allergies", "current_medications"}

// KeyPatientDetailsSchema describes the extraction reply.
func KeyPatientDetailsSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:                 "object",
		Description:          "key details extracted from a patient record",
		Properties:           keyPatientDetailsProperties(),
		Required:             keyPatientDetailsRequired,
		AdditionalProperties: true,
	}
}

// SideEffectsSchema describes the single-medication backfill reply.
func SideEffectsSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:        "object",
		Description: "known side effects of one medication",
		Properties: map[string]validation.Property{
			"side_effects": stringList("known side effects of the medication"),
		},
		Required:             []string{"side_effects"},
		AdditionalProperties: true,
	}
}

func questionsProperty() validation.Property {
	return validation.Property{
		Type:        "array",
		Description: "follow-up questions that help decide whether the treatment plan is appropriate",
		MinItems:    validation.Int(1),
		Items:       &validation.Property{Type: "string"},
	}
}

// FollowUpQuestionsSchema describes the question fallback reply.
func FollowUpQuestionsSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:                 "object",
		Description:          "follow-up questions about the patient record",
		Properties:           map[string]validation.Property{"questions": questionsProperty()},
		Required:             []string{"questions"},
		AdditionalProperties: true,
	}
}

func answerProperty() validation.Property {
	return validation.Property{
		Type: "object",
		Properties: map[string]validation.Property{
			"question": {Type: "string", Description: "the question being answered, verbatim"},
			"answer":   {Type: "string", Description: "the answer"},
			"confidence": {
				Type:        "integer",
				Description: "confidence in the answer, 0 (none) to 10 (very confident)",
				Minimum:     validation.Float(0),
				Maximum:     validation.Float(10),
			},
			"justification": {Type: "string", Description: "evidence from the record supporting the answer"},
		},
		Required: []string{"question", "answer", "confidence", "justification"},
	}
}

// FollowUpAnswersSchema describes the follow-up answers reply.
func FollowUpAnswersSchema() validation.JSONSchema {
	item := answerProperty()
	return validation.JSONSchema{
		Type:        "object",
		Description: "answers to the follow-up questions, in question order",
		Properties: map[string]validation.Property{
			"answers": {Type: "array", Description: "one answer per question", Items: &item},
		},
		Required:             []string{"answers"},
		AdditionalProperties: true,
	}
}

func finalDecisionProperties() map[string]validation.Property {
	return map[string]validation.Property{
		"treatment_plan_appropriate": {Type: "boolean", Description: "true if the proposed treatment plan is appropriate"},
		"justification":              {Type: "string", Description: "reasoning referencing the record and the follow-up answers"},
	}
}

// FinalDecisionSchema describes the verdict reply.
func FinalDecisionSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:                 "object",
		Description:          "final verdict on the proposed treatment plan",
		Properties:           finalDecisionProperties(),
		Required:             []string{"treatment_plan_appropriate", "justification"},
		AdditionalProperties: true,
	}
}

// ResultsSchema describes the output file document.
func ResultsSchema() validation.JSONSchema {
	answer := answerProperty()
	return validation.JSONSchema{
		Type:        "object",
		Description: "treatment review results",
		Properties: map[string]validation.Property{
			"key_patient_details": {
				Type:       "object",
				Properties: keyPatientDetailsProperties(),
				Required:   keyPatientDetailsRequired,
			},
			"follow_up_questions": {
				Type:       "object",
				Properties: map[string]validation.Property{"questions": questionsProperty()},
				Required:   []string{"questions"},
			},
			"follow_up_answers": {
				Type: "object",
				Properties: map[string]validation.Property{
					"answers": {Type: "array", Items: &answer},
				},
				Required: []string{"answers"},
			},
			"final_decision": {
				Type:       "object",
				Properties: finalDecisionProperties(),
				Required:   []string{"treatment_plan_appropriate", "justification"},
			},
		},
		Required: []string{"key_patient_details", "follow_up_questions", "follow_up_answers", "final_decision"},
	}
}
