package prompt

import (
	"fmt"
	"strings"

	"treatment-review/internal/conversation"
	"treatment-review/internal/models"
)

var jsonRules = []string{
	"Reply with the JSON object only, no prose and no markdown fences.",
	"Use every field named in OUTPUT_SCHEMA; use an empty list when nothing applies.",
}

// KeyDetails asks for the structured extraction of a patient record.
func KeyDetails(record string) conversation.Message {
	return user(models.SchemaKeyPatientDetails, models.KeyPatientDetailsSchema(),
		"Fill in the data structure below with information from this patient record.",
		strings.TrimSpace(record),
		append([]string{
			"List known side effects for every medication even when the record does not mention them.",
		}, jsonRules...),
	)
}

// SideEffects asks for the known side effects of one medication.
func SideEffects(med models.Medication) conversation.Message {
	input := fmt.Sprintf("name: %s\ndosage: %s", med.Name, med.Dosage)
	return user(models.SchemaSideEffects, models.SideEffectsSchema(),
		"Fill in the data structure below with a list of known side effects for the following medication.",
		input,
		jsonRules,
	)
}

// FollowUpQuestionsRequest asks the model to propose follow-up questions when
// the library has none for the chief complaint.
func FollowUpQuestionsRequest(chiefComplaint string) conversation.Message {
	task := fmt.Sprintf("Given the chief complaint of %s, and the additional key information you have already identified, "+
		"what follow-up questions would you ask about this patient record in order to determine if the doctor's treatment plan is appropriate?",
		chiefComplaint)
	return user(models.SchemaFollowUpQuestions, models.FollowUpQuestionsSchema(), task, "",
		append([]string{"Provide at least one question."}, jsonRules...),
	)
}

// FollowUpAnswers asks for an answer to every question, in order.
func FollowUpAnswers(q models.FollowUpQuestions) conversation.Message {
	var input strings.Builder
	for i, question := range q.Questions {
		fmt.Fprintf(&input, "%d. %s\n", i+1, question)
	}
	return user(models.SchemaFollowUpAnswers, models.FollowUpAnswersSchema(),
		"Fill in the data structure below with answers to the following questions. "+
			"Answers should be based on the previously provided patient record and your expert medical knowledge.",
		input.String(),
		append([]string{
			fmt.Sprintf("Return exactly %d answers in the same order as the questions.", len(q.Questions)),
			"Copy each question verbatim into the question field.",
			"For each answer, justify your reasoning with conclusive evidence and give a confidence score from 0 to 10 where 10 is very confident.",
			"If an answer is negative, only give high confidence when the negative can be determined explicitly from the provided information rather than from a lack of evidence for a positive answer.",
		}, jsonRules...),
	)
}

// FinalDecision asks for the verdict. All context comes from the transcript.
func FinalDecision() conversation.Message {
	return user(models.SchemaFinalDecision, models.FinalDecisionSchema(),
		"Given the patient data, your previous answers, and your expert medical knowledge, "+
			"decide whether the doctor's treatment plan is appropriate.",
		"",
		append([]string{
			"treatment_plan_appropriate must be true or false.",
			"The justification must reference the data provided and your answers to the previous questions.",
		}, jsonRules...),
	)
}
