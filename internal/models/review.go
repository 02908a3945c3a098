// internal/models/review.go
package models

// Medication is one entry of the patient's current medication list.
type Medication struct {
	Name        string   `json:"name"`
	Dosage      string   `json:"dosage"`
	SideEffects []string `json:"side_effects"`
}

// KeyPatientDetails is the structured extraction of a patient record.
type KeyPatientDetails struct {
	ChiefComplaint        string       `json:"chief_complaint"`
	ProposedTreatmentPlan []string     `json:"proposed_treatment_plan"`
	Allergies             []string     `json:"allergies"`
	CurrentMedications    []Medication `json:"current_medications"`
}

// SideEffects is the reply shape of a single-medication backfill query.
type SideEffects struct {
	SideEffects []string `json:"side_effects"`
}

type FollowUpQuestions struct {
	Questions []string `json:"questions"`
}

type FollowUpAnswer struct {
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	Confidence    int    `json:"confidence"`
	Justification string `json:"justification"`
}

type FollowUpAnswers struct {
	Answers []FollowUpAnswer `json:"answers"`
}

type FinalDecision struct {
	TreatmentPlanAppropriate bool   `json:"treatment_plan_appropriate"`
	Justification            string `json:"justification"`
}

// Results is the sole persisted output of a review run.
type Results struct {
	KeyPatientDetails KeyPatientDetails `json:"key_patient_details"`
	FollowUpQuestions FollowUpQuestions `json:"follow_up_questions"`
	FollowUpAnswers   FollowUpAnswers   `json:"follow_up_answers"`
	FinalDecision     FinalDecision     `json:"final_decision"`
}

// EnsureSlices replaces nil slices with empty ones so the document encodes
// arrays as [] rather than null.
func (r *Results) EnsureSlices() {
	d := &r.KeyPatientDetails
	if d.ProposedTreatmentPlan == nil {
		d.ProposedTreatmentPlan = []string{}
	}
	if d.Allergies == nil {
		d.Allergies = []string{}
	}
	if d.CurrentMedications == nil {
		d.CurrentMedications = []Medication{}
	}
	for i := range d.CurrentMedications {
		if d.CurrentMedications[i].SideEffects == nil {
			d.CurrentMedications[i].SideEffects = []string{}
		}
	}
	if r.FollowUpQuestions.Questions == nil {
		r.FollowUpQuestions.Questions = []string{}
	}
	if r.FollowUpAnswers.Answers == nil {
		r.FollowUpAnswers.Answers = []FollowUpAnswer{}
	}
}
