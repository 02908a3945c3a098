package pipeline

import (
	"fmt"

	apperrors "treatment-review/internal/common/errors"
)

// Stage names, in execution order.
const (
	StageExtractDetails           = "ExtractDetails"
	StageBackfillSideEffects      = "BackfillSideEffects"
	StageResolveFollowUpQuestions = "ResolveFollowUpQuestions"
	StageAnswerFollowUps          = "AnswerFollowUps"
	StageFinalDecision            = "FinalDecision"
	StageAssemble                 = "Assemble"
)

// Stages lists every stage in the order Run executes them.
var Stages = []string{
	StageExtractDetails,
	StageBackfillSideEffects,
	StageResolveFollowUpQuestions,
	StageAnswerFollowUps,
	StageFinalDecision,
	StageAssemble,
}

// StageError names the stage that aborted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrorCode reports the code of the underlying failure.
func (e *StageError) ErrorCode() apperrors.ErrorCode {
	return apperrors.CodeOf(e.Err)
}

// FollowUpMismatchError is returned when the model answers a different
// number of questions than it was asked.
type FollowUpMismatchError struct {
	Questions int
	Answers   int
}

func (e *FollowUpMismatchError) Error() string {
	return fmt.Sprintf("expected %d follow-up answers, got %d", e.Questions, e.Answers)
}

func (e *FollowUpMismatchError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeFollowUpMismatch
}
