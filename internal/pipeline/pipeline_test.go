package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/common/logger"
	"treatment-review/internal/completion"
	"treatment-review/internal/completion/completiontest"
	"treatment-review/internal/conversation"
	"treatment-review/internal/extraction"
	"treatment-review/internal/models"
	"treatment-review/internal/questions"
)

const record = `Patient: Jane Doe, 41. Chief complaint: migraine with aura.
Current medications: sertraline 50mg daily, ibuprofen 400mg as needed.
Allergies: penicillin. Plan: start sumatriptan 50mg at onset.`

const detailsReply = `{
  "chief_complaint": "migraine with aura",
  "proposed_treatment_plan": ["sumatriptan 50mg at onset"],
  "allergies": ["penicillin"],
  "current_medications": [
    {"name": "sertraline", "dosage": "50mg daily", "side_effects": ["N/A"]},
    {"name": "ibuprofen", "dosage": "400mg as needed", "side_effects": ["stomach upset"]}
  ]
}`

const decisionReply = `{"treatment_plan_appropriate": false, "justification": "Sertraline with a triptan risks serotonin syndrome."}`

func answersReply(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = `{"question": "q", "answer": "no", "confidence": 7, "justification": "not in record"}`
	}
	return `{"answers": [` + strings.Join(items, ",") + `]}`
}

func testLibrary(t *testing.T) *questions.Library {
	t.Helper()
	lib, err := questions.Parse([]byte(`{
		"migraine": ["Has the patient tried other triptans?", "How often do the headaches occur?"],
		"back pain": ["Is the pain radiating?"]
	}`), questions.MatchFirst)
	require.NoError(t, err)
	return lib
}

func newPipeline(t *testing.T, client completion.Client, opts Options) *Pipeline {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logger.NewTestLogger(t)
	}
	return New(completion.NewAdapter(client, time.Second, opts.Logger), opts)
}

func TestPipeline_Run(t *testing.T) {
	tests := []struct {
		name           string
		replies        map[string][]string
		library        bool
		policy         BackfillPolicy
		expectedError  bool
		expectedStage  string
		expectedCode   apperrors.ErrorCode
		expectedCalls  int
		validateOutput func(t *testing.T, res *models.Results, info *RunInfo)
	}{
		{
			name: "library hit with one backfill",
			replies: map[string][]string{
				models.SchemaKeyPatientDetails: {detailsReply},
				models.SchemaSideEffects:       {`{"side_effects": ["nausea", "insomnia"]}`},
				models.SchemaFollowUpAnswers:   {answersReply(2)},
				models.SchemaFinalDecision:     {decisionReply},
			},
			library:       true,
			expectedCalls: 4,
			validateOutput: func(t *testing.T, res *models.Results, info *RunInfo) {
				meds := res.KeyPatientDetails.CurrentMedications
				assert.Equal(t, []string{"nausea", "insomnia"}, meds[0].SideEffects)
				assert.Equal(t, []string{"stomach upset"}, meds[1].SideEffects)
				assert.Equal(t, "Has the patient tried other triptans?", res.FollowUpQuestions.Questions[0])
				assert.Len(t, res.FollowUpAnswers.Answers, 2)
				assert.False(t, res.FinalDecision.TreatmentPlanAppropriate)

				assert.Equal(t, models.QuestionSourceLibrary, info.QuestionSource)
				assert.Equal(t, "migraine", info.LibraryKeyword)
				assert.Equal(t, []string{"sertraline"}, info.Backfilled)
				// system + two entries per call
				assert.Equal(t, 1+2*4, info.Transcript.Len())
			},
		},
		{
			name: "library miss falls back to the model",
			replies: map[string][]string{
				models.SchemaKeyPatientDetails: {strings.Replace(detailsReply, `"N/A"`, `"serotonin syndrome"`, 1)},
				models.SchemaFollowUpQuestions: {`{"questions": ["Any history of stroke?"]}`},
				models.SchemaFollowUpAnswers:   {answersReply(1)},
				models.SchemaFinalDecision:     {decisionReply},
			},
			library:       false,
			expectedCalls: 4,
			validateOutput: func(t *testing.T, res *models.Results, info *RunInfo) {
				assert.Equal(t, []string{"Any history of stroke?"}, res.FollowUpQuestions.Questions)
				assert.Equal(t, models.QuestionSourceModel, info.QuestionSource)
				assert.Empty(t, info.Backfilled)
			},
		},
		{
			name: "answer count mismatch",
			replies: map[string][]string{
				models.SchemaKeyPatientDetails: {detailsReply},
				models.SchemaSideEffects:       {`{"side_effects": ["nausea"]}`},
				models.SchemaFollowUpAnswers:   {answersReply(1)},
			},
			library:       true,
			expectedError: true,
			expectedStage: StageAnswerFollowUps,
			expectedCode:  apperrors.ErrCodeFollowUpMismatch,
			expectedCalls: 3,
		},
		{
			name: "invalid extraction is fatal",
			replies: map[string][]string{
				models.SchemaKeyPatientDetails: {`{"chief_complaint": "migraine"}`},
			},
			library:       true,
			expectedError: true,
			expectedStage: StageExtractDetails,
			expectedCode:  apperrors.ErrCodeValidationFailed,
			expectedCalls: 1,
			validateOutput: func(t *testing.T, res *models.Results, info *RunInfo) {
				assert.Equal(t, 3, info.Transcript.Len())
			},
		},
		{
			name: "bad backfill reply kept under keep policy",
			replies: map[string][]string{
				models.SchemaKeyPatientDetails: {detailsReply},
				models.SchemaSideEffects:       {`not json`},
				models.SchemaFollowUpAnswers:   {answersReply(2)},
				models.SchemaFinalDecision:     {decisionReply},
			},
			library:       true,
			policy:        BackfillKeep,
			expectedCalls: 4,
			validateOutput: func(t *testing.T, res *models.Results, info *RunInfo) {
				assert.Equal(t, []string{"N/A"}, res.KeyPatientDetails.CurrentMedications[0].SideEffects)
				assert.Equal(t, 1, info.BackfillFailures)
			},
		},
		{
			name: "bad backfill reply aborts under abort policy",
			replies: map[string][]string{
				models.SchemaKeyPatientDetails: {detailsReply},
				models.SchemaSideEffects:       {`{"side_effects": "nausea"}`},
			},
			library:       true,
			policy:        BackfillAbort,
			expectedError: true,
			expectedStage: StageBackfillSideEffects,
			expectedCode:  apperrors.ErrCodeValidationFailed,
			expectedCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := completiontest.BySchema(tt.replies)
			opts := Options{BackfillPolicy: tt.policy}
			if tt.library {
				opts.Library = testLibrary(t)
			}
			p := newPipeline(t, stub, opts)

			res, info, err := p.Execute(context.Background(), Request{RunID: "run-1", Record: record})
			require.NotNil(t, info)
			assert.Equal(t, tt.expectedCalls, info.CompletionCalls)
			assert.Equal(t, tt.expectedCalls, stub.Calls())

			if tt.expectedError {
				require.Error(t, err)
				assert.Nil(t, res)
				var stageErr *StageError
				require.ErrorAs(t, err, &stageErr)
				assert.Equal(t, tt.expectedStage, stageErr.Stage)
				assert.Equal(t, tt.expectedCode, apperrors.CodeOf(err))
			} else {
				require.NoError(t, err)
				require.NotNil(t, res)
			}

			if tt.validateOutput != nil {
				tt.validateOutput(t, res, info)
			}
		})
	}
}

func TestPipeline_BackfillTriggers(t *testing.T) {
	tests := []struct {
		name        string
		sideEffects string
		requeries   int
	}{
		{name: "N/A", sideEffects: `["N/A"]`, requeries: 1},
		{name: "empty", sideEffects: `[]`, requeries: 1},
		{name: "none", sideEffects: `["none"]`, requeries: 1},
		{name: "known", sideEffects: `["drowsiness"]`, requeries: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := `{"chief_complaint": "back pain", "proposed_treatment_plan": ["rest"], "allergies": [],
				"current_medications": [{"name": "cyclobenzaprine", "dosage": "10mg", "side_effects": ` + tt.sideEffects + `}]}`
			var sideEffectCalls int
			stub := completiontest.New(func(msgs []conversation.Message) (string, error) {
				last := completiontest.LastUserMessage(msgs)
				switch {
				case strings.Contains(last, "named KeyPatientDetails"):
					return details, nil
				case strings.Contains(last, "named SideEffects"):
					sideEffectCalls++
					assert.Contains(t, last, "cyclobenzaprine")
					return `{"side_effects": ["drowsiness", "dry mouth"]}`, nil
				case strings.Contains(last, "named FollowUpAnswers"):
					return answersReply(1), nil
				default:
					return decisionReply, nil
				}
			})

			p := newPipeline(t, stub, Options{Library: testLibrary(t)})
			res, err := p.Run(context.Background(), "record")
			require.NoError(t, err)
			assert.Equal(t, tt.requeries, sideEffectCalls)
			assert.NotEmpty(t, res.KeyPatientDetails.CurrentMedications[0].SideEffects)
		})
	}
}

func TestPipeline_LibraryHitMakesNoQuestionCall(t *testing.T) {
	stub := completiontest.BySchema(map[string][]string{
		models.SchemaKeyPatientDetails: {strings.Replace(detailsReply, `"N/A"`, `"nausea"`, 1)},
		models.SchemaFollowUpAnswers:   {answersReply(2)},
		models.SchemaFinalDecision:     {decisionReply},
	})
	p := newPipeline(t, stub, Options{Library: testLibrary(t)})

	_, info, err := p.Execute(context.Background(), Request{Record: record})
	require.NoError(t, err)
	assert.Equal(t, 3, info.CompletionCalls)
	for i := 0; i < stub.Calls(); i++ {
		assert.NotContains(t, completiontest.LastUserMessage(stub.Call(i)), "named FollowUpQuestions")
	}
}

func TestPipeline_ServiceErrorNamesStage(t *testing.T) {
	calls := 0
	stub := completiontest.New(func(msgs []conversation.Message) (string, error) {
		calls++
		if calls == 1 {
			return strings.Replace(detailsReply, `"N/A"`, `"nausea"`, 1), nil
		}
		return "", errors.New("503 service unavailable")
	})
	p := newPipeline(t, stub, Options{})

	_, err := p.Run(context.Background(), record)
	require.Error(t, err)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageResolveFollowUpQuestions, stageErr.Stage)
	assert.Equal(t, apperrors.ErrCodeCompletionServiceFailed, stageErr.ErrorCode())

	var svcErr *completion.ServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestPipeline_FencedRepliesAccepted(t *testing.T) {
	stub := completiontest.BySchema(map[string][]string{
		models.SchemaKeyPatientDetails: {"```json\n" + strings.Replace(detailsReply, `"N/A"`, `"nausea"`, 1) + "\n```"},
		models.SchemaFollowUpAnswers:   {answersReply(2)},
		models.SchemaFinalDecision:     {"Here you go:\n```json\n" + decisionReply + "\n```"},
	})
	p := newPipeline(t, stub, Options{Library: testLibrary(t)})

	res, err := p.Run(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "migraine with aura", res.KeyPatientDetails.ChiefComplaint)
}

func TestPipeline_CanceledContext(t *testing.T) {
	stub := completiontest.Script()
	p := newPipeline(t, stub, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, record)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stub.Calls())
}

func TestPipeline_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var observed []string
	stub := completiontest.BySchema(map[string][]string{
		models.SchemaKeyPatientDetails: {strings.Replace(detailsReply, `"N/A"`, `"nausea"`, 1)},
		models.SchemaFollowUpAnswers:   {answersReply(2)},
		models.SchemaFinalDecision:     {decisionReply},
	})
	p := newPipeline(t, stub, Options{
		Library: testLibrary(t),
		Tracer:  tp.Tracer("test"),
		OnStage: func(_ context.Context, stage string, _ time.Duration, status string) {
			observed = append(observed, stage+":"+status)
		},
	})

	_, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	for _, stage := range Stages {
		assert.Contains(t, names, "pipeline."+stage)
	}
	assert.Contains(t, names, "pipeline.Run")
	require.Len(t, observed, len(Stages))
	assert.Equal(t, StageExtractDetails+":ok", observed[0])
	assert.Equal(t, StageAssemble+":ok", observed[len(observed)-1])
}

func TestStageError_UnwrapsValidation(t *testing.T) {
	inner := &extraction.ValidationError{Schema: models.SchemaFinalDecision}
	err := &StageError{Stage: StageFinalDecision, Err: inner}

	var vErr *extraction.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, err.Error(), StageFinalDecision)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, err.ErrorCode())
}
