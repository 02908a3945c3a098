package results

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treatment-review/internal/common/database"
	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/models"
)

func sampleResults() *models.Results {
	return &models.Results{
		KeyPatientDetails: models.KeyPatientDetails{
			ChiefComplaint:        "migraine",
			ProposedTreatmentPlan: []string{"Sumatriptan 50mg as needed"},
			CurrentMedications: []models.Medication{
				{Name: "Sumatriptan", Dosage: "50mg", SideEffects: []string{"dizziness", "chest tightness"}},
			},
		},
		FollowUpQuestions: models.FollowUpQuestions{Questions: []string{"Has the patient tried other triptans?"}},
		FollowUpAnswers: models.FollowUpAnswers{Answers: []models.FollowUpAnswer{
			{Question: "Has the patient tried other triptans?", Answer: "No", Confidence: 6, Justification: "Not mentioned"},
		}},
		FinalDecision: models.FinalDecision{TreatmentPlanAppropriate: true, Justification: "First-line therapy"},
	}
}

func TestFileWriter_Write(t *testing.T) {
	w, err := NewFileWriter()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, w.Write(path, sampleResults()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got models.Results
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "migraine", got.KeyPatientDetails.ChiefComplaint)
	assert.Equal(t, []string{}, got.KeyPatientDetails.Allergies)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 4)
	for _, k := range []string{"key_patient_details", "follow_up_questions", "follow_up_answers", "final_decision"} {
		assert.Contains(t, raw, k)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestFileWriter_RejectsInvalidDocument(t *testing.T) {
	w, err := NewFileWriter()
	require.NoError(t, err)

	bad := sampleResults()
	bad.FollowUpAnswers.Answers[0].Confidence = 42

	path := filepath.Join(t.TempDir(), "out.json")
	err = w.Write(path, bad)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeOutputWriteFailed, apperrors.CodeOf(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileWriter_MissingDirectory(t *testing.T) {
	w, err := NewFileWriter()
	require.NoError(t, err)

	err = w.Write(filepath.Join(t.TempDir(), "missing", "out.json"), sampleResults())
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
}

func sampleRun() *models.RunRecord {
	return &models.RunRecord{
		RunID:           "3f8e5a70-6d0e-4b3a-9d55-2a7f4c1e9b10",
		InputPath:       "record.txt",
		OutputPath:      "out.json",
		Model:           "gpt-3.5-turbo-1106",
		ChiefComplaint:  "migraine",
		Appropriate:     true,
		QuestionSource:  models.QuestionSourceLibrary,
		CompletionCalls: 4,
		DurationMs:      1234,
		StartedAt:       time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Results:         sampleResults(),
	}
}

func TestPostgresArchive_Store(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	archive := NewPostgresArchive(database.NewPostgresFromDB(db))
	run := sampleRun()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS review_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_runs")).
		WithArgs(run.RunID, run.InputPath, run.OutputPath, run.Model, run.ChiefComplaint, true,
			models.QuestionSourceLibrary, 4, int64(1234), run.StartedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, archive.EnsureSchema(context.Background()))
	require.NoError(t, archive.Store(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArchive_StoreFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO review_runs").WillReturnError(errors.New("relation does not exist"))

	err = NewPostgresArchive(database.NewPostgresFromDB(db)).Store(context.Background(), sampleRun())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeArchiveFailed, apperrors.CodeOf(err))
}

type fakeIndexer struct {
	index, id string
	doc       interface{}
	err       error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, index, id string, doc interface{}) error {
	f.index, f.id, f.doc = index, id, doc
	return f.err
}

func TestElasticsearchIndex_Store(t *testing.T) {
	idx := &fakeIndexer{}
	sink := NewElasticsearchIndex(idx, "treatment-reviews")
	run := sampleRun()

	require.NoError(t, sink.Store(context.Background(), run))
	assert.Equal(t, "treatment-reviews", idx.index)
	assert.Equal(t, run.RunID, idx.id)
	assert.Same(t, run, idx.doc)

	idx.err = errors.New("cluster red")
	err := sink.Store(context.Background(), run)
	assert.Equal(t, apperrors.ErrCodeArchiveFailed, apperrors.CodeOf(err))
}
