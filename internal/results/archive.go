package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/models"
)

// Sink stores a finished run somewhere other than the output file.
type Sink interface {
	Name() string
	Store(ctx context.Context, run *models.RunRecord) error
}

// Execer is satisfied by database.PostgresClient.
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Indexer is satisfied by database.ElasticsearchClient.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

const createRunsTable = `CREATE TABLE IF NOT EXISTS review_runs (
	run_id                     TEXT PRIMARY KEY,
	input_path                 TEXT NOT NULL DEFAULT '',
	output_path                TEXT NOT NULL DEFAULT '',
	model                      TEXT NOT NULL,
	chief_complaint            TEXT NOT NULL,
	treatment_plan_appropriate BOOLEAN NOT NULL,
	question_source            TEXT NOT NULL,
	completion_calls           INTEGER NOT NULL,
	duration_ms                BIGINT NOT NULL,
	started_at                 TIMESTAMPTZ NOT NULL,
	results                    JSONB NOT NULL
)`

const upsertRun = `INSERT INTO review_runs (
	run_id, input_path, output_path, model, chief_complaint, treatment_plan_appropriate,
	question_source, completion_calls, duration_ms, started_at, results
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id) DO UPDATE SET
	output_path = EXCLUDED.output_path,
	treatment_plan_appropriate = EXCLUDED.treatment_plan_appropriate,
	completion_calls = EXCLUDED.completion_calls,
	duration_ms = EXCLUDED.duration_ms,
	results = EXCLUDED.results`

// PostgresArchive stores runs in the review_runs table.
type PostgresArchive struct {
	db Execer
}

func NewPostgresArchive(db Execer) *PostgresArchive {
	return &PostgresArchive{db: db}
}

func (a *PostgresArchive) Name() string { return "postgres" }

// EnsureSchema creates the review_runs table if it does not exist.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, createRunsTable); err != nil {
		return apperrors.NewArchiveFailedError(a.Name(), err)
	}
	return nil
}

func (a *PostgresArchive) Store(ctx context.Context, run *models.RunRecord) error {
	payload, err := json.Marshal(run.Results)
	if err != nil {
		return apperrors.NewArchiveFailedError(a.Name(), fmt.Errorf("marshal results: %w", err))
	}

	_, err = a.db.Exec(ctx, upsertRun,
		run.RunID,
		run.InputPath,
		run.OutputPath,
		run.Model,
		run.ChiefComplaint,
		run.Appropriate,
		run.QuestionSource,
		run.CompletionCalls,
		run.DurationMs,
		run.StartedAt,
		payload,
	)
	if err != nil {
		return apperrors.NewArchiveFailedError(a.Name(), err)
	}
	return nil
}

// ElasticsearchIndex indexes runs for search, one document per run id.
type ElasticsearchIndex struct {
	client Indexer
	index  string
}

func NewElasticsearchIndex(client Indexer, index string) *ElasticsearchIndex {
	return &ElasticsearchIndex{client: client, index: index}
}

func (i *ElasticsearchIndex) Name() string { return "elasticsearch" }

func (i *ElasticsearchIndex) Store(ctx context.Context, run *models.RunRecord) error {
	if err := i.client.IndexDocument(ctx, i.index, run.RunID, run); err != nil {
		return apperrors.NewArchiveFailedError(i.Name(), err)
	}
	return nil
}
