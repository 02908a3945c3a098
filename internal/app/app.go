// Package app ties document ingestion, the review pipeline, the results
// file and the optional sinks into one run.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"treatment-review/internal/common/logger"
	"treatment-review/internal/common/metrics"
	"treatment-review/internal/ingest"
	"treatment-review/internal/models"
	"treatment-review/internal/pipeline"
	"treatment-review/internal/results"
)

// Stages outside the pipeline that can fail a run.
const (
	StageReadDocument = "ReadDocument"
	StageWriteResults = "WriteResults"
)

// RunObserver is satisfied by *observability.Observability.
type RunObserver interface {
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

// Deps are the collaborators of an App. Sinks and Observer are optional.
type Deps struct {
	Reader   *ingest.Reader
	Pipeline *pipeline.Pipeline
	Writer   *results.FileWriter
	Sinks    []results.Sink
	Observer RunObserver
	Model    string
	Logger   logger.Logger
}

type App struct {
	reader   *ingest.Reader
	pipeline *pipeline.Pipeline
	writer   *results.FileWriter
	sinks    []results.Sink
	observer RunObserver
	model    string
	log      logger.Logger
}

func New(deps Deps) *App {
	a := &App{
		reader:   deps.Reader,
		pipeline: deps.Pipeline,
		writer:   deps.Writer,
		sinks:    deps.Sinks,
		observer: deps.Observer,
		model:    deps.Model,
		log:      deps.Logger,
	}
	if a.log == nil {
		a.log = logger.NewNoOpLogger()
	}
	if a.reader == nil {
		a.reader = ingest.NewReader(a.log)
	}
	return a
}

// Request is one review. Exactly one of Record and InputPath is used;
// Record wins when both are set. An empty OutputPath skips the file.
type Request struct {
	RunID      string
	Record     string
	InputPath  string
	OutputPath string
}

// ProcessFile reviews the record at inputPath and writes Results to
// outputPath. On failure no output file is written and the error is a
// *pipeline.StageError naming the failing stage.
func (a *App) ProcessFile(ctx context.Context, inputPath, outputPath string) (*models.Results, error) {
	res, _, err := a.Review(ctx, Request{InputPath: inputPath, OutputPath: outputPath})
	return res, err
}

// Review runs one request and returns the Results and the run record
// handed to the sinks.
func (a *App) Review(ctx context.Context, req Request) (*models.Results, *models.RunRecord, error) {
	started := time.Now()
	res, run, err := a.review(ctx, req, started)
	if a.observer != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		a.observer.RecordJobProcessed(ctx, status)
		a.observer.RecordJobDuration(ctx, time.Since(started), status)
	}
	return res, run, err
}

func (a *App) review(ctx context.Context, req Request, started time.Time) (*models.Results, *models.RunRecord, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	log := a.log.With(map[string]interface{}{"runId": req.RunID})

	record := req.Record
	if record == "" {
		if _, err := ingest.CheckExtension(req.InputPath); err != nil {
			return a.fail(log, StageReadDocument, err)
		}
		text, err := a.reader.Read(req.InputPath)
		if err != nil {
			return a.fail(log, StageReadDocument, err)
		}
		record = text
	}

	res, info, err := a.pipeline.Execute(ctx, pipeline.Request{RunID: req.RunID, Record: record})
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		log.Error("Review failed", map[string]interface{}{
			"error":           err.Error(),
			"completionCalls": info.CompletionCalls,
		})
		return nil, nil, err
	}

	if req.OutputPath != "" {
		if err := a.writer.Write(req.OutputPath, res); err != nil {
			return a.fail(log, StageWriteResults, err)
		}
		log.Info("Results written", map[string]interface{}{"outputPath": req.OutputPath})
	}

	run := &models.RunRecord{
		RunID:           req.RunID,
		InputPath:       req.InputPath,
		OutputPath:      req.OutputPath,
		Model:           a.model,
		ChiefComplaint:  res.KeyPatientDetails.ChiefComplaint,
		Appropriate:     res.FinalDecision.TreatmentPlanAppropriate,
		QuestionSource:  info.QuestionSource,
		CompletionCalls: info.CompletionCalls,
		DurationMs:      time.Since(started).Milliseconds(),
		StartedAt:       started.UTC(),
		Results:         res,
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	log.Info("Run finished", map[string]interface{}{
		"model":           run.Model,
		"durationMs":      run.DurationMs,
		"completionCalls": run.CompletionCalls,
		"appropriate":     run.Appropriate,
	})

	a.store(ctx, log, run)
	return res, run, nil
}

// store hands run to every sink. Sink failures never fail the run.
func (a *App) store(ctx context.Context, log logger.Logger, run *models.RunRecord) {
	for _, sink := range a.sinks {
		if err := sink.Store(ctx, run); err != nil {
			metrics.SinkFailures.WithLabelValues(sink.Name()).Inc()
			log.Warn("Sink failed", map[string]interface{}{
				"sink":  sink.Name(),
				"error": err.Error(),
			})
		}
	}
}

func (a *App) fail(log logger.Logger, stage string, err error) (*models.Results, *models.RunRecord, error) {
	metrics.RunsTotal.WithLabelValues("error").Inc()
	log.Error("Run failed", map[string]interface{}{"stage": stage, "error": err.Error()})
	return nil, nil, &pipeline.StageError{Stage: stage, Err: err}
}
