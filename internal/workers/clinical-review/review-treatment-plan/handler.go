// internal/workers/clinical-review/review-treatment-plan/handler.go
package reviewtreatmentplan

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"treatment-review/internal/app"
	"treatment-review/internal/common/errors"
	"treatment-review/internal/common/logger"
	"treatment-review/internal/common/validation"
	"treatment-review/internal/models"
)

const (
	TaskType = "review-treatment-plan"
)

// Reviewer is satisfied by *app.App.
type Reviewer interface {
	Review(ctx context.Context, req app.Request) (*models.Results, *models.RunRecord, error)
}

type Handler struct {
	config       *Config
	reviewer     Reviewer
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, reviewer Reviewer, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		reviewer:     reviewer,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := ParseInput(job.Variables)
	if err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, fmt.Sprintf("%d", job.Key), input)
	if err != nil {
		// The review context may have expired; broker commands get their own.
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return err
	}

	return h.completeJob(context.Background(), client, job, output)
}

// ParseInput decodes and validates job variables.
func ParseInput(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, errors.NewValidationFailedError("ReviewTreatmentPlanInput", []string{"$"})
	}

	result := validation.ValidateInput(raw, InputSchema())
	if !result.Valid {
		fields := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			fields[i] = e.Field
		}
		return nil, errors.NewValidationFailedError("ReviewTreatmentPlanInput", fields)
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewValidationFailedError("ReviewTreatmentPlanInput", []string{"$"})
	}
	if strings.TrimSpace(input.RecordText) == "" && input.DocumentPath == "" {
		return nil, errors.NewValidationFailedError("ReviewTreatmentPlanInput", []string{"recordText", "documentPath"})
	}
	return &input, nil
}

// Execute reviews one record. runID names the run in logs, sinks and the
// default output file.
func (h *Handler) Execute(ctx context.Context, runID string, input *Input) (*Output, error) {
	outputPath := input.OutputPath
	if outputPath == "" && h.config.OutputDir != "" {
		outputPath = filepath.Join(h.config.OutputDir, runID+".json")
	}

	res, run, err := h.reviewer.Review(ctx, app.Request{
		RunID:      runID,
		Record:     input.RecordText,
		InputPath:  input.DocumentPath,
		OutputPath: outputPath,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("treatment plan reviewed", map[string]interface{}{
		"runId":       run.RunID,
		"appropriate": res.FinalDecision.TreatmentPlanAppropriate,
	})

	return &Output{
		RunID:                    run.RunID,
		ChiefComplaint:           res.KeyPatientDetails.ChiefComplaint,
		TreatmentPlanAppropriate: res.FinalDecision.TreatmentPlanAppropriate,
		Justification:            res.FinalDecision.Justification,
		QuestionSource:           run.QuestionSource,
		CompletionCalls:          run.CompletionCalls,
		OutputPath:               outputPath,
		Results:                  res,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return err
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return errors.NewBrokerError("complete job", err, true)
	}
	return nil
}
