// Package pipeline drives one treatment review: extraction, side-effect
// backfill, follow-up questions and answers, and the final decision.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"treatment-review/internal/common/logger"
	"treatment-review/internal/common/metrics"
	"treatment-review/internal/conversation"
	"treatment-review/internal/extraction"
	"treatment-review/internal/models"
	"treatment-review/internal/prompt"
)

// Sender is satisfied by *completion.Adapter.
type Sender interface {
	Send(ctx context.Context, tr *conversation.Transcript, msg conversation.Message) (string, error)
}

// Matcher is satisfied by *questions.Library.
type Matcher interface {
	Match(chiefComplaint string) (keyword string, questions []string, ok bool, err error)
}

// StageObserver is called after every stage with its duration and status
// ("ok" or "error").
type StageObserver func(ctx context.Context, stage string, duration time.Duration, status string)

type Options struct {
	// Library supplies canned follow-up questions. Nil always falls back to the model.
	Library        Matcher
	BackfillPolicy BackfillPolicy
	Tracer         trace.Tracer
	Logger         logger.Logger
	OnStage        StageObserver
}

type Pipeline struct {
	sender  Sender
	library Matcher
	policy  BackfillPolicy
	tracer  trace.Tracer
	log     logger.Logger
	onStage StageObserver
}

func New(sender Sender, opts Options) *Pipeline {
	p := &Pipeline{
		sender:  sender,
		library: opts.Library,
		policy:  opts.BackfillPolicy,
		tracer:  opts.Tracer,
		log:     opts.Logger,
		onStage: opts.OnStage,
	}
	if p.policy == "" {
		p.policy = BackfillKeep
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("treatment-review/pipeline")
	}
	if p.log == nil {
		p.log = logger.NewNoOpLogger()
	}
	return p
}

// Request is one record to review.
type Request struct {
	RunID  string
	Record string
}

// RunInfo describes how a run went. It is filled in as far as the run got,
// even when it fails.
type RunInfo struct {
	QuestionSource   string
	LibraryKeyword   string
	CompletionCalls  int
	Backfilled       []string
	BackfillFailures int
	Duration         time.Duration
	Transcript       *conversation.Transcript
}

// Run reviews record and returns the assembled Results. Any stage failure
// aborts the run with a *StageError.
func (p *Pipeline) Run(ctx context.Context, record string) (*models.Results, error) {
	results, _, err := p.Execute(ctx, Request{Record: record})
	return results, err
}

// Execute is Run with run metadata.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*models.Results, *RunInfo, error) {
	start := time.Now()
	r := &run{
		p:    p,
		tr:   conversation.New(prompt.SystemMessage()),
		info: &RunInfo{},
		log:  p.log.With(map[string]interface{}{"runId": req.RunID}),
	}
	r.info.Transcript = r.tr

	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("review.run_id", req.RunID),
		attribute.Int("review.record_bytes", len(req.Record)),
	))
	defer span.End()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageExtractDetails, func(ctx context.Context) error { return r.extractDetails(ctx, req.Record) }},
		{StageBackfillSideEffects, r.backfillSideEffects},
		{StageResolveFollowUpQuestions, r.resolveFollowUpQuestions},
		{StageAnswerFollowUps, r.answerFollowUps},
		{StageFinalDecision, r.finalDecision},
		{StageAssemble, r.assemble},
	}

	var err error
	for _, s := range steps {
		if err = r.stage(ctx, s.name, s.fn); err != nil {
			break
		}
	}

	r.info.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("review.completion_calls", r.info.CompletionCalls),
		attribute.String("review.question_source", r.info.QuestionSource),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, r.info, err
	}

	r.log.Info("Review completed", map[string]interface{}{
		"durationMs":      r.info.Duration.Milliseconds(),
		"completionCalls": r.info.CompletionCalls,
		"questionSource":  r.info.QuestionSource,
		"appropriate":     r.results.FinalDecision.TreatmentPlanAppropriate,
	})
	return r.results, r.info, nil
}

// run holds the state of one review. It is never shared between runs.
type run struct {
	p    *Pipeline
	tr   *conversation.Transcript
	info *RunInfo
	log  logger.Logger

	details   models.KeyPatientDetails
	questions models.FollowUpQuestions
	answers   models.FollowUpAnswers
	decision  models.FinalDecision
	results   *models.Results
}

func (r *run) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}

	ctx, span := r.p.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(
		attribute.String("review.stage", name),
	))
	defer span.End()

	r.log.Debug("Stage started", map[string]interface{}{"stage": name})
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Error("Stage failed", map[string]interface{}{
			"stage":      name,
			"durationMs": elapsed.Milliseconds(),
			"error":      err.Error(),
		})
	} else {
		span.SetStatus(codes.Ok, "")
		r.log.Info("Stage finished", map[string]interface{}{
			"stage":      name,
			"durationMs": elapsed.Milliseconds(),
		})
	}

	metrics.StageDuration.WithLabelValues(name, status).Observe(elapsed.Seconds())
	if r.p.onStage != nil {
		r.p.onStage(ctx, name, elapsed, status)
	}

	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

func (r *run) send(ctx context.Context, msg conversation.Message) (string, error) {
	r.info.CompletionCalls++
	return r.p.sender.Send(ctx, r.tr, msg)
}

func (r *run) extractDetails(ctx context.Context, record string) error {
	reply, err := r.send(ctx, prompt.KeyDetails(record))
	if err != nil {
		return err
	}
	details, err := extraction.Parse[models.KeyPatientDetails](reply, models.SchemaKeyPatientDetails, models.KeyPatientDetailsSchema())
	if err != nil {
		return err
	}
	r.details = details
	r.log.Info("Key details extracted", map[string]interface{}{
		"chiefComplaint": details.ChiefComplaint,
		"medications":    len(details.CurrentMedications),
	})
	return nil
}

func (r *run) backfillSideEffects(ctx context.Context) error {
	meds := r.details.CurrentMedications
	for i := range meds {
		if !NeedsBackfill(meds[i]) {
			continue
		}
		r.log.Info("Backfilling side effects", map[string]interface{}{
			"medication": meds[i].Name,
			"index":      i,
		})

		sideEffects, err := r.querySideEffects(ctx, meds[i])
		if err != nil {
			metrics.BackfillRequeries.WithLabelValues("error").Inc()
			if r.p.policy == BackfillAbort || ctx.Err() != nil {
				return fmt.Errorf("backfill %q: %w", meds[i].Name, err)
			}
			r.info.BackfillFailures++
			r.log.Warn("Side effect backfill failed, keeping previous value", map[string]interface{}{
				"medication": meds[i].Name,
				"error":      err.Error(),
			})
			continue
		}

		metrics.BackfillRequeries.WithLabelValues("ok").Inc()
		meds[i].SideEffects = sideEffects
		r.info.Backfilled = append(r.info.Backfilled, meds[i].Name)
	}
	return nil
}

func (r *run) querySideEffects(ctx context.Context, med models.Medication) ([]string, error) {
	reply, err := r.send(ctx, prompt.SideEffects(med))
	if err != nil {
		return nil, err
	}
	se, err := extraction.Parse[models.SideEffects](reply, models.SchemaSideEffects, models.SideEffectsSchema())
	if err != nil {
		return nil, err
	}
	return se.SideEffects, nil
}

func (r *run) resolveFollowUpQuestions(ctx context.Context) error {
	cc := r.details.ChiefComplaint
	if r.p.library != nil {
		keyword, qs, ok, err := r.p.library.Match(cc)
		if err != nil {
			return err
		}
		if ok {
			r.questions = models.FollowUpQuestions{Questions: qs}
			r.info.QuestionSource = models.QuestionSourceLibrary
			r.info.LibraryKeyword = keyword
			metrics.QuestionSource.WithLabelValues(models.QuestionSourceLibrary).Inc()
			r.log.Info("Follow-up questions taken from library", map[string]interface{}{
				"keyword":   keyword,
				"questions": len(qs),
			})
			return nil
		}
	}

	reply, err := r.send(ctx, prompt.FollowUpQuestionsRequest(cc))
	if err != nil {
		return err
	}
	q, err := extraction.Parse[models.FollowUpQuestions](reply, models.SchemaFollowUpQuestions, models.FollowUpQuestionsSchema())
	if err != nil {
		return err
	}
	r.questions = q
	r.info.QuestionSource = models.QuestionSourceModel
	metrics.QuestionSource.WithLabelValues(models.QuestionSourceModel).Inc()
	r.log.Info("Follow-up questions generated", map[string]interface{}{"questions": len(q.Questions)})
	return nil
}

func (r *run) answerFollowUps(ctx context.Context) error {
	reply, err := r.send(ctx, prompt.FollowUpAnswers(r.questions))
	if err != nil {
		return err
	}
	answers, err := extraction.Parse[models.FollowUpAnswers](reply, models.SchemaFollowUpAnswers, models.FollowUpAnswersSchema())
	if err != nil {
		return err
	}
	if len(answers.Answers) != len(r.questions.Questions) {
		return &FollowUpMismatchError{Questions: len(r.questions.Questions), Answers: len(answers.Answers)}
	}
	r.answers = answers
	return nil
}

func (r *run) finalDecision(ctx context.Context) error {
	reply, err := r.send(ctx, prompt.FinalDecision())
	if err != nil {
		return err
	}
	decision, err := extraction.Parse[models.FinalDecision](reply, models.SchemaFinalDecision, models.FinalDecisionSchema())
	if err != nil {
		return err
	}
	r.decision = decision
	return nil
}

func (r *run) assemble(context.Context) error {
	results := &models.Results{
		KeyPatientDetails: r.details,
		FollowUpQuestions: r.questions,
		FollowUpAnswers:   r.answers,
		FinalDecision:     r.decision,
	}
	results.EnsureSlices()
	r.results = results
	return nil
}
