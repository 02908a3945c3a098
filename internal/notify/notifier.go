// Package notify alerts reviewers when a treatment plan is judged
// inappropriate.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/common/logger"
	"treatment-review/internal/models"
)

// Publisher is satisfied by aws.SNSClient.
type Publisher interface {
	PublishToTopic(ctx context.Context, topicARN, subject, message string, attrs map[string]string) (string, error)
}

// Mailer is satisfied by aws.SESClient.
type Mailer interface {
	SendText(ctx context.Context, from string, to []string, subject, body string) (string, error)
}

type Config struct {
	TopicARN   string
	FromEmail  string
	Recipients []string
}

// Notifier publishes a verdict to an SNS topic and emails the recipients.
// Either channel is skipped when its client or addressing is missing.
type Notifier struct {
	cfg       Config
	publisher Publisher
	mailer    Mailer
	log       logger.Logger
}

func New(cfg Config, publisher Publisher, mailer Mailer, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Notifier{cfg: cfg, publisher: publisher, mailer: mailer, log: log}
}

func (n *Notifier) Name() string { return "notifications" }

// Store implements results.Sink.
func (n *Notifier) Store(ctx context.Context, run *models.RunRecord) error {
	return n.Notify(ctx, run)
}

// Notify sends alerts for run when its plan was judged inappropriate and
// does nothing otherwise. Both channels are attempted; the errors are joined.
func (n *Notifier) Notify(ctx context.Context, run *models.RunRecord) error {
	if run == nil || run.Appropriate {
		return nil
	}

	subject := Subject(run)
	body := Body(run)
	var errs []error

	if n.publisher != nil && n.cfg.TopicARN != "" {
		id, err := n.publisher.PublishToTopic(ctx, n.cfg.TopicARN, subject, body, map[string]string{
			"runId":          run.RunID,
			"chiefComplaint": run.ChiefComplaint,
		})
		if err != nil {
			errs = append(errs, apperrors.NewNotificationSendFailedError("sns", err))
		} else {
			n.log.Info("Verdict published", map[string]interface{}{"runId": run.RunID, "messageId": id})
		}
	}

	if n.mailer != nil && n.cfg.FromEmail != "" && len(n.cfg.Recipients) > 0 {
		id, err := n.mailer.SendText(ctx, n.cfg.FromEmail, n.cfg.Recipients, subject, body)
		if err != nil {
			errs = append(errs, apperrors.NewNotificationSendFailedError("email", err))
		} else {
			n.log.Info("Verdict emailed", map[string]interface{}{
				"runId":      run.RunID,
				"messageId":  id,
				"recipients": len(n.cfg.Recipients),
			})
		}
	}

	return stderrors.Join(errs...)
}

// Subject is the alert subject line. SNS caps subjects at 100 characters.
func Subject(run *models.RunRecord) string {
	s := "Treatment plan flagged: " + run.ChiefComplaint
	if len(s) > 100 {
		s = s[:97] + "..."
	}
	return s
}

// Body is the plain-text alert.
func Body(run *models.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", run.RunID)
	if run.InputPath != "" {
		fmt.Fprintf(&b, "Record: %s\n", run.InputPath)
	}
	fmt.Fprintf(&b, "Chief complaint: %s\n", run.ChiefComplaint)
	if run.Results != nil {
		details := run.Results.KeyPatientDetails
		if len(details.ProposedTreatmentPlan) > 0 {
			fmt.Fprintf(&b, "Proposed plan: %s\n", strings.Join(details.ProposedTreatmentPlan, "; "))
		}
		fmt.Fprintf(&b, "\nJustification:\n%s\n", run.Results.FinalDecision.Justification)
	}
	return b.String()
}
