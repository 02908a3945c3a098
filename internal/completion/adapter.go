package completion

import (
	"context"
	"sync/atomic"
	"time"

	"treatment-review/internal/common/logger"
	"treatment-review/internal/common/metrics"
	"treatment-review/internal/conversation"
)

// Adapter sends one message in the context of a transcript and records the
// exchange. It never retries; wrap the Client with Retry for that.
type Adapter struct {
	client  Client
	timeout time.Duration
	log     logger.Logger
	calls   atomic.Int64
}

// NewAdapter builds an adapter. A zero timeout means the caller's context
// alone bounds each call.
func NewAdapter(client Client, timeout time.Duration, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Adapter{client: client, timeout: timeout, log: log}
}

// Send appends msg to tr, asks the service for a reply given the whole
// transcript and appends the reply. On failure msg stays in the transcript,
// no reply is appended and the error is a *ServiceError.
func (a *Adapter) Send(ctx context.Context, tr *conversation.Transcript, msg conversation.Message) (string, error) {
	tr.Append(msg)
	a.calls.Add(1)

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := a.client.Complete(callCtx, tr.Messages())
	elapsed := time.Since(start)

	if err != nil {
		metrics.CompletionCalls.WithLabelValues("error").Inc()
		metrics.CompletionDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		a.log.Error("completion call failed", map[string]interface{}{
			"error":      err,
			"durationMs": elapsed.Milliseconds(),
			"messages":   tr.Len(),
		})
		return "", &ServiceError{Err: err}
	}

	metrics.CompletionCalls.WithLabelValues("ok").Inc()
	metrics.CompletionDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	a.log.Debug("completion call finished", map[string]interface{}{
		"durationMs": elapsed.Milliseconds(),
		"replyBytes": len(reply),
	})

	tr.Append(conversation.Message{Role: conversation.RoleAssistant, Content: reply})
	return reply, nil
}

// Calls reports how many Send calls the adapter has made.
func (a *Adapter) Calls() int {
	return int(a.calls.Load())
}
