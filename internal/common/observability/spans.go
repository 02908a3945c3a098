package observability

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Logger is the subset of the common logger used for span output.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

// logSpanProcessor writes every ended span as one debug log line.
type logSpanProcessor struct {
	log Logger
}

// NewLogSpanProcessor returns a span processor that logs finished spans.
func NewLogSpanProcessor(log Logger) sdktrace.SpanProcessor {
	return &logSpanProcessor{log: log}
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := map[string]interface{}{
		"span":       s.Name(),
		"traceId":    s.SpanContext().TraceID().String(),
		"durationMs": s.EndTime().Sub(s.StartTime()).Milliseconds(),
		"status":     s.Status().Code.String(),
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	p.log.Debug("span finished", fields)
}

func (p *logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }
