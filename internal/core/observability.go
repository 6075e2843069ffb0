package core

import (
	"context"
	"time"
)

// Logger is the structured, leveled sink for pipeline events. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around service operations and pipeline phases.
type Tracer interface {
	Start(ctx context.Context, operation string, attrs ...SpanAttribute) (context.Context, TraceSpan)
}

// SpanAttribute annotates a span.
type SpanAttribute struct {
	Key   string
	Value string
}

// Span attribute keys set by the service.
const (
	AttrItemID = "itemcore.item_id"
	AttrAction = "itemcore.action"
)

func spanAttrs(action Action, itemID string) []SpanAttribute {
	var attrs []SpanAttribute
	if action != "" {
		attrs = append(attrs, SpanAttribute{Key: AttrAction, Value: string(action)})
	}
	if itemID != "" {
		attrs = append(attrs, SpanAttribute{Key: AttrItemID, Value: itemID})
	}
	return attrs
}

// TraceSpan is ended exactly once with the operation outcome.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string, _ ...SpanAttribute) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Pipeline event names emitted through Logger.
const (
	EventStageEntered      = "stage entered"
	EventStageFailed       = "stage failed"
	EventMutationCommitted = "mutation committed"
	EventSideEffectFailed  = "side effect failed"
)
