package progress

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelSink records each event as an immediately-ended OpenTelemetry span,
// letting a trace backend correlate progress events with the rest of a
// request's distributed trace.
type OTelSink struct {
	tracer trace.Tracer
}

// NewOTelSink builds an OTelSink from tracer (e.g. otel.Tracer("workflowrunner")).
func NewOTelSink(tracer trace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

func (s *OTelSink) Emit(event Event) {
	ctx := context.Background()
	_, span := s.tracer.Start(ctx, string(event.Kind))
	defer span.End()
	s.annotate(span, event)
}

func (s *OTelSink) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := s.tracer.Start(ctx, string(event.Kind))
		s.annotate(span, event)
		span.End()
	}
	return nil
}

func (s *OTelSink) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("workflowrunner.conversation_id", event.ConversationID),
		attribute.String("workflowrunner.invocation_id", event.InvocationID),
		attribute.Int64("workflowrunner.seq", event.Seq),
		attribute.String("workflowrunner.owner", event.Owner),
		attribute.String("workflowrunner.node_id", event.NodeID),
	)
	for key, value := range event.Payload {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	if event.Kind == KindError {
		span.SetStatus(codes.Error, "node error")
	}
}

func (s *OTelSink) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}
