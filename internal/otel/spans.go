package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for summarizer spans and metrics.
var (
	AttrConversationID = attribute.Key("summarizer.conversation.id")
	AttrRunID          = attribute.Key("summarizer.run.id")
	AttrStage          = attribute.Key("summarizer.stage")
	AttrBlock          = attribute.Key("summarizer.block")
	AttrBlocks         = attribute.Key("summarizer.blocks")
	AttrOutcome        = attribute.Key("summarizer.outcome")
	AttrWindow         = attribute.Key("summarizer.window")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound completion-service call.
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
