package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartTaskSpan opens a span covering one task body's execution.
func StartTaskSpan(ctx context.Context, poolIndex, taskIndex int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "task.run",
		trace.WithAttributes(AttrPoolIndex.Int(poolIndex), AttrTaskIndex.Int(taskIndex)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartIOSpan opens a span covering one I/O request's drive-to-completion.
func StartIOSpan(ctx context.Context, reqType string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "io.request",
		trace.WithAttributes(AttrIORequestType.String(reqType)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records err on span and marks it failed.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks span as having completed successfully.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Attribute keys used across corert spans.
var (
	AttrPoolIndex      = attribute.Key("corert.task.pool_index")
	AttrTaskIndex      = attribute.Key("corert.task.task_index")
	AttrIORequestType  = attribute.Key("corert.io.request_type")
	AttrStealVictim    = attribute.Key("corert.task.steal_victim")
	AttrBytesTransferred = attribute.Key("corert.io.bytes_transferred")
)
