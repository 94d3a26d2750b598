package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for all Voxfill spans.
const tracerName = "github.com/voxfill/voxfill"

// StartSpan opens a span named after the operation, e.g. "voxfill.fill".
// The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// Logger stamps base with the trace_id and span_id of the span carried in
// ctx, keying every log line of one fill or rewrite flow to the same IDs.
// A nil base falls back to [slog.Default]; without an active span the base
// is returned unchanged.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
