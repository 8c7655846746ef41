package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for spans started here.
const TracerName = "github.com/teemow/inboxsorter"

// Span attribute keys.
const (
	SpanAttrService    = "google.service"
	SpanAttrOperation  = "google.operation"
	SpanAttrMessageID  = "gmail.message_id"
	SpanAttrCount      = "gmail.count"
	SpanAttrLLMModel   = "llm.model"
	SpanAttrCategory   = "classifier.category"
	SpanAttrSource     = "classifier.source"
	SpanAttrUserHash   = "user.hash"
	SpanAttrHTTPRoute  = "http.route"
	SpanAttrCacheStore = "cache.backend"
)

// StartGoogleAPISpan starts a client span for a Google API call.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	all = append(all, attrs...)

	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartLLMSpan starts a client span for a chat completion request.
func StartLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "llm.chat_completion",
		trace.WithAttributes(attribute.String(SpanAttrLLMModel, model)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetSpanError records err on the span and marks it failed. Nil is a no-op.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
