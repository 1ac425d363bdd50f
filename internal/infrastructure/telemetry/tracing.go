package telemetry

import (
	"context"
	"fmt"

	"github.com/erp/marketsync/internal/domain/integration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for sync spans
const TracerName = "marketsync"

// StartSpan starts an internal span named name.
// The caller must End the returned span.
//
//	ctx, span := telemetry.StartSpan(ctx, "sync.orders", telemetry.KeyAttributes(key)...)
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartServiceSpan starts a span named {service}.{method}.
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, method), attrs...)
}

// KeyAttributes returns the span attributes identifying a tenant integration.
func KeyAttributes(key integration.Key) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTenantID.String(key.TenantID.String()),
		AttrMarketplace.String(key.Marketplace.String()),
	}
}

// EndSpan records err on span (if any) and ends it.
// An error marks the span failed with the error kind as attribute.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(AttrErrorKind.String(integration.ErrorKind(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// GetTraceID returns the trace id of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
