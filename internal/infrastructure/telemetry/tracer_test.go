package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

// setupTestTracer installs an in-memory span recorder as the global provider
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "marketsync"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.EnableSpanProfiles())
	assert.False(t, tp.IsSpanProfilesEnabled())
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{ServiceName: "marketsync"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestStartSpan_KeyAttributes(t *testing.T) {
	sr := setupTestTracer(t)
	key := testKey()

	_, span := telemetry.StartServiceSpan(context.Background(), "sync", "orders", telemetry.KeyAttributes(key)...)
	telemetry.EndSpan(span, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.orders", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, key.TenantID.String(), attrs["tenant_id"])
	assert.Equal(t, "MERCADOLIBRE", attrs["marketplace"])
}

func TestEndSpan_Error(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartSpan(context.Background(), "token.refresh")
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	telemetry.EndSpan(span, &integration.AuthenticationError{Reason: "refresh rejected", Err: errors.New("invalid_grant")})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events(), "error is recorded as an event")

	var kind string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == telemetry.AttrErrorKind {
			kind = kv.Value.AsString()
		}
	}
	assert.Equal(t, "authentication", kind)

	assert.NotPanics(t, func() { telemetry.EndSpan(nil, nil) })
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
}

func TestNewProfiler(t *testing.T) {
	logger := zaptest.NewLogger(t)

	p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, logger)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop(), "stop is idempotent")

	_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "marketsync"}, logger)
	assert.ErrorContains(t, err, "server address")

	_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, logger)
	assert.ErrorContains(t, err, "application name")
}
