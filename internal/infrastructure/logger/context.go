package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	scopeKey
)

// Scope is the correlation data carried by a request or a sync job.
type Scope struct {
	RequestID string
	TenantID  string
	JobID     string
	Trigger   string
}

// Fields returns the non-empty scope values as zap fields
func (s Scope) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 4)
	for _, kv := range [...]struct{ key, value string }{
		{"request_id", s.RequestID},
		{"tenant_id", s.TenantID},
		{"job_id", s.JobID},
		{"trigger", s.Trigger},
	} {
		if kv.value != "" {
			fields = append(fields, zap.String(kv.key, kv.value))
		}
	}
	return fields
}

// ScopeFrom returns the scope stored in ctx, zero if none
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey).(Scope)
	return s
}

func updateScope(ctx context.Context, fn func(*Scope)) context.Context {
	s := ScopeFrom(ctx)
	fn(&s)
	return context.WithValue(ctx, scopeKey, s)
}

// WithContext attaches a request logger to ctx
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger attached to ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID records the request id and attaches the enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = updateScope(ctx, func(s *Scope) { s.RequestID = requestID })
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithTenantID records the tenant and attaches the enriched logger
func WithTenantID(ctx context.Context, logger *zap.Logger, tenantID string) (context.Context, *zap.Logger) {
	ctx = updateScope(ctx, func(s *Scope) { s.TenantID = tenantID })
	enriched := logger.With(zap.String("tenant_id", tenantID))
	return WithContext(ctx, enriched), enriched
}

// WithJob records the sync job running under ctx
func WithJob(ctx context.Context, jobID, trigger string) context.Context {
	return updateScope(ctx, func(s *Scope) {
		s.JobID = jobID
		s.Trigger = trigger
	})
}

// GetRequestID returns the request id in ctx
func GetRequestID(ctx context.Context) string {
	return ScopeFrom(ctx).RequestID
}

// GetTenantID returns the tenant id in ctx
func GetTenantID(ctx context.Context) string {
	return ScopeFrom(ctx).TenantID
}

// GetTraceID returns the active trace id, empty without a valid span
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// ContextLogger logs with the trace ids of ctx attached.
type ContextLogger struct {
	logger *zap.Logger
}

// L returns the request logger of ctx. It already carries the request scope,
// so only trace ids are added.
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{logger: withTrace(ctx, FromContext(ctx))}
}

// WithLogger applies the scope and trace ids of ctx to a component's own logger.
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fields := ScopeFrom(ctx).Fields(); len(fields) > 0 {
		logger = logger.With(fields...)
	}
	return &ContextLogger{logger: withTrace(ctx, logger)}
}

func withTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// With adds fields to every following entry
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{logger: cl.logger.With(fields...)}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.logger.Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.logger.Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.logger.Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.logger.Error(msg, fields...) }

// Zap returns the enriched *zap.Logger
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.logger
}
