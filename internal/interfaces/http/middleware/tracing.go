package middleware

import (
	"net/http"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing returns OpenTelemetry tracing middleware.
// Span names follow "HTTP METHOD route_pattern".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	// otelgin ends the span before returning, so enrichment happens from
	// inside the chain through TracingAttributeInjector
	return otelgin.Middleware(cfg.ServiceName)
}

// TracingAttributeInjector enriches the current span once RequestID and
// Tenant have run. Place it after both.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := GetRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if tenantID, ok := GetTenantUUID(c); ok {
		span.SetAttributes(attribute.String("tenant_id", tenantID.String()))
	} else if raw := c.GetHeader(TenantHeaderKey); raw != "" {
		// Unvalidated headers never reach span attributes
		if id, err := uuid.Parse(raw); err == nil {
			span.SetAttributes(attribute.String("tenant_id", id.String()))
		}
	}
	if code, err := integration.ParseMarketplaceCode(c.Param("marketplace")); err == nil {
		span.SetAttributes(attribute.String("marketplace", code.String()))
	}
}

// SpanErrorMarker marks spans with error status for 4xx/5xx responses.
// This should be placed AFTER the Tracing middleware in the middleware chain.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		var message string
		switch {
		case statusCode >= http.StatusInternalServerError:
			message = "Internal Server Error"
		case statusCode == http.StatusUnauthorized:
			message = "Unauthorized"
		case statusCode == http.StatusNotFound:
			message = "Not Found"
		case statusCode == http.StatusTooManyRequests:
			message = "Too Many Requests"
		default:
			message = "Client Error"
		}
		span.SetStatus(codes.Error, message)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}
