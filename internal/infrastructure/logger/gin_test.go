package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serve(t *testing.T, router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func requestEntry(t *testing.T, logs *observer.ObservedLogs) observer.LoggedEntry {
	t.Helper()
	entries := logs.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	return entries[0]
}

func TestGinMiddleware_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		path   string
		status int
		level  zapcore.Level
	}{
		{"success", "/api/v1/integrations/mercadolibre/jobs", http.StatusOK, zapcore.InfoLevel},
		{"accepted", "/api/v1/integrations/mercadolibre/sync/orders", http.StatusAccepted, zapcore.InfoLevel},
		{"client error", "/api/v1/integrations/mercadolibre/jobs", http.StatusNotFound, zapcore.WarnLevel},
		{"server error", "/api/v1/integrations/mercadolibre/jobs", http.StatusServiceUnavailable, zapcore.ErrorLevel},
		{"quiet health check", "/health", http.StatusOK, zapcore.DebugLevel},
		{"failing readiness check is not quiet", "/ready", http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			router := gin.New()
			router.Use(GinMiddleware(zap.New(core), WithQuietPaths("/health", "/ready")))
			router.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			w := serve(t, router, http.MethodGet, tt.path)
			assert.Equal(t, tt.status, w.Code)

			entry := requestEntry(t, logs)
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, tt.path, entry.ContextMap()["route"])
		})
	}
}

func TestGinMiddleware_Fields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-123")
		c.Next()
	})
	router.Use(GinMiddleware(zap.New(core)))
	router.GET("/api/v1/integrations/:marketplace/stale-orders", func(c *gin.Context) {
		assert.Equal(t, "req-123", GetRequestID(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	serve(t, router, http.MethodGet, "/api/v1/integrations/mercadolibre/stale-orders?older_than=30m")

	fields := requestEntry(t, logs).ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/v1/integrations/mercadolibre/stale-orders", fields["path"])
	assert.Equal(t, "/api/v1/integrations/:marketplace/stale-orders", fields["route"])
	assert.Equal(t, "older_than=30m", fields["query"])
	for _, key := range []string{"status", "latency", "client_ip", "user_agent", "body_size"} {
		assert.Contains(t, fields, key)
	}
}

func TestGinMiddleware_UsesReplacedLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(GinMiddleware(zap.New(core)))
	router.Use(func(c *gin.Context) {
		SetGinLogger(c, GetGinLogger(c).With(zap.String("tenant_id", "t-1")))
		c.Next()
	})
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(t, router, http.MethodGet, "/x")
	assert.Equal(t, "t-1", requestEntry(t, logs).ContextMap()["tenant_id"])
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("mapper bug") })

	var w *httptest.ResponseRecorder
	assert.NotPanics(t, func() { w = serve(t, router, http.MethodGet, "/panic") })
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestGetGinLogger_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	l := GetGinLogger(c)
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.Info("ignored") })
}
