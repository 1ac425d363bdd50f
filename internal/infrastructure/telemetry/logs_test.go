package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, LogsConfig{ServiceName: "marketsync"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel), "disabled bridge keeps the base logger")
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}
	log := zap.New(core)

	log.Info("token refreshed")
	log.Warn("refresh retry", zap.Int("attempt", 2))
	log.With(zap.String("marketplace", "MERCADOLIBRE")).Error("refresh rejected")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "refresh retry", entries[0].Message)
	assert.Equal(t, "refresh rejected", entries[1].Message)
	assert.Equal(t, "MERCADOLIBRE", entries[1].ContextMap()["marketplace"])
	assert.False(t, core.Enabled(zapcore.InfoLevel))
}
