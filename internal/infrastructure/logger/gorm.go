package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM output through zap. Bound query values are left out
// of logged SQL unless WithQueryParams(true) is set: credential rows carry
// sealed tokens and mirrored customers carry emails and tax ids.
type GormLogger struct {
	logger     *zap.Logger
	level      gormlogger.LogLevel
	slow       time.Duration
	showParams bool
}

// GormOption configures a GormLogger
type GormOption func(*GormLogger)

// WithSlowQueryThreshold sets the duration above which a query is logged as slow; zero disables it
func WithSlowQueryThreshold(d time.Duration) GormOption {
	return func(l *GormLogger) {
		l.slow = d
	}
}

// WithQueryParams includes bound values in logged SQL
func WithQueryParams(show bool) GormOption {
	return func(l *GormLogger) {
		l.showParams = show
	}
}

// NewGormLogger creates a GormLogger
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormOption) *GormLogger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	l := &GormLogger{
		logger: zapLogger.Named("gorm"),
		level:  level,
		slow:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.forContext(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.forContext(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.forContext(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed and slow statements, and every statement at Info.
// Record-not-found is never logged; repositories map it to a domain error.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	var (
		msg   string
		level = zap.DebugLevel
	)
	switch {
	case failed && l.level >= gormlogger.Error:
		msg, level = "SQL error", zap.ErrorLevel
	case slow && l.level >= gormlogger.Warn:
		msg, level = "Slow SQL", zap.WarnLevel
	case l.level >= gormlogger.Info:
		msg = "SQL query"
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	if slow {
		fields = append(fields, zap.Duration("slow_threshold", l.slow))
	}
	l.forContext(ctx).Check(level, msg).Write(fields...)
}

// ParamsFilter implements gorm.ParamsFilter; dropping params makes GORM log placeholders
func (l *GormLogger) ParamsFilter(ctx context.Context, sql string, params ...any) (string, []any) {
	if l.showParams {
		return sql, params
	}
	return sql, nil
}

func (l *GormLogger) forContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.logger
	}
	return WithLogger(ctx, l.logger).Zap()
}

// MapGormLogLevel maps a config level name to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
