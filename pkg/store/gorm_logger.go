package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pillarfunnel/internal/util"
)

const slowQueryThreshold = 200 * time.Millisecond

// SlogGormLogger routes GORM logs to slog. A nil Logger falls back to the
// request-scoped logger carried by the query context.
type SlogGormLogger struct {
	Logger   *slog.Logger
	LogLevel gormlogger.LogLevel
}

func NewSlogGormLogger(logger *slog.Logger, level gormlogger.LogLevel) *SlogGormLogger {
	return &SlogGormLogger{Logger: logger, LogLevel: level}
}

func (l *SlogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.LogLevel = level
	return &next
}

func (l *SlogGormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Info {
		l.logger(ctx).InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *SlogGormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Warn {
		l.logger(ctx).WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *SlogGormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Error {
		l.logger(ctx).ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *SlogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.LogLevel >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logger(ctx).ErrorContext(ctx, "gorm_query", "error", err, "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case elapsed > slowQueryThreshold && l.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		l.logger(ctx).WarnContext(ctx, "gorm_slow_query", "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case l.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		l.logger(ctx).DebugContext(ctx, "gorm_query", "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	}
}

func (l *SlogGormLogger) logger(ctx context.Context) *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return util.LoggerFromContext(ctx)
}
