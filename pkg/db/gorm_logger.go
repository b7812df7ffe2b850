package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// queryLogger routes gorm's trace hook into the service logger. Only failed
// and slow statements are written; record-not-found is an expected outcome.
type queryLogger struct {
	logg *logger.Logger
	slow time.Duration
	now  func() time.Time
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, now: time.Now}
}

func (l *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

// ParamsFilter keeps bound values out of logged SQL; gift card codes and
// emails travel as parameters.
func (l *queryLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (l *queryLogger) Info(context.Context, string, ...any) {}

func (l *queryLogger) Warn(ctx context.Context, msg string, _ ...any) {
	l.logg.Warn(ctx, "db."+msg)
}

func (l *queryLogger) Error(ctx context.Context, msg string, _ ...any) {
	l.logg.Error(ctx, "db.error", errors.New(msg))
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := l.now().Sub(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed >= l.slow
	if !failed && !slow {
		return
	}

	sql, rows := fc()
	ctx = l.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	if failed {
		l.logg.Error(ctx, "db.query_failed", err)
		return
	}
	l.logg.Warn(ctx, "db.slow_query")
}
