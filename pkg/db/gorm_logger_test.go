package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

func newTestQueryLogger(buf *bytes.Buffer, now time.Time) *queryLogger {
	return &queryLogger{
		logg: logger.New(logger.Options{ServiceName: "test", Output: buf}),
		slow: 100 * time.Millisecond,
		now:  func() time.Time { return now },
	}
}

func TestQueryLoggerWritesOnlySlowOrFailed(t *testing.T) {
	now := time.Now()
	buf := &bytes.Buffer{}
	l := newTestQueryLogger(buf, now)
	stmt := func() (string, int64) { return "SELECT * FROM orders WHERE id = $1", 1 }

	l.Trace(context.Background(), now.Add(-10*time.Millisecond), stmt, nil)
	l.Trace(context.Background(), now.Add(-10*time.Millisecond), stmt, gorm.ErrRecordNotFound)
	require.Zero(t, buf.Len())

	l.Trace(context.Background(), now.Add(-250*time.Millisecond), stmt, nil)
	require.Contains(t, buf.String(), `"message":"db.slow_query"`)
	require.Contains(t, buf.String(), `"duration_ms":250`)

	buf.Reset()
	l.Trace(context.Background(), now, stmt, errors.New("connection reset"))
	require.Contains(t, buf.String(), `"message":"db.query_failed"`)
}

func TestQueryLoggerDropsParams(t *testing.T) {
	l := newTestQueryLogger(&bytes.Buffer{}, time.Now())
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1 WHERE code = ?", "GC-SECRET")
	require.Equal(t, "SELECT 1 WHERE code = ?", sql)
	require.Nil(t, params)
}

func TestNewQueryLoggerWithoutLoggerDiscards(t *testing.T) {
	require.NotNil(t, newQueryLogger(nil, time.Second))
}
