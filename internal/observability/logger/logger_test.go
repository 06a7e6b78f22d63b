package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/invoicecore/internal/observability/context"
	"github.com/smallbiznis/invoicecore/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextOnlyAddsPresentIdentifiers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")
	ctx := obscontext.WithActor(context.Background(), "system", "scheduler")
	ctx = correlation.ContextWithCorrelationID(ctx, "01HZX")
	WithContext(ctx, base).Info("enriched")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Context)

	fields := entries[1].ContextMap()
	assert.Equal(t, "system", fields["actor_type"])
	assert.Equal(t, "scheduler", fields["actor_id"])
	assert.Equal(t, "01HZX", fields["correlation_id"])
	assert.NotContains(t, fields, "request_id")
	assert.NotContains(t, fields, "trace_id")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestGormTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g := NewGorm(zap.New(core), 50*time.Millisecond)
	query := func() (string, int64) { return "UPDATE invoices SET version = ? WHERE id = ? AND version = ?", 0 }
	ctx := context.Background()

	g.Trace(ctx, time.Now(), query, nil)
	assert.Zero(t, logs.Len(), "fast successful statements are silent at warn")

	g.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "missing rows are not errors")

	g.Trace(ctx, time.Now(), query, errors.New("disk full"))
	g.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	require.Equal(t, 2, logs.Len())

	failed := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, failed.Level)
	assert.Equal(t, "UPDATE", failed.ContextMap()["statement"])
	assert.Equal(t, int64(0), failed.ContextMap()["rows_affected"])

	slow := logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, slow.Level)
	assert.Contains(t, slow.ContextMap(), "slow_threshold")

	verbose := g.LogMode(gormlogger.Info)
	verbose.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT * FROM coupons", 1 }, nil)
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[2].Level)

	g.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), query, errors.New("ignored"))
	assert.Equal(t, 3, logs.Len())
}

func TestParamsFilterDropsBoundValues(t *testing.T) {
	sql, params := NewGorm(nil, 0).ParamsFilter(context.Background(), "SELECT 1 WHERE email = ?", "dana@example.com")
	assert.Equal(t, "SELECT 1 WHERE email = ?", sql)
	assert.Nil(t, params)
}
