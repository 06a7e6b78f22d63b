package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Gorm routes gorm output through zap. Bound parameters are never logged:
// they carry contact emails, card last4 and provider references.
type Gorm struct {
	base          *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*Gorm)(nil)

func NewGorm(base *zap.Logger, slowThreshold time.Duration) *Gorm {
	if base == nil {
		base = zap.NewNop()
	}
	return &Gorm{
		base:          base.Named("gorm"),
		level:         gormlogger.Warn,
		slowThreshold: slowThreshold,
	}
}

func (g *Gorm) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *g
	next.level = level
	return &next
}

func (g *Gorm) Info(ctx context.Context, msg string, data ...interface{}) {
	g.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (g *Gorm) Warn(ctx context.Context, msg string, data ...interface{}) {
	g.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (g *Gorm) Error(ctx context.Context, msg string, data ...interface{}) {
	g.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

// Trace logs failed statements as errors, slow ones as warnings and, at Info,
// everything else at debug. A missing row is an expected lookup outcome here.
func (g *Gorm) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	var level zapcore.Level
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		level = zapcore.ErrorLevel
	case g.slowThreshold > 0 && elapsed > g.slowThreshold && g.level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case g.level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	log := WithContext(ctx, g.base)
	ce := log.Check(level, "gorm.query")
	if ce == nil {
		return
	}
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("statement", statementKind(sql)),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if level == zapcore.WarnLevel {
		fields = append(fields, zap.Duration("slow_threshold", g.slowThreshold))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func (g *Gorm) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (g *Gorm) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if g.level < min {
		return
	}
	ce := WithContext(ctx, g.base).Check(level, msg)
	if ce == nil {
		return
	}
	if len(data) > 0 {
		ce.Write(zap.Any("data", data))
		return
	}
	ce.Write()
}

func statementKind(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "OTHER"
}
