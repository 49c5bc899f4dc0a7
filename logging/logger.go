// Package logging adapts go.uber.org/zap to the streamsink.Logger interface.
package logging

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coregx/streamsink"
)

var _ streamsink.Logger = (*ZapLogger)(nil)

// ZapLogger implements streamsink.Logger on a sugared zap logger.
type ZapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// ParseLevel accepts a zap level name ("debug", "warn") or its numeric value
// ("-1", "1"). Anything else yields info.
func ParseLevel(s string) zapcore.Level {
	s = strings.TrimSpace(s)
	if s == "" {
		return zapcore.InfoLevel
	}
	if n, err := strconv.Atoi(s); err == nil {
		return zapcore.Level(n)
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewProductionConfig returns the JSON stdout configuration used by the
// service binary.
func NewProductionConfig(level zapcore.Level) zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.CallerKey = "ln"
	cfg.EncoderConfig.FunctionKey = ""
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	return cfg
}

// NewZapLogger builds a production logger at level.
func NewZapLogger(level string) (*ZapLogger, error) {
	base, err := NewProductionConfig(ParseLevel(level)).Build()
	if err != nil {
		return nil, err
	}
	return Wrap(base), nil
}

// Wrap adapts an existing zap logger.
func Wrap(base *zap.Logger) *ZapLogger {
	base = base.WithOptions(zap.AddCallerSkip(1))
	return &ZapLogger{base: base, sugar: base.Sugar()}
}

// Zap exposes the underlying logger for components that log structured fields.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.base.WithOptions(zap.AddCallerSkip(-1))
}

// With returns a logger that adds fields to every entry.
func (l *ZapLogger) With(fields ...zap.Field) *ZapLogger {
	base := l.base.With(fields...)
	return &ZapLogger{base: base, sugar: base.Sugar()}
}

func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

func (l *ZapLogger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

func (l *ZapLogger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func (l *ZapLogger) Info(message string) { l.base.Info(message) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}
