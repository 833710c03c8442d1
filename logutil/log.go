// Package logutil provides the resolver's structured logging interface.
//
// The state machine and the Resolver log through an injected Logger (or
// the package-level functions), never through fmt.Print*, so a front end can
// swap in its own sink without this module depending on one.
package logutil

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging interface used throughout the resolver.
type Logger interface {
	Debug(fields map[string]any, msg string)
	Info(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
}

var global Logger = newZapLogger(false, zapcore.InfoLevel)

// SetLogger replaces the global logger. Tests use this to install a
// recording logger or NewNoopLogger.
func SetLogger(l Logger) {
	global = l
}

// Get returns the current global logger.
func Get() Logger {
	return global
}

// Configure rebuilds the global logger for the given environment ("dev" or
// anything else for production) and level ("debug", "info", "warn", "error").
func Configure(env, level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("logutil: invalid log level %q: %w", level, err)
	}
	global = newZapLogger(env == "dev", lvl)
	return nil
}

func Debug(fields map[string]any, msg string) { global.Debug(fields, msg) }
func Info(fields map[string]any, msg string)  { global.Info(fields, msg) }
func Warn(fields map[string]any, msg string)  { global.Warn(fields, msg) }
func Error(fields map[string]any, msg string) { global.Error(fields, msg) }

type zapLogger struct {
	base *zap.Logger
}

func newZapLogger(dev bool, level zapcore.Level) Logger {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.LevelKey = "level"

	base, _ := cfg.Build()
	return &zapLogger{base: base}
}

func (l *zapLogger) Debug(fields map[string]any, msg string) { l.base.With(zapFields(fields)...).Debug(msg) }
func (l *zapLogger) Info(fields map[string]any, msg string)  { l.base.With(zapFields(fields)...).Info(msg) }
func (l *zapLogger) Warn(fields map[string]any, msg string)  { l.base.With(zapFields(fields)...).Warn(msg) }
func (l *zapLogger) Error(fields map[string]any, msg string) { l.base.With(zapFields(fields)...).Error(msg) }

func zapFields(m map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

// noopLogger discards everything; useful in tests that don't care about logs.
type noopLogger struct{}

func (noopLogger) Debug(map[string]any, string) {}
func (noopLogger) Info(map[string]any, string)  {}
func (noopLogger) Warn(map[string]any, string)  {}
func (noopLogger) Error(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards all messages.
func NewNoopLogger() Logger { return noopLogger{} }

// Recording is a test Logger that records every call, grounded on the need
// to assert "a referral was logged" style expectations without parsing zap
// output.
type Recording struct {
	Records []Record
}

// Record is one captured log call.
type Record struct {
	Level  string
	Fields map[string]any
	Msg    string
}

func NewRecording() *Recording { return &Recording{} }

func (r *Recording) Debug(fields map[string]any, msg string) { r.add("debug", fields, msg) }
func (r *Recording) Info(fields map[string]any, msg string)  { r.add("info", fields, msg) }
func (r *Recording) Warn(fields map[string]any, msg string)  { r.add("warn", fields, msg) }
func (r *Recording) Error(fields map[string]any, msg string) { r.add("error", fields, msg) }

func (r *Recording) add(level string, fields map[string]any, msg string) {
	r.Records = append(r.Records, Record{Level: level, Fields: fields, Msg: msg})
}
