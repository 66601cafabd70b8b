// Package logging provides the component-scoped structured logger used across
// the analysis pipeline, the calibrator and the command line tools.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields carries structured key/value context for a log entry
type Fields map[string]any

// Logger is the logging surface handed to every component
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)
	WithFields(fields Fields) Logger
}

// Options selects the level and encoding of a logger
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type zapLogger struct {
	base *zap.Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// NewLogger builds a zap-backed logger writing to stderr
func NewLogger(opts Options) (Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "text":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))
	return &zapLogger{base: zap.New(core)}, nil
}

// NewDefaultLogger returns the process-wide logger, creating an info level
// JSON logger on first use
func NewDefaultLogger() Logger {
	defaultMu.RLock()
	logger := defaultLogger
	defaultMu.RUnlock()
	if logger != nil {
		return logger
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		logger, err := NewLogger(Options{Level: "info", Format: "json"})
		if err != nil {
			logger = NewNopLogger()
		}
		defaultLogger = logger
	}
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return &zapLogger{base: zap.NewNop()}
}

// WithFields returns the default logger annotated with fields
func WithFields(fields Fields) Logger {
	return NewDefaultLogger().WithFields(fields)
}

// Error logs err on the default logger
func Error(err error, msg string, fields ...Fields) {
	NewDefaultLogger().Error(err, msg, fields...)
}

// ParseLevel maps a level name onto a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *zapLogger) Debug(msg string, fields ...Fields) {
	l.base.Debug(msg, toZap(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Fields) {
	l.base.Info(msg, toZap(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Fields) {
	l.base.Warn(msg, toZap(fields)...)
}

func (l *zapLogger) Error(err error, msg string, fields ...Fields) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.base.Error(msg, zf...)
}

func (l *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{base: l.base.With(toZap([]Fields{fields})...)}
}

func toZap(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	n := 0
	for _, f := range fields {
		n += len(f)
	}

	out := make([]zap.Field, 0, n)
	for _, f := range fields {
		for k, v := range f {
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
