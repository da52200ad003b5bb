package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]any

// Logger is the logging interface used throughout the module. Error takes
// the causing error first so call sites read as "what failed, why, context".
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)
	WithFields(fields Fields) Logger
}

// zerologAdapter implements Logger on top of a zerolog.Logger.
type zerologAdapter struct {
	zl zerolog.Logger
}

// NewDefaultLogger creates a logger writing human-readable output to stderr.
func NewDefaultLogger() Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return &zerologAdapter{zl: zl}
}

// NewLogger wraps an existing zerolog.Logger.
func NewLogger(zl zerolog.Logger) Logger {
	return &zerologAdapter{zl: zl}
}

func (l *zerologAdapter) Debug(msg string, fields ...Fields) {
	applyFields(l.zl.Debug(), fields).Msg(msg)
}

func (l *zerologAdapter) Info(msg string, fields ...Fields) {
	applyFields(l.zl.Info(), fields).Msg(msg)
}

func (l *zerologAdapter) Warn(msg string, fields ...Fields) {
	applyFields(l.zl.Warn(), fields).Msg(msg)
}

func (l *zerologAdapter) Error(err error, msg string, fields ...Fields) {
	applyFields(l.zl.Error().Err(err), fields).Msg(msg)
}

func (l *zerologAdapter) WithFields(fields Fields) Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologAdapter{zl: ctx.Logger()}
}

func applyFields(ev *zerolog.Event, fields []Fields) *zerolog.Event {
	for _, fs := range fields {
		for k, v := range fs {
			ev = ev.Interface(k, v)
		}
	}
	return ev
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewDefaultLogger()
)

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// WithFields returns the global logger scoped with the given fields.
func WithFields(fields Fields) Logger {
	return GetGlobalLogger().WithFields(fields)
}

// Debug logs a debug message on the global logger.
func Debug(msg string, fields ...Fields) {
	GetGlobalLogger().Debug(msg, fields...)
}

// Info logs an info message on the global logger.
func Info(msg string, fields ...Fields) {
	GetGlobalLogger().Info(msg, fields...)
}

// Warn logs a warning on the global logger.
func Warn(msg string, fields ...Fields) {
	GetGlobalLogger().Warn(msg, fields...)
}

// Error logs an error on the global logger.
func Error(err error, msg string, fields ...Fields) {
	GetGlobalLogger().Error(err, msg, fields...)
}
