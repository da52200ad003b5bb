package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger() (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(zerolog.New(&buf)), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := captureLogger()

	logger.Debug("debug message")
	entry := lastEntry(t, buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "debug message", entry["message"])

	logger.Info("info message")
	assert.Equal(t, "info", lastEntry(t, buf)["level"])

	logger.Warn("warn message")
	assert.Equal(t, "warn", lastEntry(t, buf)["level"])
}

func TestLoggerError(t *testing.T) {
	logger, buf := captureLogger()

	logger.Error(errors.New("connection reset"), "fetch failed", Fields{"uri": "https://cdn.example.com/a.m3u8"})

	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "fetch failed", entry["message"])
	assert.Equal(t, "connection reset", entry["error"])
	assert.Equal(t, "https://cdn.example.com/a.m3u8", entry["uri"])
}

func TestLoggerFields(t *testing.T) {
	logger, buf := captureLogger()

	logger.Info("segment appended", Fields{"position": 7, "duration": 2.0})

	entry := lastEntry(t, buf)
	assert.Equal(t, float64(7), entry["position"])
	assert.Equal(t, 2.0, entry["duration"])
}

func TestWithFields(t *testing.T) {
	logger, buf := captureLogger()

	scoped := logger.WithFields(Fields{"component": "hls_engine"})
	scoped.Info("cycle complete", Fields{"streams": 3})

	entry := lastEntry(t, buf)
	assert.Equal(t, "hls_engine", entry["component"])
	assert.Equal(t, float64(3), entry["streams"])

	// The parent logger is unaffected.
	logger.Info("plain")
	entry = lastEntry(t, buf)
	assert.NotContains(t, entry, "component")
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	logger, buf := captureLogger()
	SetGlobalLogger(logger)

	assert.Same(t, logger, GetGlobalLogger())

	Info("global message", Fields{"key": "value"})
	entry := lastEntry(t, buf)
	assert.Equal(t, "global message", entry["message"])
	assert.Equal(t, "value", entry["key"])

	Warn("global warning")
	assert.Equal(t, "warn", lastEntry(t, buf)["level"])

	Error(errors.New("boom"), "global error")
	assert.Equal(t, "boom", lastEntry(t, buf)["error"])

	WithFields(Fields{"scoped": true}).Info("scoped message")
	assert.Equal(t, true, lastEntry(t, buf)["scoped"])
}
