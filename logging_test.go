package opencoroutine

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)
	l.Info("hidden")
	require.Empty(t, buf.String())

	l.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestWriterLogger_IncludesErrAndCategory(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelError, &buf)
	l.Log(LogEntry{Level: LevelError, Category: "selector", Message: "poll failed", Err: errors.New("ebadf")})
	out := buf.String()
	require.Contains(t, out, "selector")
	require.Contains(t, out, "poll failed")
	require.Contains(t, out, "ebadf")
}

func TestNoOpLogger_NeverEnabled(t *testing.T) {
	l := NewNoOpLogger()
	require.False(t, l.IsEnabled(LevelError))
	l.Error("ignored") // must not panic
}

func TestGetGlobalLogger_DefaultsToNoOp(t *testing.T) {
	SetStructuredLogger(nil)
	_, ok := getGlobalLogger().(*NoOpLogger)
	require.True(t, ok)
}

func TestSetStructuredLogger_InstallsLogger(t *testing.T) {
	var buf bytes.Buffer
	custom := NewWriterLogger(LevelDebug, &buf)
	SetStructuredLogger(custom)
	defer SetStructuredLogger(nil)

	got, ok := getGlobalLogger().(*WriterLogger)
	require.True(t, ok)
	require.Same(t, custom, got)
}

func TestRateLimitedWarner_CollapsesBurst(t *testing.T) {
	var buf bytes.Buffer
	inner := NewWriterLogger(LevelDebug, &buf)
	w := newRateLimitedWarner(inner, time.Hour, 10)

	for i := 0; i < 5; i++ {
		w.Warnf("selector", "poll error")
	}
	// Only the first of the five should have passed the per-window limit
	// of 1, collapsing a noisy repeated failure to a single log line.
	count := bytes.Count(buf.Bytes(), []byte("poll error"))
	require.Equal(t, 1, count)
}

func TestLogLevel_String(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "WARN", LevelWarn.String())
	require.Contains(t, LogLevel(99).String(), "UNKNOWN")
}
