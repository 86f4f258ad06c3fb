package logadapter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	oc "github.com/open-coroutine/opencoroutine-go"
)

func TestLogger_FiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(oc.LevelWarn, &buf)

	l.Info("hidden")
	require.Empty(t, buf.String())

	l.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestLogger_LogIncludesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(oc.LevelDebug, &buf)

	l.Log(oc.LogEntry{
		Level:     oc.LevelError,
		Category:  "selector",
		Coroutine: "c1",
		TaskID:    7,
		Message:   "poll failed",
		Err:       errors.New("ebadf"),
	})
	out := buf.String()
	require.Contains(t, out, "selector")
	require.Contains(t, out, "c1")
	require.Contains(t, out, "poll failed")
	require.Contains(t, out, "ebadf")
}

func TestLogger_ConvenienceMethodsAcceptKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	l := New(oc.LevelDebug, &buf)
	l.Error("boom", "worker", 3, "err", errors.New("bad"))
	out := buf.String()
	require.Contains(t, out, "boom")
	require.Contains(t, out, "worker")
	require.Contains(t, out, "bad")
}

func TestLogger_NilWriterDefaultsToStderr(t *testing.T) {
	l := New(oc.LevelInfo, nil)
	require.NotNil(t, l)
}

func TestLogger_IsEnabled(t *testing.T) {
	l := New(oc.LevelWarn, &bytes.Buffer{})
	require.True(t, l.IsEnabled(oc.LevelError))
	require.True(t, l.IsEnabled(oc.LevelWarn))
	require.False(t, l.IsEnabled(oc.LevelInfo))
	require.False(t, l.IsEnabled(oc.LevelDebug))
}
