// Package logadapter wires the runtime's Logger interface to a
// github.com/joeycumines/logiface logger backed by stumpy's fast JSON
// writer, instead of the package's hand-rolled DefaultLogger/WriterLogger,
// for callers who already standardise on logiface elsewhere. Grounded on
// logiface-stumpy's example construction (stumpy.L.New(stumpy.WithStumpy(...))
// plus a level/field builder chain).
package logadapter

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	oc "github.com/open-coroutine/opencoroutine-go"
)

// Logger adapts a *logiface.Logger[*stumpy.Event] to oc.Logger.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// New builds a Logger writing stumpy's compact JSON lines to w at the
// given minimum level. w == nil defaults to os.Stderr.
func New(level oc.LogLevel, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := stumpy.L.New(
		stumpy.L.WithLevel(toLogifaceLevel(level)),
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
	)
	return &Logger{l: l}
}

func toLogifaceLevel(level oc.LogLevel) logiface.Level {
	switch level {
	case oc.LevelDebug:
		return logiface.LevelDebug
	case oc.LevelInfo:
		return logiface.LevelInformational
	case oc.LevelWarn:
		return logiface.LevelWarning
	case oc.LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// IsEnabled reports whether level is at or below the logger's configured
// verbosity (logiface.Level ascends from Emergency to Trace, so "enabled"
// means the wanted level is no more verbose than the configured one).
func (a *Logger) IsEnabled(level oc.LogLevel) bool {
	return toLogifaceLevel(level) <= a.l.Level()
}

// Log implements oc.Logger by replaying the LogEntry onto a Builder. The
// convenience methods below do not go through Log: they build directly
// from their key/value pairs, so the two entry points do not share one
// field layout.
func (a *Logger) Log(entry oc.LogEntry) {
	b := a.l.Build(toLogifaceLevel(entry.Level))
	if entry.Category != "" {
		b = b.Str("category", entry.Category)
	}
	if entry.Coroutine != "" {
		b = b.Str("coroutine", entry.Coroutine)
	}
	if entry.TaskID != 0 {
		b = b.Int64("task_id", entry.TaskID)
	}
	if entry.TimerID != 0 {
		b = b.Int64("timer_id", entry.TimerID)
	}
	for k, v := range entry.Fields {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func (a *Logger) Debug(msg string, kv ...any) { a.build(logiface.LevelDebug, msg, kv) }
func (a *Logger) Info(msg string, kv ...any)  { a.build(logiface.LevelInformational, msg, kv) }
func (a *Logger) Warn(msg string, kv ...any)  { a.build(logiface.LevelWarning, msg, kv) }
func (a *Logger) Error(msg string, kv ...any) { a.build(logiface.LevelError, msg, kv) }

func (a *Logger) build(level logiface.Level, msg string, kv []any) {
	b := a.l.Build(level)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, ok := kv[i+1].(error); ok {
			b = b.Err(err)
			continue
		}
		b = b.Any(key, kv[i+1])
	}
	b.Log(msg)
}

var _ oc.Logger = (*Logger)(nil)
