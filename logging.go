// Structured logging for the coroutine runtime.
//
// The built-in Logger is a trimmed-down version of the teacher's
// event-loop logger: pretty or JSON output and a level filter.
// Categories are the runtime's own components (coroutine,
// scheduler, selector, ioqueue, hook) rather than the teacher's
// JS-flavoured ones. rateLimitedWarner wraps a Logger with a
// [catrate.Limiter] so a noisy failure mode logs once per window instead
// of once per event; the runtime's own warnings do not go through it.

package opencoroutine

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetStructuredLogger installs the package-wide logger used by every
// Runtime, Scheduler and EventLoop created afterwards.
func SetStructuredLogger(logger Logger) {
	globalLogger.Lock()
	globalLogger.logger = logger
	globalLogger.Unlock()
}

func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// LogLevel is the severity of a LogEntry.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry is a single structured log record.
type LogEntry struct {
	Level     LogLevel
	Category  string // "coroutine", "scheduler", "selector", "ioqueue", "hook", "pool"
	Coroutine string
	TaskID    int64
	TimerID   int64
	Fields    map[string]any
	Message   string
	Err       error
	Timestamp time.Time
}

// withKV returns e with Fields built from alternating key/value pairs,
// matching the slog-style call convention used throughout the runtime
// (getGlobalLogger().Error("msg", "k1", v1, "k2", v2, ...)).
func (e LogEntry) withKV(kv []any) LogEntry {
	if len(kv) == 0 {
		return e
	}
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields[key] = kv[i+1]
	}
	e.Fields = fields
	return e
}

// Logger is the structured logging interface. Error/Warn/Info/Debug take
// a message followed by alternating key/value pairs, the convention the
// rest of the runtime calls it with.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// baseLogger implements the four convenience methods in terms of Log,
// shared by DefaultLogger and WriterLogger below.
type baseLogger struct {
	impl Logger
}

func (b baseLogger) log(level LogLevel, category, msg string, kv []any) {
	if !b.impl.IsEnabled(level) {
		return
	}
	entry := LogEntry{Level: level, Category: category, Message: msg, Timestamp: time.Now()}.withKV(kv)
	b.impl.Log(entry)
}

// DefaultLogger writes pretty or JSON lines to an *os.File.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   *os.File
	JSON  bool
}

// NewDefaultLogger creates a logger writing to stderr at the given level.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	l := &DefaultLogger{Out: os.Stderr}
	l.level.Store(int32(level))
	return l
}

func (l *DefaultLogger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return int32(level) >= l.level.Load()
}

func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.JSON {
		l.logJSON(entry)
		return
	}
	l.logPretty(entry)
}

func (l *DefaultLogger) logPretty(entry LogEntry) {
	fmt.Fprintf(l.Out, "%s [%s] %s", entry.Timestamp.Format(time.RFC3339Nano), entry.Level, entry.Message)
	if entry.Category != "" {
		fmt.Fprintf(l.Out, " category=%s", entry.Category)
	}
	if entry.Coroutine != "" {
		fmt.Fprintf(l.Out, " coroutine=%s", entry.Coroutine)
	}
	for k, v := range entry.Fields {
		fmt.Fprintf(l.Out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.Out, " err=%v", entry.Err)
	}
	fmt.Fprintln(l.Out)
}

func (l *DefaultLogger) logJSON(entry LogEntry) {
	fmt.Fprintf(l.Out, `{"ts":%q,"level":%q,"msg":%q`, entry.Timestamp.Format(time.RFC3339Nano), entry.Level, entry.Message)
	if entry.Category != "" {
		fmt.Fprintf(l.Out, `,"category":%q`, entry.Category)
	}
	if entry.Coroutine != "" {
		fmt.Fprintf(l.Out, `,"coroutine":%q`, entry.Coroutine)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.Out, `,"err":%q`, entry.Err.Error())
	}
	for k, v := range entry.Fields {
		fmt.Fprintf(l.Out, `,%q:%v`, k, fmt.Sprintf("%v", v))
	}
	fmt.Fprintln(l.Out, "}")
}

func (l *DefaultLogger) Debug(msg string, kv ...any) { baseLogger{l}.log(LevelDebug, "", msg, kv) }
func (l *DefaultLogger) Info(msg string, kv ...any)  { baseLogger{l}.log(LevelInfo, "", msg, kv) }
func (l *DefaultLogger) Warn(msg string, kv ...any)  { baseLogger{l}.log(LevelWarn, "", msg, kv) }
func (l *DefaultLogger) Error(msg string, kv ...any) { baseLogger{l}.log(LevelError, "", msg, kv) }

// NoOpLogger discards everything; it is the default when no logger has
// been installed via SetStructuredLogger.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (*NoOpLogger) Log(LogEntry) {}

func (*NoOpLogger) IsEnabled(LogLevel) bool { return false }

func (*NoOpLogger) Debug(string, ...any) {}
func (*NoOpLogger) Info(string, ...any)  {}
func (*NoOpLogger) Warn(string, ...any)  {}
func (*NoOpLogger) Error(string, ...any) {}

// WriterLogger writes plain-text lines to an arbitrary io.Writer, for
// tests that want to assert against captured output.
type WriterLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   io.Writer
}

func NewWriterLogger(level LogLevel, out io.Writer) *WriterLogger {
	l := &WriterLogger{Out: out}
	l.level.Store(int32(level))
	return l
}

func (l *WriterLogger) IsEnabled(level LogLevel) bool { return int32(level) >= l.level.Load() }

func (l *WriterLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.Out, "[%s] %s %s", entry.Level, entry.Category, entry.Message)
	if entry.Err != nil {
		fmt.Fprintf(l.Out, ": %v", entry.Err)
	}
	fmt.Fprintln(l.Out)
}

func (l *WriterLogger) Debug(msg string, kv ...any) { baseLogger{l}.log(LevelDebug, "", msg, kv) }
func (l *WriterLogger) Info(msg string, kv ...any)  { baseLogger{l}.log(LevelInfo, "", msg, kv) }
func (l *WriterLogger) Warn(msg string, kv ...any)  { baseLogger{l}.log(LevelWarn, "", msg, kv) }
func (l *WriterLogger) Error(msg string, kv ...any) { baseLogger{l}.log(LevelError, "", msg, kv) }

// rateLimitedWarner wraps a Logger with a catrate.Limiter so repeated
// warnings about the same category (e.g. a selector that keeps returning
// transient poll errors, or a pool that keeps rejecting submissions)
// collapse to one log line per window instead of flooding output.
type rateLimitedWarner struct {
	logger  Logger
	limiter *catrate.Limiter
}

// newRateLimitedWarner allows at most one warning per category every
// window, and at most burst warnings within the preceding minute.
func newRateLimitedWarner(logger Logger, window time.Duration, burst int) *rateLimitedWarner {
	return &rateLimitedWarner{
		logger: logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			window:      1,
			time.Minute: burst,
		}),
	}
}

// Warnf logs at most once per window for the given category; category is
// typically a component name like "selector" or "pool".
func (w *rateLimitedWarner) Warnf(category string, msg string, kv ...any) {
	if _, ok := w.limiter.Allow(category); !ok {
		return
	}
	w.logger.Warn(msg, append([]any{"category", category}, kv...)...)
}
