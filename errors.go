package opencoroutine

import (
	"errors"
	"fmt"
)

// Kind classifies a runtime error per the §7 error taxonomy.
type Kind int

const (
	// KindUnexpectedState is returned for an invalid coroutine state
	// transition. Never fatal.
	KindUnexpectedState Kind = iota
	// KindTimeout is returned when a stop/wait deadline expires.
	KindTimeout
	// KindUnsupported is returned when a requested feature (e.g. a
	// completion-queue opcode) is not available on the current platform;
	// the facade falls back to the next decorator in its chain.
	KindUnsupported
	// KindIOError wraps a pass-through OS errno from a raw syscall.
	KindIOError
	// KindPanicInCoroutine is recorded when a user function panics;
	// the coroutine enters Error(msg) and other coroutines are unaffected.
	KindPanicInCoroutine
	// KindPoolExhausted is returned when a task is submitted to a pool
	// already at max_size with no headroom. Never retried automatically.
	KindPoolExhausted
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindUnexpectedState:
		return "UnexpectedState"
	case KindTimeout:
		return "Timeout"
	case KindUnsupported:
		return "Unsupported"
	case KindIOError:
		return "IoError"
	case KindPanicInCoroutine:
		return "PanicInCoroutine"
	case KindPoolExhausted:
		return "PoolExhausted"
	default:
		return "Unknown"
	}
}

// Error is the common error type for every Kind in the §7 taxonomy. It
// carries enough context (coroutine name, operation, wrapped cause) for
// callers to match against either the struct or the underlying OS error
// via [errors.Is]/[errors.As].
type Error struct {
	Kind      Kind
	Coroutine string
	Op        string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Coroutine != "" && e.Err != nil:
		return fmt.Sprintf("opencoroutine: %s: coroutine %q: %s: %v", e.Kind, e.Coroutine, e.Op, e.Err)
	case e.Coroutine != "":
		return fmt.Sprintf("opencoroutine: %s: coroutine %q: %s", e.Kind, e.Coroutine, e.Op)
	case e.Err != nil:
		return fmt.Sprintf("opencoroutine: %s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("opencoroutine: %s: %s", e.Kind, e.Op)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, which lets
// callers write errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newUnexpectedState(coroutine, from, to string) error {
	return &Error{
		Kind:      KindUnexpectedState,
		Coroutine: coroutine,
		Op:        fmt.Sprintf("transition %s -> %s", from, to),
	}
}

func newTimeoutError(op string, cause error) error {
	return &Error{Kind: KindTimeout, Op: op, Err: cause}
}

func newUnsupportedError(op string) error {
	return &Error{Kind: KindUnsupported, Op: op}
}

func newIOError(op string, errno error) error {
	return &Error{Kind: KindIOError, Op: op, Err: errno}
}

func newPanicError(coroutine string, recovered any) error {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &Error{Kind: KindPanicInCoroutine, Coroutine: coroutine, Op: "panic", Err: err}
}

func newPoolExhaustedError(task string, maxSize int) error {
	return &Error{
		Kind: KindPoolExhausted,
		Op:   fmt.Sprintf("submit %q (max_size=%d)", task, maxSize),
	}
}

// Standard sentinel errors, matched structurally via Error.Is.
var (
	// ErrUnexpectedState matches any KindUnexpectedState error.
	ErrUnexpectedState = &Error{Kind: KindUnexpectedState}
	// ErrTimeout matches any KindTimeout error.
	ErrTimeout = &Error{Kind: KindTimeout}
	// ErrUnsupported matches any KindUnsupported error.
	ErrUnsupported = &Error{Kind: KindUnsupported}
	// ErrPoolExhausted matches any KindPoolExhausted error.
	ErrPoolExhausted = &Error{Kind: KindPoolExhausted}
)
