// Package selector implements the readiness-polling layer (§4.8): an
// abstraction over platform-native "tell me when this fd is ready"
// mechanisms, used by the event loop to resume coroutines parked in
// SystemCall(_, _, SyscallSuspend) once their fd becomes ready.
//
// Grounded on the teacher's FastPoller (poller_linux.go / poller_darwin.go
// / poller_windows.go), split out of the root package into its own
// package per §2's component table, with a shared Selector interface so
// the event loop can hold one without a build-tag switch of its own.
package selector

import "errors"

// IOEvents is a bitmask of readiness conditions.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Callback is invoked with the events that became ready for a registered
// fd. Selectors call it synchronously from within PollIO.
type Callback func(IOEvents)

// Standard errors, shared across every platform implementation.
var (
	ErrFDOutOfRange        = errors.New("selector: fd out of range")
	ErrFDAlreadyRegistered = errors.New("selector: fd already registered")
	ErrFDNotRegistered     = errors.New("selector: fd not registered")
	ErrClosed              = errors.New("selector: closed")
)

// Waker lets any goroutine interrupt a blocked PollIO call, e.g. when the
// scheduler has new work and the worker might otherwise sleep past a
// timer deadline that no longer applies. Each platform's NewWaker wires
// this however is idiomatic there: a registered self-pipe/eventfd fd on
// Unix-like selectors, a direct completion-port post on Windows.
type Waker interface {
	Signal() error
	Close() error
}

// Selector is the readiness-polling facade every platform implements.
type Selector interface {
	// Init prepares the underlying OS resource (epoll/kqueue/IOCP fd).
	Init() error
	// RegisterFD starts monitoring fd for events, invoking cb on PollIO
	// when any of them fire.
	RegisterFD(fd int, events IOEvents, cb Callback) error
	// UnregisterFD stops monitoring fd. Callers must not close fd until
	// any in-flight callback for it has returned.
	UnregisterFD(fd int) error
	// ModifyFD changes the event set monitored for fd.
	ModifyFD(fd int, events IOEvents) error
	// PollIO blocks up to timeoutMs (negative blocks indefinitely,
	// zero polls without blocking) and dispatches ready callbacks,
	// returning how many fired.
	PollIO(timeoutMs int) (int, error)
	// Close releases the underlying OS resource.
	Close() error
}
