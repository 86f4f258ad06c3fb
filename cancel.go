//go:build linux || darwin || windows

package opencoroutine

import (
	"sync"
	"time"
)

// CancelSignal is observed by a suspended coroutine (or whatever is
// parked on it) to learn that cancellation was requested (§5 "shared
// cancellation model"). It is the Go-idiomatic trim of the teacher's
// AbortController/AbortSignal pair down to what the runtime actually
// needs: a one-shot latch plus handler callbacks, no DOM event-type
// string, no EventTarget compatibility surface.
type CancelSignal struct {
	mu       sync.RWMutex
	handlers []func(reason error)
	reason   error
	done     chan struct{}
}

func newCancelSignal() *CancelSignal {
	return &CancelSignal{done: make(chan struct{})}
}

// Cancelled reports whether the signal has fired.
func (s *CancelSignal) Cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Reason returns the cancellation cause, or nil if not yet cancelled.
func (s *CancelSignal) Reason() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Done returns a channel closed once the signal fires, for select-based
// waiters (e.g. a coroutine's hosting goroutine in the event loop).
func (s *CancelSignal) Done() <-chan struct{} { return s.done }

// OnCancel registers a callback invoked once the signal fires. If it has
// already fired, the callback runs immediately, synchronously.
func (s *CancelSignal) OnCancel(handler func(reason error)) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	if s.reason != nil || s.Cancelled() {
		reason := s.reason
		s.mu.Unlock()
		handler(reason)
		return
	}
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

func (s *CancelSignal) cancel(reason error) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	if reason == nil {
		reason = ErrCancelled
	}
	s.reason = reason
	close(s.done)
	handlers := append([]func(reason error){}, s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(reason)
	}
}

// CancelController owns a CancelSignal and is the only thing that can
// fire it (§5).
type CancelController struct {
	signal *CancelSignal
}

// NewCancelController creates a controller with a fresh, un-fired signal.
func NewCancelController() *CancelController {
	return &CancelController{signal: newCancelSignal()}
}

// Signal returns the controller's signal, to hand to coroutines or
// blocking calls that should observe cancellation.
func (c *CancelController) Signal() *CancelSignal { return c.signal }

// Cancel fires the signal with reason (ErrCancelled if nil). Idempotent:
// only the first call has any effect.
func (c *CancelController) Cancel(reason error) { c.signal.cancel(reason) }

// CancelAfter creates a controller that cancels itself automatically
// after d elapses, stopping the backing timer once either fires.
func CancelAfter(d time.Duration) *CancelController {
	c := NewCancelController()
	t := time.AfterFunc(d, func() { c.Cancel(ErrTimeoutElapsed) })
	c.signal.OnCancel(func(error) { t.Stop() })
	return c
}

// ErrCancelled is the default CancelSignal reason when none is given.
var ErrCancelled = &Error{Kind: KindUnexpectedState, Op: "cancelled"}

// ErrTimeoutElapsed is the reason used by CancelAfter when its duration
// elapses before an explicit Cancel call.
var ErrTimeoutElapsed = &Error{Kind: KindTimeout, Op: "cancel-after elapsed"}
