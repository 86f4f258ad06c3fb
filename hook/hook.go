// Package hook implements the syscall facade (C11, §4.11): a four-
// decorator chain wrapping blocking POSIX-style primitives so coroutine
// bodies can call them without ever parking the host goroutine.
//
//  1. State transition — the call parks the coroutine in
//     StateSystemCall(_, id, SyscallSuspend) via Yielder.EnterSyscall
//     instead of letting the underlying goroutine block.
//  2. Non-blocking adapter — the fd is marked in the process-wide
//     NON_BLOCKING set (§5) and EAGAIN/EWOULDBLOCK is treated as "not
//     ready yet" rather than an error.
//  3. Timeout arming — an optional deadline is armed on the coroutine's
//     Scheduler, racing the readiness callback.
//  4. Raw invocation — the actual syscall, via golang.org/x/sys/unix,
//     retried on EINTR.
//
// Every hooked call needs a registered Scheduler (for timeout arming and
// Wake) reachable via Yielder.Coroutine().Scheduler(), and a shared
// readiness selector, started lazily by this package rather than reused
// from whichever per-worker EventLoop happens to resume the coroutine —
// a coroutine can be resumed by a different worker each time (work
// stealing), so there is no single EventLoop selector a hook call could
// reliably register against.
package hook

import (
	"sync"
	"sync/atomic"
	"time"

	oc "github.com/open-coroutine/opencoroutine-go"
	"github.com/open-coroutine/opencoroutine-go/ioqueue"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

var (
	pollerOnce sync.Mutex
	poller     selector.Selector
)

func sharedSelector() (selector.Selector, error) {
	pollerOnce.Lock()
	defer pollerOnce.Unlock()
	if poller != nil {
		return poller, nil
	}
	sel := selector.New()
	if err := sel.Init(); err != nil {
		return nil, err
	}
	go runPoller(sel)
	poller = sel
	return sel, nil
}

// runPoller drives the shared selector on its own goroutine for the
// lifetime of the process; there is exactly one regardless of how many
// coroutines or workers are hooking syscalls.
func runPoller(sel selector.Selector) {
	for {
		if _, err := sel.PollIO(100); err != nil {
			if err == selector.ErrClosed {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}
}

// timeoutMarker is the resumeArg ScheduleDelay carries through
// Scheduler.PollTimers -> Scheduler.Wake -> Yielder.EnterSyscall's return
// value, letting waitReady tell a timeout-driven resume apart from a
// readiness-driven one (plain nil).
type timeoutMarker struct{}

// waitReady parks the calling coroutine until fd becomes ready for
// events, or until deadline elapses (oc.ForeverDuration meaning "no
// timeout"). Implements decorators 1 and 3. resolved guards against both
// the readiness callback and the timer racing to Wake the same coroutine.
func waitReady(y *oc.Yielder, fd int, events selector.IOEvents, deadline time.Duration) error {
	sel, err := sharedSelector()
	if err != nil {
		return err
	}
	sched := y.Coroutine().Scheduler()
	c := y.Coroutine()

	var resolved atomic.Bool
	var timer *oc.TimerEntry
	if err := sel.RegisterFD(fd, events, func(selector.IOEvents) {
		if resolved.CompareAndSwap(false, true) && sched != nil {
			sched.CancelTimer(timer)
			sched.Wake(c, nil)
		}
	}); err != nil {
		return err
	}
	defer func() { _ = sel.UnregisterFD(fd) }()

	if deadline != oc.ForeverDuration && sched != nil {
		deadlineNanos := uint64(time.Now().Add(deadline).UnixNano())
		timer = sched.ScheduleDelay(deadlineNanos, c, timeoutMarker{})
	}

	result := y.EnterSyscall("io")
	resolved.Store(true)

	if _, timedOut := result.(timeoutMarker); timedOut {
		return oc.ErrTimeout
	}
	return nil
}

// completionIO submits s on the coroutine's currently-driving EventLoop's
// completion operator (§4.9) and parks until it either lands or deadline
// elapses. handled is false when no completion operator is reachable
// (WithIOURing wasn't enabled, or this op/kernel doesn't support it) — the
// caller should fall back to waitReady's readiness path in that case,
// exactly the "§2 C11 invokes C9, or retries the raw syscall" split.
func completionIO(y *oc.Yielder, s ioqueue.Submission, deadline time.Duration) (comp ioqueue.Completion, handled bool, err error) {
	c := y.Coroutine()
	token, serr := c.SubmitIO(s)
	if serr != nil {
		return ioqueue.Completion{}, false, nil
	}

	sched := c.Scheduler()
	var timer *oc.TimerEntry
	if deadline != oc.ForeverDuration && sched != nil {
		deadlineNanos := uint64(time.Now().Add(deadline).UnixNano())
		timer = sched.ScheduleDelay(deadlineNanos, c, timeoutMarker{})
	}

	result := y.EnterSyscall("io")
	if sched != nil {
		sched.CancelTimer(timer)
	}

	if _, timedOut := result.(timeoutMarker); timedOut {
		return ioqueue.Completion{}, true, oc.ErrTimeout
	}
	got, ok := result.(ioqueue.Completion)
	if !ok || got.Token != token {
		return ioqueue.Completion{}, true, oc.ErrUnexpectedState
	}
	return got, true, nil
}
