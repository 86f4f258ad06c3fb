package hook

import (
	"sync"
	"sync/atomic"
	"time"

	oc "github.com/open-coroutine/opencoroutine-go"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// PollFD is one descriptor of interest to Poll, mirroring POSIX's struct
// pollfd: Events is what the caller wants to know about, Revents is
// filled in with whatever actually fired by the time Poll returns.
type PollFD struct {
	FD      int
	Events  selector.IOEvents
	Revents selector.IOEvents
}

// Poll hooks a blocking poll(2) (§6 injected symbol `poll`): parks the
// calling coroutine until at least one of fds is ready for its requested
// Events, or deadline elapses, filling in each ready descriptor's
// Revents in place. Returns how many descriptors ended up with a
// non-zero Revents. Generalises waitReady's single-fd registration to an
// arbitrary set, sharing the same package-level selector and timeout-
// arming/readiness-race pattern.
func Poll(y *oc.Yielder, fds []PollFD, deadline time.Duration) (int, error) {
	if len(fds) == 0 {
		return 0, nil
	}
	sel, err := sharedSelector()
	if err != nil {
		return 0, err
	}
	sched := y.Coroutine().Scheduler()
	c := y.Coroutine()

	var mu sync.Mutex
	var resolved atomic.Bool
	var timer *oc.TimerEntry

	registered := make([]int, 0, len(fds))
	for i := range fds {
		i := i
		if rerr := sel.RegisterFD(fds[i].FD, fds[i].Events, func(ev selector.IOEvents) {
			mu.Lock()
			fds[i].Revents |= ev
			mu.Unlock()
			if resolved.CompareAndSwap(false, true) && sched != nil {
				sched.CancelTimer(timer)
				sched.Wake(c, nil)
			}
		}); rerr != nil {
			for _, fd := range registered {
				_ = sel.UnregisterFD(fd)
			}
			return 0, rerr
		}
		registered = append(registered, fds[i].FD)
	}
	defer func() {
		for _, fd := range registered {
			_ = sel.UnregisterFD(fd)
		}
	}()

	if deadline != oc.ForeverDuration && sched != nil {
		deadlineNanos := uint64(time.Now().Add(deadline).UnixNano())
		timer = sched.ScheduleDelay(deadlineNanos, c, timeoutMarker{})
	}

	result := y.EnterSyscall("io")
	resolved.Store(true)

	if _, timedOut := result.(timeoutMarker); timedOut {
		return 0, oc.ErrTimeout
	}

	mu.Lock()
	defer mu.Unlock()
	n := 0
	for i := range fds {
		if fds[i].Revents != 0 {
			n++
		}
	}
	return n, nil
}

// Select hooks a blocking select(2) (§6 injected symbol `select`): waits
// until any fd in reads becomes readable or any fd in writes becomes
// writable, or deadline elapses, returning the ready subsets. A fd
// present in both reads and writes is rejected by the underlying
// selector as a duplicate registration; callers wanting both readiness
// kinds for one fd should use Poll directly with EventRead|EventWrite.
func Select(y *oc.Yielder, reads, writes []int, deadline time.Duration) (readyReads, readyWrites []int, err error) {
	if len(reads) == 0 && len(writes) == 0 {
		return nil, nil, nil
	}
	fds := make([]PollFD, 0, len(reads)+len(writes))
	for _, fd := range reads {
		fds = append(fds, PollFD{FD: fd, Events: selector.EventRead})
	}
	for _, fd := range writes {
		fds = append(fds, PollFD{FD: fd, Events: selector.EventWrite})
	}
	if _, perr := Poll(y, fds, deadline); perr != nil {
		return nil, nil, perr
	}
	for _, pfd := range fds[:len(reads)] {
		if pfd.Revents&selector.EventRead != 0 {
			readyReads = append(readyReads, pfd.FD)
		}
	}
	for _, pfd := range fds[len(reads):] {
		if pfd.Revents&selector.EventWrite != 0 {
			readyWrites = append(readyWrites, pfd.FD)
		}
	}
	return readyReads, readyWrites, nil
}
