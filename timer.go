package opencoroutine

import (
	"container/heap"
	"sync"
)

// timerEntry is one pending deadline: a coroutine parked in Suspend(_, t)
// or SystemCall(_, _, SyscallSuspend) with a finite deadline, to be woken
// and re-enqueued once its deadline elapses (§4.5). Adapted from the
// teacher's timerHeap, generalised from an arbitrary closure task to a
// coroutine wake-up.
type timerEntry struct {
	deadline  uint64 // absolute nanoseconds, same epoch as CoroutineState.Deadline
	coroutine *Coroutine
	resumeArg any
	index     int // heap.Interface bookkeeping
	cancelled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerList is a deadline-ordered min-heap of parked coroutines (§4.5). A
// Scheduler polls it each scheduling step to find the next wake-up and to
// drain every entry whose deadline has already passed.
type TimerList struct {
	mu sync.Mutex
	h  timerHeap
}

// NewTimerList creates an empty timer list.
func NewTimerList() *TimerList { return &TimerList{} }

// Add schedules coroutine to be woken with resumeArg once now >= deadline.
// Returns a handle that Cancel can use to drop the entry before it fires.
func (t *TimerList) Add(deadline uint64, c *Coroutine, resumeArg any) *timerEntry {
	e := &timerEntry{deadline: deadline, coroutine: c, resumeArg: resumeArg}
	t.mu.Lock()
	heap.Push(&t.h, e)
	t.mu.Unlock()
	return e
}

// Cancel marks e so it is skipped when popped, e.g. because the
// coroutine it belonged to was cancelled or resumed through another path
// first. Safe even if e already fired.
func (t *TimerList) Cancel(e *timerEntry) {
	t.mu.Lock()
	e.cancelled = true
	t.mu.Unlock()
}

// NextDeadline returns the earliest pending, non-cancelled deadline and
// true, or false if the list is empty. Used by the EventLoop to bound its
// poll timeout.
func (t *TimerList) NextDeadline() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.h) > 0 {
		top := t.h[0]
		if top.cancelled {
			heap.Pop(&t.h)
			continue
		}
		return top.deadline, true
	}
	return 0, false
}

// Expired removes and returns every entry whose deadline is <= now,
// skipping cancelled ones.
func (t *TimerList) Expired(now uint64) []*timerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*timerEntry
	for len(t.h) > 0 && t.h[0].deadline <= now {
		e := heap.Pop(&t.h).(*timerEntry)
		if !e.cancelled {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of pending (including cancelled-but-not-yet-
// popped) entries.
func (t *TimerList) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.h)
}
