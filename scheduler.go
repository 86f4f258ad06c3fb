package opencoroutine

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"
)

// Scheduler owns a pool of workers, each with a local work-stealing
// deque, a shared global injector and a shared timer list (§4.6). It is
// adapted from the teacher's single-goroutine Loop (internal/alternatethree
// included) generalised from "one loop, N plain tasks" to "N workers,
// coroutines with their own suspend/resume lifecycle".
type Scheduler struct {
	injector *Injector
	timers   *TimerList
	monitor  *PreemptionMonitor
	logger   Logger
	metrics  *RuntimeMetrics // optional, set by Runtime when WithMetrics(true)

	mu      sync.Mutex
	workers []*worker
	rngPool sync.Pool
	wakers  []func()

	closed atomic.Bool
}

// AddWaker registers fn to be called whenever new work becomes available
// (Spawn, Wake, or a timer newly scheduled ahead of every existing one),
// so an EventLoop blocked in selector.Selector.PollIO can interrupt its
// wait instead of sleeping out a poll timeout. Typically fn wraps a
// selector.Waker's Signal method.
func (s *Scheduler) AddWaker(fn func()) {
	s.mu.Lock()
	s.wakers = append(s.wakers, fn)
	s.mu.Unlock()
}

func (s *Scheduler) signalWakers() {
	s.mu.Lock()
	wakers := s.wakers
	s.mu.Unlock()
	for _, fn := range wakers {
		fn()
	}
}

// worker is one scheduling lane: a local deque plus a random-number
// source for steal victim selection, pinned to exactly one goroutine by
// the EventLoop that drives it via TryScheduleOnce.
type worker struct {
	id    int
	local *LocalDeque
	loop  *EventLoop // set once by Scheduler.attachEventLoop before Run starts
}

// NewScheduler creates a scheduler with numWorkers local lanes sharing
// one injector and timer list. numWorkers <= 0 defaults to 1.
func NewScheduler(numWorkers int) *Scheduler {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	s := &Scheduler{
		injector: NewInjector(),
		timers:   NewTimerList(),
		monitor:  NewPreemptionMonitor(DefaultTimeSlice),
		logger:   getGlobalLogger(),
	}
	s.rngPool.New = func() any { return rand.New(rand.NewSource(1)) }
	for i := 0; i < numWorkers; i++ {
		s.workers = append(s.workers, &worker{id: i, local: NewLocalDeque()})
	}
	return s
}

// NumWorkers returns the configured worker count.
func (s *Scheduler) NumWorkers() int { return len(s.workers) }

// attachEventLoop records which EventLoop drives workerIdx, so runOne can
// stamp each resumed coroutine with the loop to submit completion-operator
// I/O against (§4.9). Called once per worker during Runtime setup, before
// any EventLoop.Run goroutine starts.
func (s *Scheduler) attachEventLoop(workerIdx int, el *EventLoop) {
	if workerIdx < 0 || workerIdx >= len(s.workers) {
		return
	}
	s.workers[workerIdx].loop = el
}

// Monitor returns the scheduler's preemption monitor, so callers can Run
// and Stop it alongside the scheduler's own lifecycle.
func (s *Scheduler) Monitor() *PreemptionMonitor { return s.monitor }

// Spawn attaches a freshly created coroutine to the scheduler and enqueues
// its first resume onto the least-loaded worker's local deque, or the
// injector if the scheduler has no workers.
func (s *Scheduler) Spawn(c *Coroutine, arg any) {
	c.sched = s
	c.AddListener(s.monitor.Listener())
	if len(s.workers) == 0 {
		s.injector.Push(c, arg)
		return
	}
	w := s.leastLoaded()
	w.local.PushBottom(c, arg)
	s.signalWakers()
}

func (s *Scheduler) leastLoaded() *worker {
	best := s.workers[0]
	for _, w := range s.workers[1:] {
		if w.local.Len() < best.local.Len() {
			best = w
		}
	}
	return best
}

// Wake re-enqueues a parked coroutine once its deadline or I/O readiness
// fires (§4.5, §4.8), pushing onto the global injector so any idle worker
// can pick it up.
func (s *Scheduler) Wake(c *Coroutine, arg any) {
	c.Wake()
	s.injector.Push(c, arg)
	s.signalWakers()
}

// ScheduleDelay parks c behind the timer list instead of resuming it
// immediately, returning the cancellable timer handle.
func (s *Scheduler) ScheduleDelay(deadline uint64, c *Coroutine, arg any) *timerEntry {
	e := s.timers.Add(deadline, c, arg)
	if next, ok := s.timers.NextDeadline(); ok && next == deadline {
		// This entry is now the earliest pending deadline; a loop parked
		// in PollIO with a longer timeout needs to recompute it.
		s.signalWakers()
	}
	return e
}

// TimerEntry is the opaque handle ScheduleDelay returns, passed back to
// CancelTimer. Exported as an alias so calling packages (e.g. hook) can
// hold the value without reaching into the unexported timerEntry type.
type TimerEntry = timerEntry

// CancelTimer drops a pending entry returned by ScheduleDelay before it
// fires, e.g. because the coroutine it belonged to was woken by another
// path first (§4.11 timeout-arming decorator racing readiness).
func (s *Scheduler) CancelTimer(e *timerEntry) {
	if e == nil {
		return
	}
	s.timers.Cancel(e)
}

// PollTimers moves every expired timer entry onto the injector. Called by
// the owning EventLoop once per tick, before TryScheduleOnce.
func (s *Scheduler) PollTimers(now uint64) int {
	expired := s.timers.Expired(now)
	for _, e := range expired {
		s.Wake(e.coroutine, e.resumeArg)
	}
	return len(expired)
}

// TryScheduleOnce runs one scheduling step for the worker identified by
// workerIdx: pop a ready task from its local deque, falling back to the
// shared injector, falling back to stealing from a random peer. Returns
// false if no work was available anywhere (§4.6).
func (s *Scheduler) TryScheduleOnce(workerIdx int) bool {
	if workerIdx < 0 || workerIdx >= len(s.workers) {
		return false
	}
	w := s.workers[workerIdx]

	t, ok := w.local.PopBottom()
	if !ok {
		if batch := s.injector.PopN(chunkSize / 4); len(batch) > 0 {
			t = batch[0]
			for _, extra := range batch[1:] {
				w.local.PushBottom(extra.coroutine, extra.resumeArg)
			}
			ok = true
		}
	}
	if !ok {
		ok = s.steal(workerIdx, &t)
	}
	if !ok {
		return false
	}

	if s.metrics != nil {
		s.metrics.Queue.UpdateInjector(s.injector.Len())
		s.metrics.Queue.UpdateLocal(w.local.Len())
		s.metrics.Queue.UpdateTimer(s.timers.Len())
	}
	s.runOne(w, t)
	return true
}

func (s *Scheduler) steal(workerIdx int, out *readyTask) bool {
	if len(s.workers) <= 1 {
		return false
	}
	rng := s.rngPool.Get().(*rand.Rand)
	defer s.rngPool.Put(rng)
	victimIdx := stealVictim(rng, len(s.workers), workerIdx)
	if victimIdx < 0 {
		return false
	}
	t, ok := s.workers[victimIdx].local.StealTop()
	if !ok {
		return false
	}
	*out = t
	return true
}

// runOne resumes one coroutine and routes its new state: Suspend with a
// finite deadline goes to the timer list, Suspend(forever) and SystemCall
// park until externally woken, Complete/Error are left for the caller to
// observe via State()/listeners.
func (s *Scheduler) runOne(w *worker, t readyTask) {
	t.coroutine.setActiveLoop(w.loop)
	start := time.Now()
	state, err := t.coroutine.Resume(t.resumeArg)
	if s.metrics != nil {
		s.metrics.Latency.Record(time.Since(start))
	}
	if err != nil {
		s.logger.Error("resume failed", "coroutine", t.coroutine.Name(), "err", err)
		return
	}
	switch state.Kind {
	case StateSuspend:
		if state.Deadline == DeadlineForever {
			return // woken only by cancellation or explicit Wake
		}
		s.timers.Add(state.Deadline, t.coroutine, nil)
	case StateSystemCall:
		if state.SyscallState == SyscallSuspend {
			return // woken by the selector/ioqueue completion path
		}
		w.local.PushBottom(t.coroutine, nil)
	case StateComplete, StateError:
		// terminal; nothing further to schedule.
	default:
		w.local.PushBottom(t.coroutine, nil)
	}
}

// Close stops accepting new work. Safe to call more than once.
func (s *Scheduler) Close() {
	s.closed.Store(true)
	s.signalWakers()
}

// Closed reports whether Close has been called.
func (s *Scheduler) Closed() bool { return s.closed.Load() }
