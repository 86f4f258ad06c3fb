package opencoroutine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-coroutine/opencoroutine-go/ioqueue"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// ioRingEntries is the submission/completion queue depth requested from
// the kernel when WithIOURing is enabled (§4.9); rounded up to a power of
// two by io_uring_setup itself.
const ioRingEntries = 256

// maxPollIdle bounds how long a worker's PollIO call blocks when nothing
// is scheduled and no timer is pending, so Close and newly spawned work
// from outside the scheduler are never stuck behind an unbounded wait.
// A waker signal cuts this short in the common case; this is the
// fallback for platforms/paths where the signal races the poll call.
const maxPollIdle = 250 * time.Millisecond

// EventLoop pins one Scheduler worker lane to the calling goroutine,
// driving TryScheduleOnce, timer expiry and readiness polling in a single
// tight loop (§4.8, §4.9). Adapted from the teacher's root loop.go Run/tick
// split, generalised from "one loop, arbitrary JS-style tasks" to "one
// loop per scheduler worker, coroutine resume/park instead of promise
// settlement", and from a single global loop to one-per-worker so that
// TryScheduleOnce(workerIdx) always runs on the same goroutine as the
// selector it polls.
type EventLoop struct {
	workerIdx int
	sched     *Scheduler
	sel       selector.Selector
	waker     selector.Waker
	logger    Logger

	ioq         ioqueue.Queue // nil unless WithIOURing(true)
	ioqMu       sync.Mutex
	ioqWaiters  map[uint64]*Coroutine
	completions []ioqueue.Completion // reused scratch slice for Drain

	stop chan struct{}
	done chan struct{}
}

// newEventLoop creates the readiness selector for workerIdx and registers
// a waker with it so Scheduler.Spawn/Wake/ScheduleDelay can interrupt a
// blocked PollIO call. When enableIOQueue is set it also opens the §4.9
// completion operator (a real io_uring ring on Linux, a noopQueue
// stub elsewhere) so SubmitIO has somewhere to enqueue to.
func newEventLoop(workerIdx int, sched *Scheduler, logger Logger, enableIOQueue bool) (*EventLoop, error) {
	sel := selector.New()
	if err := sel.Init(); err != nil {
		return nil, err
	}
	waker, err := selector.NewWaker(sel)
	if err != nil {
		_ = sel.Close()
		return nil, err
	}
	el := &EventLoop{
		workerIdx:  workerIdx,
		sched:      sched,
		sel:        sel,
		waker:      waker,
		logger:     logger,
		ioqWaiters: make(map[uint64]*Coroutine),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if enableIOQueue {
		ioq, err := ioqueue.NewRing(ioRingEntries)
		if err != nil {
			logger.Warn("io_uring unavailable, falling back to readiness selector", "worker", workerIdx, "err", err.Error())
		} else {
			el.ioq = ioq
		}
	}
	sched.AddWaker(func() { _ = waker.Signal() })
	return el, nil
}

// SubmitIO enqueues s on this loop's completion operator on behalf of c,
// returning ioqueue.ErrUnsupportedOp if WithIOURing wasn't enabled or the
// op isn't implemented on this platform/kernel — callers should fall back
// to the readiness-based hook path in that case (§4.9 "Feature
// detection"). c is woken with the resulting ioqueue.Completion as its
// resume argument once Run's drain loop observes it.
func (el *EventLoop) SubmitIO(c *Coroutine, s ioqueue.Submission) (uint64, error) {
	if el.ioq == nil {
		return 0, ioqueue.ErrUnsupportedOp
	}
	token, err := el.ioq.Submit(s)
	if err != nil {
		return 0, err
	}
	el.ioqMu.Lock()
	el.ioqWaiters[token] = c
	el.ioqMu.Unlock()
	return token, nil
}

// SubmitIO enqueues s on c's currently-driving EventLoop's completion
// operator, if it has one, returning ioqueue.ErrUnsupportedOp otherwise so
// the hook package's syscall facade falls back to the readiness path
// (§4.9 "Feature detection", §4.11 decorator 1). Only valid to call while
// c is actually being resumed (i.e. from within its own coroutine body).
func (c *Coroutine) SubmitIO(s ioqueue.Submission) (uint64, error) {
	c.mu.Lock()
	el := c.activeLoop
	c.mu.Unlock()
	if el == nil {
		return 0, ioqueue.ErrUnsupportedOp
	}
	return el.SubmitIO(c, s)
}

func (el *EventLoop) drainIOQueue() {
	if el.ioq == nil {
		return
	}
	el.completions = el.completions[:0]
	if el.ioq.Drain(&el.completions) == 0 {
		return
	}
	for _, comp := range el.completions {
		el.ioqMu.Lock()
		waiter, ok := el.ioqWaiters[comp.Token]
		if ok {
			delete(el.ioqWaiters, comp.Token)
		}
		el.ioqMu.Unlock()
		if ok {
			el.sched.Wake(waiter, comp)
		}
	}
}

// Selector exposes the loop's readiness selector. The hook package does
// not use it: hook registers fds on its own shared selector.
func (el *EventLoop) Selector() selector.Selector { return el.sel }

// Run drives the loop until Stop is called. Intended to be run on its own
// goroutine, one per worker, mirroring the teacher's one-goroutine-per-
// Loop model (the difference here is N loops sharing one Scheduler rather
// than one loop owning everything).
func (el *EventLoop) Run() {
	defer close(el.done)
	for {
		select {
		case <-el.stop:
			return
		default:
		}

		now := uint64(time.Now().UnixNano())
		el.sched.PollTimers(now)

		worked := false
		for el.sched.TryScheduleOnce(el.workerIdx) {
			worked = true
		}

		select {
		case <-el.stop:
			return
		default:
		}

		timeout := el.pollTimeout(worked)
		n, err := el.sel.PollIO(timeout)
		if err != nil {
			el.logger.Warn("poll failed", "worker", el.workerIdx, "err", err.Error())
			continue
		}
		_ = n

		el.drainIOQueue()
	}
}

// pollTimeout returns how long PollIO should block: zero (non-blocking)
// if this tick already did work and there may be more queued, otherwise
// bounded by the next timer deadline and maxPollIdle.
func (el *EventLoop) pollTimeout(justWorked bool) int {
	if justWorked {
		return 0
	}
	deadline, ok := el.sched.timers.NextDeadline()
	if !ok {
		return int(maxPollIdle / time.Millisecond)
	}
	now := uint64(time.Now().UnixNano())
	if deadline <= now {
		return 0
	}
	wait := time.Duration(deadline-now) / time.Millisecond
	if wait > maxPollIdle/time.Millisecond {
		wait = maxPollIdle / time.Millisecond
	}
	return int(wait)
}

// Stop signals the loop to exit and blocks until it has, closing its
// selector and waker.
func (el *EventLoop) Stop() {
	select {
	case <-el.stop:
	default:
		close(el.stop)
	}
	_ = el.waker.Signal()
	<-el.done
	_ = el.waker.Close()
	_ = el.sel.Close()
	if el.ioq != nil {
		_ = el.ioq.Close()
	}
}

// Runtime is the top-level handle returned by Init: a Scheduler, one
// EventLoop per worker and the shared PreemptionMonitor, each running on
// its own goroutine until Stop (§6 "runtime control API").
type Runtime struct {
	sched   *Scheduler
	loops   []*EventLoop
	monitor *PreemptionMonitor
	metrics *RuntimeMetrics
	cfg     *config

	wg      sync.WaitGroup
	stopped atomic.Bool
}

var (
	globalRuntimeMu sync.Mutex
	globalRuntime   *Runtime
)

// Init starts the default package-wide Runtime (§6 `open_coroutine_init`).
// Calling Init twice without an intervening Stop returns the existing
// Runtime unchanged.
func Init(opts ...Option) (*Runtime, error) {
	globalRuntimeMu.Lock()
	defer globalRuntimeMu.Unlock()
	if globalRuntime != nil {
		return globalRuntime, nil
	}
	rt, err := newRuntime(opts...)
	if err != nil {
		return nil, err
	}
	globalRuntime = rt
	return rt, nil
}

// Stop halts the default package-wide Runtime started by Init
// (§6 `open_coroutine_stop`). A no-op if Init was never called.
func Stop() {
	globalRuntimeMu.Lock()
	rt := globalRuntime
	globalRuntime = nil
	globalRuntimeMu.Unlock()
	if rt != nil {
		rt.Stop()
	}
}

// SubmitTask spawns fn as a new coroutine on the default Runtime's
// scheduler (§6 `task_crate`). Init must have been called first.
func SubmitTask(name string, fn Func, arg any) (*Coroutine, error) {
	globalRuntimeMu.Lock()
	rt := globalRuntime
	globalRuntimeMu.Unlock()
	if rt == nil {
		return nil, newUnsupportedError("SubmitTask: Init has not been called")
	}
	return rt.SubmitTask(name, fn, arg)
}

func newRuntime(opts ...Option) (*Runtime, error) {
	cfg := resolveConfig(opts)
	if cfg.numWorkers <= 0 {
		cfg.numWorkers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.logger
	if logger == nil {
		logger = getGlobalLogger()
	}

	sched := NewScheduler(cfg.numWorkers)
	sched.logger = logger
	sched.monitor = NewPreemptionMonitor(cfg.timeSlice)

	var metrics *RuntimeMetrics
	if cfg.metrics {
		metrics = &RuntimeMetrics{}
		sched.metrics = metrics
	}

	rt := &Runtime{sched: sched, monitor: sched.monitor, metrics: metrics, cfg: cfg}

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		sched.monitor.Run()
	}()

	for i := 0; i < cfg.numWorkers; i++ {
		el, err := newEventLoop(i, sched, logger, cfg.ioUring)
		if err != nil {
			rt.Stop()
			return nil, err
		}
		rt.loops = append(rt.loops, el)
		sched.attachEventLoop(i, el)
	}

	for _, el := range rt.loops {
		el := el
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			el.Run()
		}()
	}
	return rt, nil
}

// Scheduler returns the runtime's underlying Scheduler.
func (rt *Runtime) Scheduler() *Scheduler { return rt.sched }

// Metrics returns the runtime's metrics, or nil if WithMetrics(false) (the
// default).
func (rt *Runtime) Metrics() *RuntimeMetrics { return rt.metrics }

// EventLoops returns the per-worker loops.
func (rt *Runtime) EventLoops() []*EventLoop { return rt.loops }

// SubmitTask creates a coroutine from fn and spawns it onto the
// scheduler's least-loaded worker.
func (rt *Runtime) SubmitTask(name string, fn Func, arg any) (*Coroutine, error) {
	if rt.sched.Closed() {
		return nil, newUnsupportedError("SubmitTask: runtime stopped")
	}
	c := NewCoroutine(name, fn, rt.cfg.stackSize)
	rt.sched.Spawn(c, arg)
	return c, nil
}

// Stop halts every event loop and the preemption monitor, then waits for
// their goroutines to exit. Safe to call more than once.
func (rt *Runtime) Stop() {
	if !rt.stopped.CompareAndSwap(false, true) {
		return
	}
	rt.sched.Close()
	for _, el := range rt.loops {
		el.Stop()
	}
	rt.monitor.Stop()
	rt.wg.Wait()
}
