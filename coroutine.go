package opencoroutine

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

// DefaultStackSize is the default coroutine stack size in bytes (§6 Config).
//
// Go coroutines run on goroutine stacks, which grow on demand rather than
// being fixed allocations; this constant is kept and threaded through the
// API purely so that stackSize has the same meaning and default as the
// original runtime's 128 KiB fixed stack, for callers sizing pools.
const DefaultStackSize = 128 * 1024

// Func is a coroutine body. It receives a Yielder (the only way to
// suspend) and the first resume argument, and returns a final value or an
// error (which becomes the Error(msg) terminal state).
type Func func(y *Yielder, arg any) (any, error)

// Listener is notified on every coroutine state transition. Listener
// errors are logged but never alter the transition (§4.2).
type Listener func(c *Coroutine, from, to CoroutineState)

type yieldMsg struct {
	state CoroutineState
}

// Coroutine is a stackful unit of execution with explicit resume/yield
// semantics (§3, §4.2). The "stack" is an ordinary goroutine; resume/yield
// is implemented as a strict ping-pong handoff over two unbuffered
// channels, the idiomatic Go substitute for a raw machine-context switch
// (there is no portable, non-cgo way to swap raw stacks in Go).
type Coroutine struct {
	name      string
	stackSize int
	fn        Func

	mu        sync.Mutex
	state     CoroutineState
	woken     bool // cleared by Resume, set by Wake; gates indefinite Suspend
	started   bool
	listeners []Listener
	local     *localStorage

	preempted chan struct{} // closed to request a cooperative forced yield
	toCoro    chan any
	fromCoro  chan yieldMsg

	stackBase uintptr // address of a local near the body goroutine's entry, for MaybeGrowStack's headroom estimate

	sched      *Scheduler // owning scheduler, set by Scheduler.Spawn; may be nil
	activeLoop *EventLoop // the EventLoop currently resuming this coroutine, set by Scheduler.runOne; may be nil
}

// NewCoroutine creates a coroutine in state Ready (§3 "created Ready by a
// factory with a user function and stack size").
func NewCoroutine(name string, fn Func, stackSize int) *Coroutine {
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	c := &Coroutine{
		name:      name,
		stackSize: stackSize,
		fn:        fn,
		state:     Ready(),
		local:     newLocalStorage(),
		preempted: make(chan struct{}),
		toCoro:    make(chan any),
		fromCoro:  make(chan yieldMsg),
	}
	globalRegistry.init(c)
	return c
}

// Name returns the coroutine's unique name.
func (c *Coroutine) Name() string { return c.name }

// State returns a snapshot of the current state.
func (c *Coroutine) State() CoroutineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Local returns the coroutine-local storage map. Only the owning
// coroutine's goroutine is authorised to mutate it (§4.2).
func (c *Coroutine) Local() *localStorage { return c.local }

// Scheduler returns the Scheduler this coroutine was spawned onto, or nil
// if it has never been spawned. Used by the syscall facade to arm timeout
// timers and re-wake a coroutine parked in StateSystemCall.
func (c *Coroutine) Scheduler() *Scheduler { return c.sched }

// setActiveLoop records which EventLoop is driving this resume, called by
// Scheduler.runOne before Resume hands control to the coroutine's
// goroutine. A coroutine can be resumed by a different worker each time
// (work stealing), so this is only valid for the duration of one resume.
func (c *Coroutine) setActiveLoop(el *EventLoop) {
	c.mu.Lock()
	c.activeLoop = el
	c.mu.Unlock()
}

// AddListener appends a transition listener.
func (c *Coroutine) AddListener(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Resume drives the coroutine's state machine forward one step, per the
// §4.2 diagram. If the coroutine is already in a terminal state, the same
// terminal state is returned with no side effects (§3 invariant, §8
// universal invariant).
func (c *Coroutine) Resume(arg any) (CoroutineState, error) {
	c.mu.Lock()
	cur := c.state
	if cur.Terminal() {
		c.mu.Unlock()
		return cur, nil
	}
	if cur.Kind == StateSuspend && cur.Deadline == DeadlineForever && !c.woken {
		// §8 boundary: Suspend(_, MAX) never returns without external wake.
		c.mu.Unlock()
		return cur, newUnexpectedState(c.name, cur.String(), StateRunning.String())
	}
	if !validTransition(cur, Running()) {
		c.mu.Unlock()
		return cur, newUnexpectedState(c.name, cur.String(), StateRunning.String())
	}
	c.woken = false
	if !c.started {
		c.started = true
		c.startGoroutine()
	}
	next := Running()
	c.applyLocked(cur, next)
	c.mu.Unlock()

	c.toCoro <- arg
	msg := <-c.fromCoro

	c.mu.Lock()
	from := c.state
	c.applyLocked(from, msg.state)
	result := c.state
	c.mu.Unlock()
	return result, nil
}

// Wake marks the coroutine as having received an external wake-up,
// permitting the next Resume call to proceed out of an indefinite Suspend.
// Called by the Scheduler on timer expiry, by cancellation, and by the
// event loop on I/O readiness.
func (c *Coroutine) Wake() {
	c.mu.Lock()
	c.woken = true
	c.mu.Unlock()
}

// applyLocked stores the new state and fires listeners; caller holds mu.
func (c *Coroutine) applyLocked(from, to CoroutineState) {
	c.state = to
	if to.Terminal() {
		globalRegistry.remove(c.name)
	}
	listeners := c.listeners
	// Listener errors/panics are logged, never allowed to alter the
	// transition (§4.2); run them outside the critical path but still
	// synchronously, matching the teacher's inline-callback style.
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					getGlobalLogger().Error("coroutine listener panicked",
						"coroutine", c.name, "panic", fmt.Sprint(r))
				}
			}()
			l(c, from, to)
		}()
	}
}

func (c *Coroutine) startGoroutine() {
	go func() {
		arg := <-c.toCoro
		var probe byte
		c.stackBase = uintptr(unsafe.Pointer(&probe))
		globalCurrent.initCurrent(c)
		defer globalCurrent.cleanCurrent()
		var result yieldMsg
		func() {
			defer func() {
				if r := recover(); r != nil {
					result = yieldMsg{state: ErrorState(fmt.Sprint(r))}
				}
			}()
			y := &Yielder{co: c}
			ret, err := c.fn(y, arg)
			if err != nil {
				result = yieldMsg{state: ErrorState(err.Error())}
			} else {
				result = yieldMsg{state: Complete(ret)}
			}
		}()
		c.fromCoro <- result
	}()
}

// requestForcedYield is called by the PreemptionMonitor (§4.3). It has no
// effect unless/until the coroutine body reaches a cooperative checkpoint
// (Yielder.Yield, Yielder.Delay, or a hooked syscall boundary) — see
// DESIGN.md for why a synchronous, signal-driven interruption of a raw
// compute loop is not implementable in portable Go.
func (c *Coroutine) requestForcedYield() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.preempted:
		// already pending
	default:
		close(c.preempted)
	}
}

func (c *Coroutine) clearForcedYield() {
	c.mu.Lock()
	c.preempted = make(chan struct{})
	c.mu.Unlock()
}

func (c *Coroutine) preemptRequested() bool {
	c.mu.Lock()
	ch := c.preempted
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Yielder is the handle a coroutine body uses to suspend itself. It is
// only valid for the lifetime of one Func invocation.
type Yielder struct {
	co *Coroutine
}

// Coroutine returns the owning coroutine, e.g. so hooked code can inspect
// its name for diagnostics.
func (y *Yielder) Coroutine() *Coroutine { return y.co }

// Yield suspends the coroutine with an immediate (deadline-0) resume
// window, delivering value to whoever observes the Suspend state, and
// blocks until Resume is called again, returning its argument
// (scenario 1, §8).
func (y *Yielder) Yield(value any) any {
	return y.yieldUntil(value, 0)
}

// Delay suspends the coroutine until d has elapsed, per §4.11 decorator 3
// (timeout arming for sleep-like primitives). d == 0 behaves like Yield.
// Only the ForeverDuration sentinel maps to DeadlineForever; any other d,
// including a negative one, sets the deadline to now plus d.
func (y *Yielder) Delay(d time.Duration) any {
	if d == ForeverDuration {
		return y.yieldUntil(nil, DeadlineForever)
	}
	deadline := uint64(nowNanos() + d.Nanoseconds())
	return y.yieldUntil(nil, deadline)
}

// ForeverDuration is the sentinel Delay duration mapping to an indefinite
// Suspend(_, u64::MAX) (§3).
const ForeverDuration = time.Duration(1<<63 - 1)

// CheckPreempt cooperatively honours a pending forced-yield request from
// the PreemptionMonitor (§4.3), suspending with deadline 0 if one is
// pending. User code and every hooked blocking primitive call this at
// their natural suspension points. It is a no-op if no preemption is
// pending.
func (y *Yielder) CheckPreempt() {
	if y.co.preemptRequested() {
		y.co.clearForcedYield()
		y.Yield(nil)
	}
}

func (y *Yielder) yieldUntil(value any, deadline uint64) any {
	c := y.co
	c.fromCoro <- yieldMsg{state: Suspend(value, deadline)}
	return <-c.toCoro
}

// EnterSyscall parks the coroutine in StateSystemCall(_, id, SyscallSuspend)
// while a hooked blocking primitive (§4.11) waits on the readiness selector
// or the completion operator, returning control once the owning Scheduler
// calls Wake. id identifies the operation for diagnostics (e.g. "read",
// "connect"); it carries no scheduling meaning.
func (y *Yielder) EnterSyscall(id string) any {
	c := y.co
	c.fromCoro <- yieldMsg{state: SystemCall(nil, id, SyscallSuspend)}
	return <-c.toCoro
}

// nowNanos returns the wall-clock time in Unix nanoseconds. Kept as a single
// indirection point so tests can fake the clock.
var nowNanos = func() int64 { return time.Now().UnixNano() }
