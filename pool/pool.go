// Package pool implements the coroutine pool (C7): a bounded, keep-alive
// set of worker coroutines materialised on demand to drain a shared task
// queue, instead of one coroutine per submission. Grounded on the
// teacher's promisify/registry scavenging idea (own a bounded number of
// long-lived workers, recycle idle ones) and the pack's noisefs
// workers.Pool Task/Result naming, rebuilt on top of this module's
// Scheduler and cooperative Yield/Delay suspend points rather than a
// goroutine-per-task model.
package pool

import (
	"fmt"
	"sync"
	"time"

	oc "github.com/open-coroutine/opencoroutine-go"
)

// Config holds the §4.7 pool tunables.
type Config struct {
	MinSize   int
	MaxSize   int
	KeepAlive time.Duration
	StackSize int
}

func (c Config) resolve() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 1
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		c.MinSize = 0
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.StackSize <= 0 {
		c.StackSize = oc.DefaultStackSize
	}
	return c
}

// TaskFunc is a pool-submitted unit of work.
type TaskFunc func(arg any) (any, error)

// Handle is returned by Submit; callers block on or poll the result
// (§4.7 "a handle usable to block on or poll the result").
type Handle struct {
	Name string

	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the task completes and returns its result.
func (h *Handle) Wait() (any, error) {
	<-h.done
	return h.result, h.err
}

// Poll reports the result without blocking if the task has finished.
func (h *Handle) Poll() (result any, err error, done bool) {
	select {
	case <-h.done:
		return h.result, h.err, true
	default:
		return nil, nil, false
	}
}

type task struct {
	name string
	fn   TaskFunc
	arg  any
	h    *Handle
}

// Pool materialises up to MaxSize worker coroutines on a Scheduler, each
// looping over a shared task queue and parking (Suspend(_, forever))
// between tasks until either new work wakes it or a reaper goroutine
// retires it after KeepAlive idle (§4.7).
type Pool struct {
	cfg   Config
	sched *oc.Scheduler

	mu          sync.Mutex
	queue       []*task
	idleWorkers []*oc.Coroutine
	idleSince   map[*oc.Coroutine]time.Time
	retiring    map[*oc.Coroutine]bool
	workers     int
	closed      bool

	reapStop chan struct{}
	reapDone chan struct{}
}

// New creates a pool of coroutine workers driven by sched.
func New(sched *oc.Scheduler, cfg Config) *Pool {
	p := &Pool{
		cfg:       cfg.resolve(),
		sched:     sched,
		idleSince: make(map[*oc.Coroutine]time.Time),
		retiring:  make(map[*oc.Coroutine]bool),
		reapStop:  make(chan struct{}),
		reapDone:  make(chan struct{}),
	}
	p.mu.Lock()
	for i := 0; i < p.cfg.MinSize; i++ {
		p.spawnWorkerLocked()
	}
	p.mu.Unlock()
	go p.reapLoop()
	return p
}

// Submit enqueues fn for execution by the next available worker,
// materialising a new one if none are idle and the pool is under
// MaxSize, or waking an idle one directly for low latency. A panic in fn
// is recovered inside the worker and surfaced through the returned Handle
// as a KindPanicInCoroutine *oc.Error, never as a process-level abort;
// the worker coroutine does not enter Error and goes on to the next task.
func (p *Pool) Submit(name string, fn TaskFunc, arg any) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &oc.Error{Kind: oc.KindPoolExhausted, Op: fmt.Sprintf("submit %q: pool closed", name)}
	}
	h := &Handle{Name: name, done: make(chan struct{})}
	p.queue = append(p.queue, &task{name: name, fn: fn, arg: arg, h: h})

	var wake *oc.Coroutine
	switch {
	case len(p.idleWorkers) > 0:
		n := len(p.idleWorkers)
		wake = p.idleWorkers[n-1]
		p.idleWorkers = p.idleWorkers[:n-1]
		delete(p.idleSince, wake)
	case p.workers < p.cfg.MaxSize:
		p.spawnWorkerLocked()
	default:
		p.queue = p.queue[:len(p.queue)-1]
		p.mu.Unlock()
		return nil, &oc.Error{Kind: oc.KindPoolExhausted, Op: fmt.Sprintf("submit %q (max_size=%d)", name, p.cfg.MaxSize)}
	}
	p.mu.Unlock()

	if wake != nil {
		p.sched.Wake(wake, nil)
	}
	return h, nil
}

// NumWorkers reports how many worker coroutines are currently alive.
func (p *Pool) NumWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Close stops accepting new submissions, wakes every idle worker so it
// retires, and stops the keep-alive reaper. Workers already executing a
// task finish it and then retire on their next idle check.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idleWorkers
	p.idleWorkers = nil
	p.mu.Unlock()
	for _, c := range idle {
		p.sched.Wake(c, nil)
	}
	close(p.reapStop)
	<-p.reapDone
}

func (p *Pool) spawnWorkerLocked() {
	p.workers++
	c := oc.NewCoroutine("pool-worker", p.workerBody, p.cfg.StackSize)
	p.sched.Spawn(c, nil)
}

// workerBody loops pulling tasks off the shared queue, yielding between
// tasks so peers get a turn, and parks indefinitely when the queue is
// empty until Submit or the reaper wakes it (§4.7).
func (p *Pool) workerBody(y *oc.Yielder, _ any) (any, error) {
	for {
		t, ok := p.dequeue()
		if !ok {
			if p.parkIdle(y) {
				continue // woken with new work queued
			}
			return nil, nil // retired: closed, or idle past KeepAlive
		}
		p.run(t)
		y.Yield(nil)
	}
}

func (p *Pool) dequeue() (*task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	t := p.queue[0]
	p.queue = p.queue[1:]
	return t, true
}

// parkIdle registers the calling worker as idle and suspends it
// indefinitely. Returns true if it was woken because work is available
// (or might be — the caller re-checks the queue), false if it should
// exit: either the pool closed, or the reaper retired it for having been
// idle longer than KeepAlive.
func (p *Pool) parkIdle(y *oc.Yielder) bool {
	c := y.Coroutine()
	p.mu.Lock()
	if p.closed {
		p.workers--
		p.mu.Unlock()
		return false
	}
	p.idleWorkers = append(p.idleWorkers, c)
	p.idleSince[c] = time.Now()
	p.mu.Unlock()

	y.Delay(oc.ForeverDuration)

	p.mu.Lock()
	retire := p.retiring[c]
	if retire {
		delete(p.retiring, c)
		p.workers--
	}
	p.mu.Unlock()
	return !retire
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.cfg.KeepAlive / 4)
	defer ticker.Stop()
	for {
		select {
		case <-p.reapStop:
			close(p.reapDone)
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	now := time.Now()
	p.mu.Lock()
	remaining := p.workers
	kept := p.idleWorkers[:0:0]
	var toRetire []*oc.Coroutine
	for _, c := range p.idleWorkers {
		if remaining <= p.cfg.MinSize || now.Sub(p.idleSince[c]) < p.cfg.KeepAlive {
			kept = append(kept, c)
			continue
		}
		toRetire = append(toRetire, c)
		p.retiring[c] = true
		delete(p.idleSince, c)
		remaining--
	}
	p.idleWorkers = kept
	p.mu.Unlock()
	for _, c := range toRetire {
		p.sched.Wake(c, nil)
	}
}

func (p *Pool) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			t.h.err = &oc.Error{Kind: oc.KindPanicInCoroutine, Coroutine: t.name, Op: "panic", Err: fmt.Errorf("%v", r)}
			close(t.h.done)
		}
	}()
	result, err := t.fn(t.arg)
	t.h.result = result
	t.h.err = err
	close(t.h.done)
}
