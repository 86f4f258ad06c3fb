package opencoroutine

import (
	"sync"

	"golang.org/x/exp/rand"
)

const (
	// chunkSize is the number of tasks per node in the chunked injector
	// queue, sized for cache locality and to amortize allocation, as in
	// the teacher's ChunkedIngress.
	chunkSize = 128
)

// readyTask is one "make this coroutine runnable" unit handed to the
// global injector or a worker's local deque (§4.4).
type readyTask struct {
	coroutine *Coroutine
	resumeArg any
}

var chunkPool = sync.Pool{New: func() any { return &taskChunk{} }}

type taskChunk struct {
	tasks   [chunkSize]readyTask
	next    *taskChunk
	readPos int
	pos     int
}

func newTaskChunk() *taskChunk {
	c := chunkPool.Get().(*taskChunk)
	c.pos, c.readPos, c.next = 0, 0, nil
	return c
}

func returnTaskChunk(c *taskChunk) {
	for i := 0; i < c.pos; i++ {
		c.tasks[i] = readyTask{}
	}
	c.pos, c.readPos, c.next = 0, 0, nil
	chunkPool.Put(c)
}

// Injector is the global, multi-producer multi-consumer ready queue every
// worker drains from when its own local deque runs dry (§4.4). It is the
// chunked linked-list queue from the teacher's ingress path, generalised
// from closures to readyTask values and given its own internal mutex
// (the teacher required the caller to hold an external one).
type Injector struct {
	mu         sync.Mutex
	head, tail *taskChunk
	length     int
}

// NewInjector creates an empty injector queue.
func NewInjector() *Injector { return &Injector{} }

// Push enqueues a coroutine to be resumed with arg.
func (q *Injector) Push(c *Coroutine, arg any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tail == nil {
		q.tail = newTaskChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.tasks) {
		n := newTaskChunk()
		q.tail.next = n
		q.tail = n
	}
	q.tail.tasks[q.tail.pos] = readyTask{coroutine: c, resumeArg: arg}
	q.tail.pos++
	q.length++
}

// Pop removes and returns the oldest ready task, or false if empty.
func (q *Injector) Pop() (readyTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Injector) popLocked() (readyTask, bool) {
	if q.head == nil {
		return readyTask{}, false
	}
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos, q.head.readPos = 0, 0
			return readyTask{}, false
		}
		old := q.head
		q.head = q.head.next
		returnTaskChunk(old)
	}
	if q.head.readPos >= q.head.pos {
		return readyTask{}, false
	}
	t := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = readyTask{}
	q.head.readPos++
	q.length--
	if q.head.readPos >= q.head.pos && q.head == q.tail {
		q.head.pos, q.head.readPos = 0, 0
	}
	return t, true
}

// PopN drains up to n tasks in one critical section, for a worker
// refilling its local deque from the injector in a single batch.
func (q *Injector) PopN(n int) []readyTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]readyTask, 0, n)
	for i := 0; i < n; i++ {
		t, ok := q.popLocked()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// Len returns the current queue length.
func (q *Injector) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// LocalDeque is a per-worker double-ended queue of ready tasks (§4.4). The
// owning worker pushes and pops from the bottom; other workers steal from
// the top. This is a mutex-guarded simplification of a lock-free
// Chase-Lev deque (the teacher's ingress path has no steal side at all,
// only a single-consumer ring); correctness over a single coarse lock was
// preferred here since worker counts are bounded by GOMAXPROCS and steals
// are the uncommon path.
type LocalDeque struct {
	mu    sync.Mutex
	tasks []readyTask
}

// NewLocalDeque creates an empty local deque.
func NewLocalDeque() *LocalDeque { return &LocalDeque{} }

// PushBottom adds a task to the owner's end.
func (d *LocalDeque) PushBottom(c *Coroutine, arg any) {
	d.mu.Lock()
	d.tasks = append(d.tasks, readyTask{coroutine: c, resumeArg: arg})
	d.mu.Unlock()
}

// PopBottom removes a task from the owner's end (LIFO, cheap locality).
func (d *LocalDeque) PopBottom() (readyTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.tasks)
	if n == 0 {
		return readyTask{}, false
	}
	t := d.tasks[n-1]
	d.tasks[n-1] = readyTask{}
	d.tasks = d.tasks[:n-1]
	return t, true
}

// StealTop removes a task from the opposite end (FIFO relative to the
// owner, matching the standard work-stealing fairness argument: thieves
// take the oldest work, the owner keeps the freshest, cache-hot work).
func (d *LocalDeque) StealTop() (readyTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return readyTask{}, false
	}
	t := d.tasks[0]
	d.tasks[0] = readyTask{}
	d.tasks = d.tasks[1:]
	return t, true
}

// Len returns the current deque length.
func (d *LocalDeque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// stealVictim picks a random peer index other than self, the standard
// randomised work-stealing victim choice; uses golang.org/x/exp/rand for
// a fast, non-cryptographic source local to the scheduler.
func stealVictim(rng *rand.Rand, n, self int) int {
	if n <= 1 {
		return -1
	}
	v := rng.Intn(n - 1)
	if v >= self {
		v++
	}
	return v
}
