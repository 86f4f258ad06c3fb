package opencoroutine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// RuntimeMetrics aggregates the runtime's optional, low-overhead
// statistics (§4.10 EXPANSION), enabled via WithMetrics. Structure is
// carried over from the teacher's Metrics/LatencyMetrics/QueueMetrics
// split, retargeted from "loop task latency" to "coroutine resume
// latency" and from ingress/internal/microtask queue depths to
// injector/local-deque/timer-list depths.
type RuntimeMetrics struct {
	Latency ResumeLatency
	Queue   QueueDepth
	mu      sync.Mutex
	TPS     float64 // resumes per second; the Scheduler never sets it, so it stays 0
}

const sampleSize = 1000

// ResumeLatency tracks the distribution of Coroutine.Resume durations
// using a streaming P-Square quantile sketch (quantile.go) for O(1)
// updates, with an exact sort fallback for small sample counts.
type ResumeLatency struct {
	sketch *resumeQuantileSketch
	mu     sync.RWMutex

	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	P50, P90, P95, P99, Max time.Duration
	Mean, Sum               time.Duration
}

// Record adds one resume-duration sample.
func (l *ResumeLatency) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sketch == nil {
		l.sketch = newResumeQuantileSketch(0.50, 0.90, 0.95, 0.99)
	}
	l.sketch.record(float64(d))

	if l.sampleCount >= sampleSize {
		l.Sum -= l.samples[l.sampleIdx]
	}
	l.samples[l.sampleIdx] = d
	l.Sum += d
	l.sampleIdx = (l.sampleIdx + 1) % sampleSize
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample recomputes the cached percentiles and returns the sample count
// they were computed from.
func (l *ResumeLatency) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := l.sampleCount
	if count == 0 {
		return 0
	}
	if count < 5 || l.sketch == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}
	l.P50 = time.Duration(l.sketch.quantile(0))
	l.P90 = time.Duration(l.sketch.quantile(1))
	l.P95 = time.Duration(l.sketch.quantile(2))
	l.P99 = time.Duration(l.sketch.quantile(3))
	l.Max = time.Duration(l.sketch.maxNanos())
	l.Mean = l.Sum / time.Duration(count)
	return count
}

func percentileIndex(n, p int) int {
	idx := (p * n) / 100
	if idx >= n {
		return n - 1
	}
	return idx
}

// QueueDepth tracks depth statistics for the three queues a worker draws
// from: the shared injector, the worker's own local deque, and the
// shared timer list.
type QueueDepth struct {
	mu sync.RWMutex

	InjectorCurrent, LocalCurrent, TimerCurrent int
	InjectorMax, LocalMax, TimerMax             int
	InjectorAvg, LocalAvg, TimerAvg             float64

	injectorInit, localInit, timerInit bool
}

func ema(avg float64, initialized *bool, depth int) float64 {
	if !*initialized {
		*initialized = true
		return float64(depth)
	}
	return 0.9*avg + 0.1*float64(depth)
}

func (q *QueueDepth) UpdateInjector(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.InjectorCurrent = depth
	if depth > q.InjectorMax {
		q.InjectorMax = depth
	}
	q.InjectorAvg = ema(q.InjectorAvg, &q.injectorInit, depth)
}

func (q *QueueDepth) UpdateLocal(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.LocalCurrent = depth
	if depth > q.LocalMax {
		q.LocalMax = depth
	}
	q.LocalAvg = ema(q.LocalAvg, &q.localInit, depth)
}

func (q *QueueDepth) UpdateTimer(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.TimerCurrent = depth
	if depth > q.TimerMax {
		q.TimerMax = depth
	}
	q.TimerAvg = ema(q.TimerAvg, &q.timerInit, depth)
}

// TPSCounter tracks resumes-per-second with a rolling bucketed window, as
// in the teacher's event loop TPS tracker (kept essentially verbatim: it
// is a general-purpose rate counter, not tied to any loop/promise
// concept).
type TPSCounter struct {
	lastRotation atomic.Value
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// NewTPSCounter creates a rolling-window rate counter. Panics if
// windowSize or bucketSize is non-positive, or bucketSize > windowSize.
func NewTPSCounter(windowSize, bucketSize time.Duration) *TPSCounter {
	if windowSize <= 0 {
		panic("opencoroutine: windowSize must be positive")
	}
	if bucketSize <= 0 {
		panic("opencoroutine: bucketSize must be positive")
	}
	if bucketSize > windowSize {
		panic("opencoroutine: bucketSize cannot exceed windowSize")
	}
	c := &TPSCounter{
		buckets:    make([]int64, int(windowSize/bucketSize)),
		bucketSize: bucketSize,
		windowSize: windowSize,
	}
	c.lastRotation.Store(time.Now())
	return c
}

// Increment records one resume.
func (t *TPSCounter) Increment() {
	t.rotate()
	t.mu.Lock()
	t.buckets[len(t.buckets)-1]++
	t.mu.Unlock()
}

func (t *TPSCounter) rotate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	last := t.lastRotation.Load().(time.Time)
	elapsed := now.Sub(last)
	advance := int64(elapsed) / int64(t.bucketSize)
	if advance < 0 || advance > int64(len(t.buckets)) {
		advance = int64(len(t.buckets))
	}
	n := int(advance)
	if n >= len(t.buckets) {
		for i := range t.buckets {
			t.buckets[i] = 0
		}
		t.lastRotation.Store(now)
		return
	}
	if n <= 0 {
		return
	}
	copy(t.buckets, t.buckets[n:])
	for i := len(t.buckets) - n; i < len(t.buckets); i++ {
		t.buckets[i] = 0
	}
	t.lastRotation.Store(last.Add(time.Duration(n) * t.bucketSize))
}

// TPS returns resumes per second over the configured window.
func (t *TPSCounter) TPS() float64 {
	t.rotate()
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum int64
	for _, c := range t.buckets {
		sum += c
	}
	if sum == 0 {
		return 0
	}
	return float64(sum) / (float64(len(t.buckets)) * t.bucketSize.Seconds())
}
