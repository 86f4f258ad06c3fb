package opencoroutine

import (
	"sync"
	"time"
)

// DefaultTimeSlice is the default budget a coroutine gets before the
// monitor requests a forced yield (§4.3).
const DefaultTimeSlice = 10 * time.Millisecond

// PreemptionMonitor periodically scans every coroutine it tracks and, for
// any that have been Running longer than its time slice, requests a
// forced yield (§4.3). Ported from the teacher's ticker-plus-CAS style
// (the loop's own tick-driven timer/microtask draining in loop.go) rather
// than a signal-driven interrupt: see Coroutine.requestForcedYield for
// why Go cannot synchronously halt an arbitrary running goroutine.
type PreemptionMonitor struct {
	slice time.Duration

	mu      sync.Mutex
	tracked map[*Coroutine]time.Time // coroutine -> time it started Running

	stop chan struct{}
	done chan struct{}
}

// NewPreemptionMonitor creates a monitor with the given time slice. A
// non-positive slice uses DefaultTimeSlice.
func NewPreemptionMonitor(slice time.Duration) *PreemptionMonitor {
	if slice <= 0 {
		slice = DefaultTimeSlice
	}
	return &PreemptionMonitor{
		slice:   slice,
		tracked: make(map[*Coroutine]time.Time),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// NotifyRunning records that c has just transitioned to Running, starting
// its slice clock. Call this from a Listener (see Coroutine.AddListener).
func (m *PreemptionMonitor) NotifyRunning(c *Coroutine) {
	m.mu.Lock()
	m.tracked[c] = time.Now()
	m.mu.Unlock()
}

// NotifyStopped removes c from tracking, e.g. once it yields, completes
// or errors.
func (m *PreemptionMonitor) NotifyStopped(c *Coroutine) {
	m.mu.Lock()
	delete(m.tracked, c)
	m.mu.Unlock()
}

// Listener returns a Listener suitable for Coroutine.AddListener that
// keeps this monitor's tracking table in sync with transitions.
func (m *PreemptionMonitor) Listener() Listener {
	return func(c *Coroutine, from, to CoroutineState) {
		switch to.Kind {
		case StateRunning:
			m.NotifyRunning(c)
		default:
			m.NotifyStopped(c)
		}
	}
}

// Run starts the monitor's scan loop on the calling goroutine, returning
// when Stop is called. Intended to be run in its own goroutine, one per
// Runtime.
func (m *PreemptionMonitor) Run() {
	defer close(m.done)
	ticker := time.NewTicker(m.slice / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.scan()
		}
	}
}

func (m *PreemptionMonitor) scan() {
	now := time.Now()
	m.mu.Lock()
	var overdue []*Coroutine
	for c, started := range m.tracked {
		if now.Sub(started) >= m.slice {
			overdue = append(overdue, c)
		}
	}
	m.mu.Unlock()
	for _, c := range overdue {
		c.requestForcedYield()
	}
}

// Stop halts the monitor's scan loop and waits for it to exit.
func (m *PreemptionMonitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}
