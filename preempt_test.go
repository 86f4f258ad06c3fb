package opencoroutine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Preemption of a compute loop scenario. Given preemption enabled,
// a coroutine the monitor tracks as Running past its slice must be
// requested to force-yield within 2x the configured slice.
func TestPreemptionMonitor_RequestsForcedYieldAfterSlice(t *testing.T) {
	m := NewPreemptionMonitor(10 * time.Millisecond)
	go m.Run()
	defer m.Stop()

	c := NewCoroutine("busy", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	c.AddListener(m.Listener())
	m.NotifyRunning(c)

	deadline := time.After(2 * m.slice)
	for {
		if c.preemptRequested() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("forced yield never requested within 2x slice")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPreemptionMonitor_NotifyStoppedStopsTracking(t *testing.T) {
	m := NewPreemptionMonitor(5 * time.Millisecond)
	c := NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	m.NotifyRunning(c)
	m.NotifyStopped(c)

	m.scan()
	require.False(t, c.preemptRequested())
}

func TestPreemptionMonitor_ListenerTracksRunningOnly(t *testing.T) {
	m := NewPreemptionMonitor(5 * time.Millisecond)
	c := NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	l := m.Listener()

	l(c, Ready(), Running())
	m.mu.Lock()
	_, tracked := m.tracked[c]
	m.mu.Unlock()
	require.True(t, tracked)

	l(c, Running(), Suspend(nil, 0))
	m.mu.Lock()
	_, tracked = m.tracked[c]
	m.mu.Unlock()
	require.False(t, tracked)
}
