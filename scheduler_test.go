package opencoroutine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_SpawnAndRun(t *testing.T) {
	sched := NewScheduler(1)
	result := make(chan any, 1)
	c := NewCoroutine("task", func(_ *Yielder, arg any) (any, error) {
		result <- arg
		return "ok", nil
	}, 0)

	sched.Spawn(c, 7)
	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, 7, <-result)
	require.Equal(t, StateComplete, c.State().Kind)
}

func TestScheduler_TryScheduleOnce_EmptyReturnsFalse(t *testing.T) {
	sched := NewScheduler(1)
	require.False(t, sched.TryScheduleOnce(0))
}

func TestScheduler_WorkStealing(t *testing.T) {
	sched := NewScheduler(2)
	done := make(chan struct{}, 1)
	c := NewCoroutine("stealable", func(_ *Yielder, _ any) (any, error) {
		done <- struct{}{}
		return nil, nil
	}, 0)
	sched.Spawn(c, nil)

	// Worker 0 may have been assigned the task (least-loaded tie goes to
	// worker 0); draining worker 1 first should steal it.
	deadline := time.After(time.Second)
	for {
		if sched.TryScheduleOnce(1) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker 1 never found stealable work")
		default:
		}
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stolen coroutine never ran")
	}
}

func TestScheduler_ScheduleDelayAndPollTimers(t *testing.T) {
	sched := NewScheduler(1)
	c := NewCoroutine("delayed", func(y *Yielder, _ any) (any, error) {
		y.Delay(time.Hour)
		return "resumed", nil
	}, 0)
	sched.Spawn(c, nil)
	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, StateSuspend, c.State().Kind)

	n := sched.PollTimers(uint64(time.Now().Add(2 * time.Hour).UnixNano()))
	require.Equal(t, 1, n)
	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, StateComplete, c.State().Kind)
}

func TestScheduler_CancelTimer(t *testing.T) {
	sched := NewScheduler(1)
	c := NewCoroutine("cancellable", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	sched.Spawn(c, nil)

	e := sched.ScheduleDelay(uint64(time.Now().Add(time.Hour).UnixNano()), c, nil)
	sched.CancelTimer(e)
	n := sched.PollTimers(uint64(time.Now().Add(2 * time.Hour).UnixNano()))
	require.Equal(t, 0, n)
}

func TestScheduler_WakeResumesSuspendedCoroutine(t *testing.T) {
	sched := NewScheduler(1)
	c := NewCoroutine("waiter", func(y *Yielder, _ any) (any, error) {
		v := y.Delay(ForeverDuration)
		return v, nil
	}, 0)
	sched.Spawn(c, nil)
	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, StateSuspend, c.State().Kind)

	sched.Wake(c, "payload")
	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, StateComplete, c.State().Kind)
	require.Equal(t, "payload", c.State().Value)
}

// Pool panic isolation: a panicking coroutine reaches Error, a subsequent
// coroutine on the same scheduler still runs to completion; the scheduler
// itself stays schedulable.
func TestScheduler_PanicIsolation(t *testing.T) {
	sched := NewScheduler(1)
	panicker := NewCoroutine("panics", func(_ *Yielder, _ any) (any, error) {
		panic("kaboom")
	}, 0)
	ok := NewCoroutine("survives", func(_ *Yielder, _ any) (any, error) {
		return 2, nil
	}, 0)

	sched.Spawn(panicker, nil)
	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, StateError, panicker.State().Kind)

	sched.Spawn(ok, nil)
	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, StateComplete, ok.State().Kind)
	require.Equal(t, 2, ok.State().Value)
}

func TestScheduler_CloseIsIdempotent(t *testing.T) {
	sched := NewScheduler(1)
	require.False(t, sched.Closed())
	sched.Close()
	sched.Close()
	require.True(t, sched.Closed())
}
