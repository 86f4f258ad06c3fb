package hook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	oc "github.com/open-coroutine/opencoroutine-go"
)

func TestSleep_SuspendsThenResumesViaTimer(t *testing.T) {
	sched := oc.NewScheduler(1)
	c := oc.NewCoroutine("sleeper", func(y *oc.Yielder, _ any) (any, error) {
		Sleep(y, time.Hour)
		return "woke", nil
	}, 0)
	sched.Spawn(c, nil)

	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, oc.StateSuspend, c.State().Kind)

	n := sched.PollTimers(uint64(time.Now().Add(2 * time.Hour).UnixNano()))
	require.Equal(t, 1, n)

	require.True(t, sched.TryScheduleOnce(0))
	require.Equal(t, oc.StateComplete, c.State().Kind)
	require.Equal(t, "woke", c.State().Value)
}
