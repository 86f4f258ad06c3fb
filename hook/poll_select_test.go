//go:build !windows

package hook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	oc "github.com/open-coroutine/opencoroutine-go"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

func TestPoll_ReturnsOnceAnyFDBecomesReady(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer Close(fds[0])
	defer Close(fds[1])

	sched := oc.NewScheduler(1)
	stopDriving := driveScheduler(t, sched)
	defer stopDriving()

	result := make(chan int, 1)
	c := oc.NewCoroutine("poller", func(y *oc.Yielder, _ any) (any, error) {
		pfds := []PollFD{{FD: fds[0], Events: selector.EventRead}}
		n, err := Poll(y, pfds, oc.ForeverDuration)
		if err != nil {
			return nil, err
		}
		result <- n
		return pfds[0].Revents, nil
	}, 0)
	sched.Spawn(c, nil)

	time.Sleep(20 * time.Millisecond) // let the poller register before data arrives
	_, err := unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	select {
	case n := <-result:
		require.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("poll never observed readiness")
	}
}

func TestPoll_TimesOutWithNoReadyFD(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer Close(fds[0])
	defer Close(fds[1])

	sched := oc.NewScheduler(1)
	stopDriving := driveScheduler(t, sched)
	defer stopDriving()

	done := make(chan error, 1)
	c := oc.NewCoroutine("poller-timeout", func(y *oc.Yielder, _ any) (any, error) {
		pfds := []PollFD{{FD: fds[0], Events: selector.EventRead}}
		_, err := Poll(y, pfds, 20*time.Millisecond)
		return nil, err
	}, 0)
	c.AddListener(func(_ *oc.Coroutine, _, to oc.CoroutineState) {
		switch to.Kind {
		case oc.StateError:
			done <- nil // any terminal Error from a timeout is expected
		case oc.StateComplete:
			done <- fmt.Errorf("poll completed without a ready fd")
		}
	})
	sched.Spawn(c, nil)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll never timed out")
	}
}

func TestSelect_SplitsReadyReadsAndWrites(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer Close(fds[0])
	defer Close(fds[1])

	sched := oc.NewScheduler(1)
	stopDriving := driveScheduler(t, sched)
	defer stopDriving()

	result := make(chan struct{ reads, writes []int }, 1)
	c := oc.NewCoroutine("selecter", func(y *oc.Yielder, _ any) (any, error) {
		// fds[1] (the write end) is writable immediately: an empty pipe
		// always has room, so Select should return right away without
		// needing fds[0] to become readable too.
		reads, writes, err := Select(y, []int{fds[0]}, []int{fds[1]}, oc.ForeverDuration)
		if err != nil {
			return nil, err
		}
		result <- struct{ reads, writes []int }{reads, writes}
		return nil, nil
	}, 0)
	sched.Spawn(c, nil)

	select {
	case r := <-result:
		require.Empty(t, r.reads)
		require.Equal(t, []int{fds[1]}, r.writes)
	case <-time.After(2 * time.Second):
		t.Fatal("select never completed")
	}
}
