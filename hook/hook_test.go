//go:build !windows

package hook

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	oc "github.com/open-coroutine/opencoroutine-go"
)

func TestReadWrite_RoundTripThroughPipe(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer Close(fds[0])
	defer Close(fds[1])

	c := oc.NewCoroutine("pipe-roundtrip", func(y *oc.Yielder, _ any) (any, error) {
		n, err := Write(y, fds[1], []byte("hello"), oc.ForeverDuration)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := Read(y, fds[0], buf, oc.ForeverDuration); err != nil {
			return nil, err
		}
		return string(buf), nil
	}, 0)

	st, err := c.Resume(nil)
	require.NoError(t, err)
	require.Equal(t, oc.StateComplete, st.Kind)
	require.Equal(t, "hello", st.Value)
}

func TestEnsureNonBlocking_TracksFDOnce(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer Close(fds[0])
	defer Close(fds[1])

	require.False(t, IsNonBlocking(fds[0]))
	require.NoError(t, ensureNonBlocking(fds[0]))
	require.True(t, IsNonBlocking(fds[0]))
	// Calling again on an already-tracked fd is a no-op, not an error.
	require.NoError(t, ensureNonBlocking(fds[0]))
}

func TestClose_ForgetsNonBlockingState(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer Close(fds[1])

	require.NoError(t, ensureNonBlocking(fds[0]))
	require.True(t, IsNonBlocking(fds[0]))
	require.NoError(t, Close(fds[0]))
	require.False(t, IsNonBlocking(fds[0]))
}

func TestRetryEINTR_ReturnsOnNonEINTRError(t *testing.T) {
	calls := 0
	n, err := retryEINTR(func() (int, error) {
		calls++
		return 0, unix.EBADF
	})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, unix.EBADF)
	require.Equal(t, 1, calls)
}

func TestRetryEINTR_RetriesOnEINTR(t *testing.T) {
	calls := 0
	n, err := retryEINTR(func() (int, error) {
		calls++
		if calls < 3 {
			return 0, unix.EINTR
		}
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, 3, calls)
}

func TestIsWouldBlock(t *testing.T) {
	require.True(t, isWouldBlock(unix.EAGAIN))
	require.True(t, isWouldBlock(unix.EWOULDBLOCK))
	require.False(t, isWouldBlock(unix.EBADF))
}
