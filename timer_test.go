package opencoroutine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimerList_ExpiredOrdering(t *testing.T) {
	tl := NewTimerList()
	c := NewCoroutine("t", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	tl.Add(30, c, "c")
	tl.Add(10, c, "a")
	tl.Add(20, c, "b")

	expired := tl.Expired(25)
	require.Len(t, expired, 2)
	require.Equal(t, "a", expired[0].resumeArg)
	require.Equal(t, "b", expired[1].resumeArg)
	require.Equal(t, 1, tl.Len())
}

func TestTimerList_CancelSkipsEntry(t *testing.T) {
	tl := NewTimerList()
	c := NewCoroutine("t", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	e := tl.Add(10, c, nil)
	tl.Cancel(e)

	_, ok := tl.NextDeadline()
	require.False(t, ok)
	require.Empty(t, tl.Expired(100))
}

func TestTimerList_NextDeadlineSkipsCancelledHead(t *testing.T) {
	tl := NewTimerList()
	c := NewCoroutine("t", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	first := tl.Add(10, c, nil)
	tl.Add(20, c, nil)
	tl.Cancel(first)

	deadline, ok := tl.NextDeadline()
	require.True(t, ok)
	require.Equal(t, uint64(20), deadline)
}

func TestTimerList_EmptyHasNoDeadline(t *testing.T) {
	tl := NewTimerList()
	_, ok := tl.NextDeadline()
	require.False(t, ok)
	require.Equal(t, 0, tl.Len())
}
