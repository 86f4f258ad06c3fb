package opencoroutine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInjector_FIFOOrder(t *testing.T) {
	q := NewInjector()
	a := NewCoroutine("a", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	b := NewCoroutine("b", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)

	q.Push(a, 1)
	q.Push(b, 2)
	require.Equal(t, 2, q.Len())

	first, ok := q.Pop()
	require.True(t, ok)
	require.Same(t, a, first.coroutine)
	require.Equal(t, 1, first.resumeArg)

	second, ok := q.Pop()
	require.True(t, ok)
	require.Same(t, b, second.coroutine)

	_, ok = q.Pop()
	require.False(t, ok)
}

func TestInjector_SpansMultipleChunks(t *testing.T) {
	q := NewInjector()
	c := NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	const n = chunkSize*2 + 7
	for i := 0; i < n; i++ {
		q.Push(c, i)
	}
	require.Equal(t, n, q.Len())
	for i := 0; i < n; i++ {
		task, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, task.resumeArg)
	}
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestInjector_PopN(t *testing.T) {
	q := NewInjector()
	c := NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	for i := 0; i < 5; i++ {
		q.Push(c, i)
	}
	batch := q.PopN(3)
	require.Len(t, batch, 3)
	require.Equal(t, 2, q.Len())

	rest := q.PopN(10)
	require.Len(t, rest, 2)
}

func TestLocalDeque_LIFOBottomFIFOTop(t *testing.T) {
	d := NewLocalDeque()
	c := NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	d.PushBottom(c, 1)
	d.PushBottom(c, 2)
	d.PushBottom(c, 3)
	require.Equal(t, 3, d.Len())

	owner, ok := d.PopBottom()
	require.True(t, ok)
	require.Equal(t, 3, owner.resumeArg)

	thief, ok := d.StealTop()
	require.True(t, ok)
	require.Equal(t, 1, thief.resumeArg)

	require.Equal(t, 1, d.Len())
}

func TestLocalDeque_EmptyPopFails(t *testing.T) {
	d := NewLocalDeque()
	_, ok := d.PopBottom()
	require.False(t, ok)
	_, ok = d.StealTop()
	require.False(t, ok)
}

func TestStealVictim_SkipsSelf(t *testing.T) {
	require.Equal(t, -1, stealVictim(nil, 1, 0))
}
