package opencoroutine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_InitLookupRemove(t *testing.T) {
	r := newRegistry()
	c := NewCoroutine("named", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)

	_, ok := r.lookup("named")
	require.False(t, ok)

	r.init(c)
	got, ok := r.lookup("named")
	require.True(t, ok)
	require.Same(t, c, got)

	r.remove("named")
	_, ok = r.lookup("named")
	require.False(t, ok)
}

func TestRegistry_InitDuplicateNameReplaces(t *testing.T) {
	r := newRegistry()
	first := NewCoroutine("dup", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	second := NewCoroutine("dup", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)

	r.init(first)
	r.init(second)

	got, ok := r.lookup("dup")
	require.True(t, ok)
	require.Same(t, second, got)
}

func TestRegistry_AllReturnsSnapshot(t *testing.T) {
	r := newRegistry()
	a := NewCoroutine("a", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	b := NewCoroutine("b", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	r.init(a)
	r.init(b)

	all := r.all()
	require.Len(t, all, 2)
	r.init(NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0))
	require.Len(t, all, 2, "snapshot must not observe later mutation")
}

func TestCurrentTable_PushCurrentPop(t *testing.T) {
	tbl := newCurrentTable()
	require.Nil(t, tbl.current())

	outer := NewCoroutine("outer", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	inner := NewCoroutine("inner", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)

	tbl.initCurrent(outer)
	require.Same(t, outer, tbl.current())

	tbl.initCurrent(inner)
	require.Same(t, inner, tbl.current())

	tbl.cleanCurrent()
	require.Same(t, outer, tbl.current())

	tbl.cleanCurrent()
	require.Nil(t, tbl.current())
}

func TestCurrentCoroutine_NilOutsideCoroutineBody(t *testing.T) {
	require.Nil(t, CurrentCoroutine())
}

func TestCurrentCoroutine_SetInsideCoroutineBody(t *testing.T) {
	c := NewCoroutine("self-aware", func(_ *Yielder, _ any) (any, error) {
		return CurrentCoroutine(), nil
	}, 0)
	st, err := c.Resume(nil)
	require.NoError(t, err)
	require.Same(t, c, st.Value)
}

func TestLookup_FindsSpawnedCoroutineByName(t *testing.T) {
	sched := NewScheduler(1)
	c := NewCoroutine("lookup-me", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	sched.Spawn(c, nil)

	got, ok := Lookup("lookup-me")
	require.True(t, ok)
	require.Same(t, c, got)
}
