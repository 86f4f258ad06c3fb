package opencoroutine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorage_GetSetDelete(t *testing.T) {
	l := newLocalStorage()

	_, ok := l.Get("k")
	require.False(t, ok)

	l.Set("k", 42)
	v, ok := l.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, v)

	l.Delete("k")
	_, ok = l.Get("k")
	require.False(t, ok)
}

func TestLocal_GetReturnsZeroValueForWrongType(t *testing.T) {
	key := NewLocal[int]("count")
	c := NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)

	c.Local().Set("count", "not an int")
	require.Equal(t, 0, key.Get(c))
}

func TestLocal_GetReturnsZeroValueWhenUnset(t *testing.T) {
	key := NewLocal[string]("missing")
	c := NewCoroutine("c", func(_ *Yielder, _ any) (any, error) { return nil, nil }, 0)
	require.Equal(t, "", key.Get(c))
}
