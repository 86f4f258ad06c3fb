package opencoroutine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := newTimeoutError("wait", errors.New("deadline"))
	require.True(t, errors.Is(err, ErrTimeout))
	require.False(t, errors.Is(err, ErrUnsupported))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := newIOError("read", cause)
	var oerr *Error
	require.True(t, errors.As(err, &oerr))
	require.Same(t, cause, oerr.Unwrap())
}

func TestError_MessageFormatting(t *testing.T) {
	err := &Error{Kind: KindUnexpectedState, Coroutine: "c1", Op: "transition Ready -> Suspend"}
	require.Contains(t, err.Error(), "UnexpectedState")
	require.Contains(t, err.Error(), "c1")
	require.Contains(t, err.Error(), "transition Ready -> Suspend")
}

func TestError_KindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindUnexpectedState:  "UnexpectedState",
		KindTimeout:          "Timeout",
		KindUnsupported:      "Unsupported",
		KindIOError:          "IoError",
		KindPanicInCoroutine: "PanicInCoroutine",
		KindPoolExhausted:    "PoolExhausted",
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.String())
	}
}

func TestNewPanicError_WrapsNonErrorValues(t *testing.T) {
	err := newPanicError("c1", "boom")
	var oerr *Error
	require.True(t, errors.As(err, &oerr))
	require.Equal(t, KindPanicInCoroutine, oerr.Kind)
	require.EqualError(t, oerr.Err, "boom")
}
