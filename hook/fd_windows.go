//go:build windows

package hook

import (
	"errors"
	"time"

	oc "github.com/open-coroutine/opencoroutine-go"
)

// ErrUnsupported is returned by every hooked call on Windows: the
// decorator chain here is built on POSIX-style non-blocking fds and
// golang.org/x/sys/unix, which has no Windows build. A Windows facade
// would need overlapped I/O and IOCP completion routing instead of the
// readiness-poll model the Unix build uses; out of scope for this pass.
var ErrUnsupported = errors.New("hook: unsupported on windows")

func Read(_ *oc.Yielder, _ int, _ []byte, _ time.Duration) (int, error) {
	return 0, ErrUnsupported
}

func Write(_ *oc.Yielder, _ int, _ []byte, _ time.Duration) (int, error) {
	return 0, ErrUnsupported
}

func Readv(_ *oc.Yielder, _ int, _ [][]byte, _ time.Duration) (int, error) {
	return 0, ErrUnsupported
}

func Writev(_ *oc.Yielder, _ int, _ [][]byte, _ time.Duration) (int, error) {
	return 0, ErrUnsupported
}

func Close(_ int) error { return ErrUnsupported }

func Accept(_ *oc.Yielder, _ int, _ time.Duration) (int, any, error) {
	return -1, nil, ErrUnsupported
}

func Connect(_ *oc.Yielder, _ int, _ any, _ time.Duration) error {
	return ErrUnsupported
}
