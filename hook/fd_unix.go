//go:build !windows

package hook

import "golang.org/x/sys/unix"

// retryEINTR re-issues fn for as long as it fails with EINTR, the
// standard Go/POSIX idiom for "the call was interrupted, not actually
// refused".
func retryEINTR(fn func() (int, error)) (int, error) {
	for {
		n, err := fn()
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// ensureNonBlocking implements decorator 2's setup half: the first hooked
// call on an fd switches it to O_NONBLOCK and records that in the
// NON_BLOCKING set, so later calls (and Close) know this package, not the
// caller, owns that bit.
func ensureNonBlocking(fd int) error {
	if IsNonBlocking(fd) {
		return nil
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	markNonBlocking(fd)
	return nil
}
