//go:build !windows

package hook

import (
	"time"

	"golang.org/x/sys/unix"

	oc "github.com/open-coroutine/opencoroutine-go"
	"github.com/open-coroutine/opencoroutine-go/ioqueue"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// Read hooks a blocking read(2): non-blocking adapter + readiness wait +
// raw invocation, retried until data arrives, fd is closed by the peer
// (n == 0), an error other than EAGAIN occurs, or deadline elapses.
// deadline == oc.ForeverDuration waits indefinitely (§4.11, §4.9 op Read).
// Prefers the completion operator (C9) over the readiness path on each
// attempt when the coroutine's currently-driving EventLoop has one.
func Read(y *oc.Yielder, fd int, buf []byte, deadline time.Duration) (int, error) {
	if err := ensureNonBlocking(fd); err != nil {
		return 0, err
	}
	for {
		y.CheckPreempt()
		if comp, handled, err := completionIO(y, ioqueue.Submission{Op: ioqueue.OpRead, FD: fd, Buf: buf}, deadline); handled {
			if err != nil {
				return 0, err
			}
			if comp.Result < 0 {
				if errno := unix.Errno(-comp.Result); errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
					continue
				} else {
					return 0, errno
				}
			}
			return int(comp.Result), nil
		}
		n, err := retryEINTR(func() (int, error) { return unix.Read(fd, buf) })
		if err == nil {
			return n, nil
		}
		if !isWouldBlock(err) {
			return n, err
		}
		if werr := waitReady(y, fd, selector.EventRead, deadline); werr != nil {
			return 0, werr
		}
	}
}

// Write hooks a blocking write(2), looping until the whole buffer is sent
// (a short write continues with the remainder, §4.11 "short write
// continuation policy"), an error other than EAGAIN occurs, or deadline
// elapses. Prefers the completion operator over the readiness path on
// each attempt, same as Read.
func Write(y *oc.Yielder, fd int, buf []byte, deadline time.Duration) (int, error) {
	if err := ensureNonBlocking(fd); err != nil {
		return 0, err
	}
	total := 0
	for total < len(buf) {
		y.CheckPreempt()
		if comp, handled, err := completionIO(y, ioqueue.Submission{Op: ioqueue.OpWrite, FD: fd, Buf: buf[total:]}, deadline); handled {
			if err != nil {
				return total, err
			}
			if comp.Result < 0 {
				if errno := unix.Errno(-comp.Result); errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
					continue
				} else {
					return total, errno
				}
			}
			total += int(comp.Result)
			continue
		}
		n, err := retryEINTR(func() (int, error) { return unix.Write(fd, buf[total:]) })
		if n > 0 {
			total += n
		}
		if err == nil {
			continue
		}
		if !isWouldBlock(err) {
			return total, err
		}
		if werr := waitReady(y, fd, selector.EventWrite, deadline); werr != nil {
			return total, werr
		}
	}
	return total, nil
}

// Readv hooks a vectored read(2) (readv, §4.9 op Readv), filling iovecs in
// order. Stays on the readiness path only: a completion-queue readv needs
// the iovec array pinned in kernel-visible memory for the duration of the
// submission, which this module's Submission (a flat Buf plus a Go-side
// Iovecs field) doesn't model, so there is no safe way to hand it to the
// ring.
func Readv(y *oc.Yielder, fd int, iovecs [][]byte, deadline time.Duration) (int, error) {
	if err := ensureNonBlocking(fd); err != nil {
		return 0, err
	}
	for {
		y.CheckPreempt()
		n, err := retryEINTR(func() (int, error) { return unix.Readv(fd, iovecs) })
		if err == nil {
			return n, nil
		}
		if !isWouldBlock(err) {
			return n, err
		}
		if werr := waitReady(y, fd, selector.EventRead, deadline); werr != nil {
			return 0, werr
		}
	}
}

// Writev hooks a vectored write(2) (writev, §4.9 op Writev), recomputing
// the remaining iovec head across each short write: fully-consumed
// leading vectors are dropped and a partially-consumed vector is
// re-sliced to its remainder, so a retry after EAGAIN or a short kernel
// write always resumes exactly where the last attempt left off (§4.11
// decorator 4, short-write continuation generalised to N buffers).
func Writev(y *oc.Yielder, fd int, iovecs [][]byte, deadline time.Duration) (int, error) {
	if err := ensureNonBlocking(fd); err != nil {
		return 0, err
	}
	total := 0
	remaining := iovecs
	for len(remaining) > 0 {
		y.CheckPreempt()
		n, err := retryEINTR(func() (int, error) { return unix.Writev(fd, remaining) })
		if n > 0 {
			total += n
			remaining = advanceIovecs(remaining, n)
		}
		if err == nil {
			continue
		}
		if !isWouldBlock(err) {
			return total, err
		}
		if werr := waitReady(y, fd, selector.EventWrite, deadline); werr != nil {
			return total, werr
		}
	}
	return total, nil
}

// advanceIovecs drops the leading n bytes' worth of vectors from iovecs,
// re-slicing the first remaining vector if n lands inside it rather than
// exactly on a boundary.
func advanceIovecs(iovecs [][]byte, n int) [][]byte {
	for n > 0 && len(iovecs) > 0 {
		if n < len(iovecs[0]) {
			iovecs[0] = iovecs[0][n:]
			return iovecs
		}
		n -= len(iovecs[0])
		iovecs = iovecs[1:]
	}
	return iovecs
}

// Close releases fd's tracked non-blocking state before closing it, so a
// reused fd number doesn't inherit a stale NON_BLOCKING entry.
func Close(fd int) error {
	forgetNonBlocking(fd)
	return unix.Close(fd)
}
