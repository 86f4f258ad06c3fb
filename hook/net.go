//go:build !windows

package hook

import (
	"time"

	"golang.org/x/sys/unix"

	oc "github.com/open-coroutine/opencoroutine-go"
	"github.com/open-coroutine/opencoroutine-go/ioqueue"
	"github.com/open-coroutine/opencoroutine-go/selector"
)

// Accept hooks a blocking accept(2), waiting for the listening fd to
// become readable before each retry (§4.9 op Accept). Prefers the
// completion operator when available: a successful completion's Result is
// the new fd directly (io_uring performs the accept() itself), followed
// by getpeername(2) to recover the peer address, since this module's
// Submission has no buffer for the kernel to write a sockaddr into.
func Accept(y *oc.Yielder, fd int, deadline time.Duration) (int, unix.Sockaddr, error) {
	if err := ensureNonBlocking(fd); err != nil {
		return -1, nil, err
	}
	for {
		y.CheckPreempt()
		if comp, handled, err := completionIO(y, ioqueue.Submission{Op: ioqueue.OpAccept, FD: fd}, deadline); handled {
			if err != nil {
				return -1, nil, err
			}
			if comp.Result < 0 {
				if errno := unix.Errno(-comp.Result); errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
					continue
				} else {
					return -1, nil, errno
				}
			}
			nfd := int(comp.Result)
			sa, serr := unix.Getpeername(nfd)
			return nfd, sa, serr
		}
		nfd, sa, err := unix.Accept(fd)
		if err == nil {
			return nfd, sa, nil
		}
		if err == unix.EINTR {
			continue
		}
		if !isWouldBlock(err) {
			return -1, nil, err
		}
		if werr := waitReady(y, fd, selector.EventRead, deadline); werr != nil {
			return -1, nil, werr
		}
	}
}

// Connect hooks a non-blocking connect(2): the kernel either completes the
// handshake immediately, reports EINPROGRESS (wait for writability then
// check SO_ERROR), or fails outright (§4.9 op Connect). Stays on the
// readiness path only: IORING_OP_CONNECT needs the destination sockaddr
// inside the submission, and golang.org/x/sys/unix deliberately keeps the
// unix.Sockaddr -> raw-pointer conversion unexported, so there is no safe,
// portable way to plumb it into ioqueue.Submission.
func Connect(y *oc.Yielder, fd int, sa unix.Sockaddr, deadline time.Duration) error {
	if err := ensureNonBlocking(fd); err != nil {
		return err
	}
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS && err != unix.EALREADY {
		return err
	}
	if werr := waitReady(y, fd, selector.EventWrite, deadline); werr != nil {
		return werr
	}
	errno, serr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if serr != nil {
		return serr
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
