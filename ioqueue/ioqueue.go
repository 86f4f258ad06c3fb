// Package ioqueue implements the optional completion operator (C9):
// submission/completion queues mirroring a trimmed syscall set, draining
// into a token-keyed result table each event-loop poll tick (§4.9).
// Grounded on cloudwego's internal/iouring ring-buffer/SQE-CQE layout and
// mmap/atomic-index bookkeeping, adapted from a general-purpose ring
// wrapper to this module's fixed, spec-named opcode subset and submission-
// token convention.
package ioqueue

import "errors"

// Op identifies one of the §4.9 completion-operator operations.
type Op uint8

const (
	OpNop Op = iota
	OpAccept
	OpConnect
	OpRecv
	OpSend
	OpRead
	OpWrite
	OpReadv
	OpWritev
	OpRecvmsg
	OpSendmsg
	OpShutdown
	OpClose
	OpOpenat
	OpMkdirat
	OpRenameat2
	OpFsync
	OpEpollCtl
	OpPollAdd
	OpPollRemove
	OpTimeoutAdd
	OpTimeoutUpdate
	OpTimeoutRemove
	OpAsyncCancel
	OpSocket
)

// Submission describes one operation to enqueue. Fields not used by Op
// are ignored; Offset applies to read/write/fsync-with-offset.
type Submission struct {
	Op     Op
	FD     int
	Buf    []byte
	Iovecs [][]byte
	Offset int64
	Flags  uint32

	// Path-bearing ops (openat/mkdirat/renameat2).
	Path    string
	NewPath string
	DirFD   int
	Mode    uint32
}

// Completion is one drained result, keyed by the token its Submission
// returned (§4.9 "token → ssize_t_result").
type Completion struct {
	Token  uint64
	Result int64
	Err    error
}

// Queue is the completion operator facade. Each operation returns a
// submission token immediately, copying no user buffers (the slices
// passed in Submission must stay valid until the matching Completion is
// drained). Backpressure: if the kernel submission queue is full, Submit
// appends to an internal backlog retried at the start of the next Drain.
type Queue interface {
	// Submit enqueues s and returns its token, or an error wrapping
	// ErrUnsupportedOp if s.Op isn't implemented on this platform — the syscall
	// facade (§4.11) falls back to the readiness path in that case.
	Submit(s Submission) (token uint64, err error)
	// Drain collects every completion available without blocking,
	// retrying any backlogged submissions first, and returns how many
	// were appended to out.
	Drain(out *[]Completion) int
	// Close releases the underlying ring/fd.
	Close() error
}

// ErrUnsupportedOp is wrapped by any operation's error when the running
// kernel or platform doesn't implement it; the caller should fall back to
// the readiness-based path (§4.9 "Feature detection").
var ErrUnsupportedOp = errors.New("ioqueue: operation unsupported")
