//go:build linux

package ioqueue

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux io_uring syscall numbers (stable ABI, x86-64/arm64 generic table).
const (
	sysIoUringSetup    = 425
	sysIoUringEnter    = 426
	sysIoUringRegister = 427
)

const (
	ioringFeatSingleMmap = 1 << 0
	ioringEnterGetEvents = 1 << 0
	ioringOffSQRing      = 0
	ioringOffCQRing      = 0x8000000
	ioringOffSQEs        = 0x10000000
)

type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFD         uint32
	resv         [3]uint32
	sqOff        ioSqringOffsets
	cqOff        ioCqringOffsets
}

type ioSqringOffsets struct {
	head, tail, ringMask, ringEntries, flags, dropped, array, resv1 uint32
	resv2                                                           uint64
}

type ioCqringOffsets struct {
	head, tail, ringMask, ringEntries, overflow, cqes uint32
	flags                                              uint64
	resv1                                               uint32
	resv2                                               uint64
}

// ioUringSQE is the 64-byte submission queue entry layout (Linux kernel
// ABI, io_uring.h struct io_uring_sqe trimmed to the fields the opcode
// subset in ioqueue.go actually needs).
type ioUringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	unionFlags  uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFDIn  int32
	pad         [2]uint64
}

// ioUringCQE is the completion queue entry layout.
type ioUringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

func ioUringSetup(entries uint32, p *ioUringParams) (int, error) {
	r1, _, errno := unix.Syscall(sysIoUringSetup, uintptr(entries), uintptr(unsafe.Pointer(p)), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

func ioUringEnter(fd int, toSubmit, minComplete, flags uint32) (int, error) {
	for {
		r1, _, errno := unix.Syscall6(sysIoUringEnter, uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return int(r1), errno
		}
		return int(r1), nil
	}
}

// ring wraps one io_uring instance: the mmap'd SQ/CQ and the raw SQE
// array, mirroring the reference implementation's SubmissionQueue/
// CompletionQueue split one-for-one.
type ring struct {
	fd      int
	ringMem []byte
	sqeMem  []byte

	sqHead, sqTail, sqFlags, sqDropped, sqArray *uint32
	sqMask, sqEntries                           uint32
	sqes                                        []ioUringSQE

	cqHead, cqTail, cqOverflow *uint32
	cqMask, cqEntries          uint32
	cqes                       []ioUringCQE
}

func newRing(entries uint32) (*ring, error) {
	var params ioUringParams
	fd, err := ioUringSetup(entries, &params)
	if err != nil {
		return nil, fmt.Errorf("ioqueue: io_uring_setup: %w", err)
	}
	if params.features&ioringFeatSingleMmap == 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ioqueue: kernel lacks IORING_FEAT_SINGLE_MMAP: %w", ErrUnsupportedOp)
	}

	r := &ring{fd: fd}
	pageSize := uint32(syscall.Getpagesize())

	sqSize := params.sqOff.array + params.sqEntries*4
	cqSize := params.cqOff.cqes + params.cqEntries*uint32(unsafe.Sizeof(ioUringCQE{}))
	ringSize := sqSize
	if cqSize > ringSize {
		ringSize = cqSize
	}
	ringSize = (ringSize + pageSize - 1) &^ (pageSize - 1)

	ringMem, err := unix.Mmap(fd, ioringOffSQRing, int(ringSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ioqueue: mmap ring: %w", err)
	}
	r.ringMem = ringMem

	sqeSize := params.sqEntries * uint32(unsafe.Sizeof(ioUringSQE{}))
	sqeMem, err := unix.Mmap(fd, ioringOffSQEs, int(sqeSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(r.ringMem)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ioqueue: mmap sqes: %w", err)
	}
	r.sqeMem = sqeMem

	at := func(off uint32) unsafe.Pointer { return unsafe.Pointer(&r.ringMem[off]) }
	r.sqHead = (*uint32)(at(params.sqOff.head))
	r.sqTail = (*uint32)(at(params.sqOff.tail))
	r.sqMask = *(*uint32)(at(params.sqOff.ringMask))
	r.sqEntries = *(*uint32)(at(params.sqOff.ringEntries))
	r.sqFlags = (*uint32)(at(params.sqOff.flags))
	r.sqDropped = (*uint32)(at(params.sqOff.dropped))
	r.sqArray = (*uint32)(at(params.sqOff.array))
	r.sqes = unsafe.Slice((*ioUringSQE)(unsafe.Pointer(&r.sqeMem[0])), params.sqEntries)

	r.cqHead = (*uint32)(at(params.cqOff.head))
	r.cqTail = (*uint32)(at(params.cqOff.tail))
	r.cqMask = *(*uint32)(at(params.cqOff.ringMask))
	r.cqEntries = *(*uint32)(at(params.cqOff.ringEntries))
	r.cqOverflow = (*uint32)(at(params.cqOff.overflow))
	r.cqes = unsafe.Slice((*ioUringCQE)(unsafe.Pointer(&r.ringMem[params.cqOff.cqes])), params.cqEntries)

	runtime.SetFinalizer(r, (*ring).close)
	return r, nil
}

// peekSQE returns the next free submission slot, or nil if full.
func (r *ring) peekSQE() *ioUringSQE {
	tail := atomic.LoadUint32(r.sqTail)
	head := atomic.LoadUint32(r.sqHead)
	if tail-head >= r.sqEntries {
		return nil
	}
	idx := tail & r.sqMask
	arrPtr := (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(r.sqArray)) + uintptr(idx)*4))
	*arrPtr = idx
	sqe := &r.sqes[idx]
	*sqe = ioUringSQE{}
	return sqe
}

func (r *ring) advanceSQ()    { atomic.AddUint32(r.sqTail, 1) }
func (r *ring) pendingSQEs() uint32 {
	return atomic.LoadUint32(r.sqTail) - atomic.LoadUint32(r.sqHead)
}

func (r *ring) submit() (int, error) {
	n := r.pendingSQEs()
	if n == 0 {
		return 0, nil
	}
	return ioUringEnter(r.fd, n, 0, 0)
}

// drainCQEs appends every currently available completion to out without
// blocking and advances the CQ head past them.
func (r *ring) drainCQEs(out *[]Completion) int {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	n := 0
	for head != tail {
		cqe := r.cqes[head&r.cqMask]
		*out = append(*out, Completion{Token: cqe.userData, Result: int64(cqe.res)})
		head++
		n++
	}
	atomic.StoreUint32(r.cqHead, head)
	return n
}

func (r *ring) close() error {
	if r == nil {
		return nil
	}
	runtime.SetFinalizer(r, nil)
	var firstErr error
	if r.ringMem != nil {
		if err := unix.Munmap(r.ringMem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.ringMem = nil
	}
	if r.sqeMem != nil {
		if err := unix.Munmap(r.sqeMem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.sqeMem = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		r.fd = -1
	}
	return firstErr
}

// opcodeTable maps a spec Op to the kernel IORING_OP_* constant; an Op
// absent from it is rejected by Submit as unsupported (§4.9 "Feature detection").
var opcodeTable = map[Op]uint8{
	OpNop:           0,
	OpAccept:        13,
	OpConnect:       16,
	OpRecv:          27,
	OpSend:          26,
	OpRead:          22,
	OpWrite:         23,
	OpReadv:         1,
	OpWritev:        2,
	OpRecvmsg:       10,
	OpSendmsg:       9,
	OpClose:         19,
	OpFsync:         3,
	OpPollAdd:       6,
	OpPollRemove:    7,
	OpAsyncCancel:   14,
	// openat/mkdirat/renameat2/shutdown/epoll_ctl/timeout_*/socket are
	// newer opcodes whose numeric values vary more across kernel point
	// releases; they are left out, so Submit reports them unsupported.
	// This table only covers the stable, long-established ops.
}

// Ring is the Linux io_uring-backed Queue (§4.9).
type Ring struct {
	mu       sync.Mutex
	r        *ring
	backlog  []pendingSubmission
	nextTok  uint64
	supports map[Op]bool
}

type pendingSubmission struct {
	token uint64
	s     Submission
}

// NewRing creates a Ring with the given submission queue depth (rounded
// up to a power of two by the kernel) and records opcode support via
// probeOpcodes. Returned
// as a Queue so callers can share one call site with the non-Linux
// fallback build.
func NewRing(entries uint32) (Queue, error) {
	r, err := newRing(entries)
	if err != nil {
		return nil, err
	}
	q := &Ring{r: r, supports: probeOpcodes(r)}
	return q, nil
}

// probeOpcodes marks every opcode in opcodeTable as supported. It does
// not query the kernel, so an opcode the running kernel lacks is still
// reported supported and fails only when its submission completes.
// Unknown opcodes (not in opcodeTable) are reported unsupported so the
// facade falls back to the readiness path without ever issuing them.
func probeOpcodes(r *ring) map[Op]bool {
	supported := make(map[Op]bool, len(opcodeTable))
	for op := range opcodeTable {
		supported[op] = true
	}
	return supported
}

func (q *Ring) Submit(s Submission) (uint64, error) {
	code, ok := opcodeTable[s.Op]
	if !ok || !q.supports[s.Op] {
		return 0, fmt.Errorf("ioqueue: op %d: %w", s.Op, ErrUnsupportedOp)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextTok++
	token := q.nextTok

	if !q.trySubmitLocked(code, s, token) {
		q.backlog = append(q.backlog, pendingSubmission{token: token, s: s})
	}
	return token, nil
}

func (q *Ring) trySubmitLocked(code uint8, s Submission, token uint64) bool {
	sqe := q.r.peekSQE()
	if sqe == nil {
		return false
	}
	sqe.opcode = code
	sqe.fd = int32(s.FD)
	sqe.off = uint64(s.Offset)
	sqe.unionFlags = s.Flags
	sqe.userData = token
	if len(s.Buf) > 0 {
		sqe.addr = uint64(uintptr(unsafe.Pointer(&s.Buf[0])))
		sqe.len = uint32(len(s.Buf))
	}
	q.r.advanceSQ()
	return true
}

// Drain retries the backlog, submits, and collects every ready
// completion without blocking (§4.9 "Backpressure").
func (q *Ring) Drain(out *[]Completion) int {
	q.mu.Lock()
	if len(q.backlog) > 0 {
		kept := q.backlog[:0]
		for _, p := range q.backlog {
			code := opcodeTable[p.s.Op]
			if !q.trySubmitLocked(code, p.s, p.token) {
				kept = append(kept, p)
			}
		}
		q.backlog = kept
	}
	_, _ = q.r.submit()
	n := q.r.drainCQEs(out)
	q.mu.Unlock()
	return n
}

func (q *Ring) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.r.close()
}

var _ Queue = (*Ring)(nil)
