//go:build windows

package selector

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

type fdInfo struct {
	callback Callback
	events   IOEvents
	active   bool
}

// IOCPSelector implements Selector using an I/O completion port. Unlike
// epoll/kqueue, IOCP is inherently completion- rather than readiness-
// based; RegisterFD associates the handle with the port (as the teacher
// does) and PollIO waits on GetQueuedCompletionStatus, treating each
// dequeued packet as "this handle's pending op is ready".
type IOCPSelector struct {
	iocp   windows.Handle
	fds    []fdInfo
	fdMu   sync.RWMutex
	closed atomic.Bool
}

func New() *IOCPSelector { return &IOCPSelector{} }

func (p *IOCPSelector) Init() error {
	if p.closed.Load() {
		return ErrClosed
	}
	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return err
	}
	p.iocp = iocp
	p.fds = make([]fdInfo, 1024)
	return nil
}

func (p *IOCPSelector) Close() error {
	p.closed.Store(true)
	if p.iocp != 0 {
		return windows.CloseHandle(p.iocp)
	}
	return nil
}

func (p *IOCPSelector) growLocked(fd int) {
	if fd < len(p.fds) {
		return
	}
	grown := make([]fdInfo, fd*2+1)
	copy(grown, p.fds)
	p.fds = grown
}

func (p *IOCPSelector) RegisterFD(fd int, events IOEvents, cb Callback) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	p.growLocked(fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	if _, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.iocp, windows.Handle(uintptr(fd)), 0); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

func (p *IOCPSelector) UnregisterFD(fd int) error {
	if fd < 0 || fd >= len(p.fds) {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()
	// IOCP has no "remove association" primitive; the handle stays bound
	// until closed. Marking it inactive suffices to drop future callbacks.
	return nil
}

func (p *IOCPSelector) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= len(p.fds) {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	return nil
}

// Signal wakes a blocked PollIO call by posting a zero-key completion
// packet. IOCP has no fd-based self-pipe equivalent; posting directly to
// the port is the idiomatic Windows substitute for the Linux eventfd /
// Darwin self-pipe WakeFD used on the other platforms.
func (p *IOCPSelector) Signal() error {
	return windows.PostQueuedCompletionStatus(p.iocp, 0, 0, nil)
}

// iocpWaker adapts IOCPSelector.Signal to the Waker interface. IOCP has
// no fd to register or drain, unlike the eventfd/self-pipe wakers on the
// other platforms.
type iocpWaker struct{ sel *IOCPSelector }

func (w iocpWaker) Signal() error { return w.sel.Signal() }
func (w iocpWaker) Close() error  { return nil }

// NewWaker returns a Waker that posts directly to sel's completion port.
func NewWaker(sel Selector) (Waker, error) {
	p, ok := sel.(*IOCPSelector)
	if !ok {
		return nil, ErrClosed
	}
	return iocpWaker{sel: p}, nil
}

func (p *IOCPSelector) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped
	ms := uint32(timeoutMs)
	if timeoutMs < 0 {
		ms = windows.INFINITE
	}
	err := windows.GetQueuedCompletionStatus(p.iocp, &bytes, &key, &overlapped, ms)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return 0, nil
		}
		return 0, err
	}
	fd := int(key)
	p.fdMu.RLock()
	var info fdInfo
	if fd >= 0 && fd < len(p.fds) {
		info = p.fds[fd]
	}
	p.fdMu.RUnlock()
	if info.active && info.callback != nil {
		info.callback(info.events)
		return 1, nil
	}
	return 0, nil
}
