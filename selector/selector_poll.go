//go:build !linux && !darwin && !windows

package selector

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// PollSelector is the portable poll(2) fallback (§4.8 EXPANSION) for
// every platform other than Linux, Darwin and Windows. It rebuilds the
// pollfd slice on every call rather than maintaining incremental
// interest sets, the standard trade-off poll(2) forces in exchange for
// needing no platform-specific registration syscalls.
type PollSelector struct {
	mu     sync.RWMutex
	fds    map[int]fdEntry
	closed atomic.Bool
}

type fdEntry struct {
	events   IOEvents
	callback Callback
}

func New() *PollSelector { return &PollSelector{fds: make(map[int]fdEntry)} }

func (p *PollSelector) Init() error { return nil }

func (p *PollSelector) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *PollSelector) RegisterFD(fd int, events IOEvents, cb Callback) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdEntry{events: events, callback: cb}
	return nil
}

func (p *PollSelector) UnregisterFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	return nil
}

func (p *PollSelector) ModifyFD(fd int, events IOEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	e.events = events
	p.fds[fd] = e
	return nil
}

func (p *PollSelector) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	p.mu.RLock()
	pollfds := make([]unix.PollFd, 0, len(p.fds))
	order := make([]int, 0, len(p.fds))
	for fd, e := range p.fds {
		pollfds = append(pollfds, unix.PollFd{Fd: int32(fd), Events: eventsToPoll(e.events)})
		order = append(order, fd)
	}
	p.mu.RUnlock()

	if len(pollfds) == 0 {
		return 0, nil
	}

	n, err := unix.Poll(pollfds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	fired := 0
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, pfd := range pollfds {
		if pfd.Revents == 0 {
			continue
		}
		if e, ok := p.fds[order[i]]; ok && e.callback != nil {
			e.callback(pollToEvents(pfd.Revents))
			fired++
		}
	}
	return fired, nil
}

func eventsToPoll(events IOEvents) int16 {
	var e int16
	if events&EventRead != 0 {
		e |= unix.POLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func pollToEvents(revents int16) IOEvents {
	var events IOEvents
	if revents&unix.POLLIN != 0 {
		events |= EventRead
	}
	if revents&unix.POLLOUT != 0 {
		events |= EventWrite
	}
	if revents&unix.POLLERR != 0 {
		events |= EventError
	}
	if revents&unix.POLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
