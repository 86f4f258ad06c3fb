//go:build !linux && !darwin && !windows

package selector

import "golang.org/x/sys/unix"

// WakeFD is the self-pipe wake mechanism for the portable poll(2)
// fallback, the same approach as the Darwin kqueue selector since
// poll(2) has no platform-native eventfd equivalent either.
type WakeFD struct {
	readFD, writeFD int
}

// NewWakeFD creates a non-blocking self-pipe.
func NewWakeFD() (*WakeFD, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	for _, fd := range fds {
		_ = unix.SetNonblock(fd, true)
	}
	return &WakeFD{readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *WakeFD) FD() int { return w.readFD }

func (w *WakeFD) Signal() error {
	_, err := unix.Write(w.writeFD, []byte{1})
	return err
}

func (w *WakeFD) Drain() {
	var buf [64]byte
	for {
		if _, err := unix.Read(w.readFD, buf[:]); err != nil {
			return
		}
	}
}

func (w *WakeFD) Close() error {
	_ = unix.Close(w.writeFD)
	return unix.Close(w.readFD)
}

// NewWaker creates a WakeFD and registers it with sel so an external
// Signal unblocks a pending PollIO call.
func NewWaker(sel Selector) (Waker, error) {
	w, err := NewWakeFD()
	if err != nil {
		return nil, err
	}
	if err := sel.RegisterFD(w.FD(), EventRead, func(IOEvents) { w.Drain() }); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}
