//go:build linux

package selector

import "golang.org/x/sys/unix"

// WakeFD is a cross-goroutine "please return from PollIO now" signal
// registered with a Selector like any other readable fd (§4.8: the event
// loop wakes itself when work is submitted from outside its worker).
// Linux uses a single eventfd for both ends, as in the teacher's
// wakeup_linux.go.
type WakeFD struct{ fd int }

// NewWakeFD creates a non-blocking eventfd.
func NewWakeFD() (*WakeFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &WakeFD{fd: fd}, nil
}

// FD returns the descriptor to register with a Selector for EventRead.
func (w *WakeFD) FD() int { return w.fd }

// Signal wakes any blocked PollIO call.
func (w *WakeFD) Signal() error {
	buf := [8]byte{1}
	_, err := unix.Write(w.fd, buf[:])
	return err
}

// Drain consumes pending wake-ups after PollIO returns, so the next
// PollIO call doesn't spuriously return immediately.
func (w *WakeFD) Drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(w.fd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases the eventfd.
func (w *WakeFD) Close() error { return unix.Close(w.fd) }

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
