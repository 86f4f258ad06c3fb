//go:build darwin

package selector

import "syscall"

// WakeFD is the Darwin/kqueue self-pipe equivalent of the Linux eventfd
// wake mechanism, grounded on the teacher's wakeup_darwin.go.
type WakeFD struct {
	readFD, writeFD int
}

// NewWakeFD creates a non-blocking self-pipe.
func NewWakeFD() (*WakeFD, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return nil, err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	return &WakeFD{readFD: fds[0], writeFD: fds[1]}, nil
}

// FD returns the read end to register with a Selector for EventRead.
func (w *WakeFD) FD() int { return w.readFD }

// Signal wakes any blocked PollIO call.
func (w *WakeFD) Signal() error {
	_, err := syscall.Write(w.writeFD, []byte{1})
	return err
}

// Drain consumes pending wake-up bytes.
func (w *WakeFD) Drain() {
	var buf [64]byte
	for {
		if _, err := syscall.Read(w.readFD, buf[:]); err != nil {
			return
		}
	}
}

// Close releases both pipe ends.
func (w *WakeFD) Close() error {
	_ = syscall.Close(w.writeFD)
	return syscall.Close(w.readFD)
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
