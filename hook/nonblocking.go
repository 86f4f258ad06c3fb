package hook

import "sync"

// nonBlockingSet is the process-wide NON_BLOCKING descriptor set (§5): fds
// this package has put into non-blocking mode. An fd stays non-blocking
// after the hooked call returns; this package never restores its prior
// blocking mode. Only fds handed to hook are switched.
var nonBlockingSet sync.Map // map[int]bool

// markNonBlocking records that fd has been switched to O_NONBLOCK by this
// package's decorator chain.
func markNonBlocking(fd int) { nonBlockingSet.Store(fd, true) }

// IsNonBlocking reports whether fd is currently tracked as having been
// switched to non-blocking mode by this package.
func IsNonBlocking(fd int) bool {
	_, ok := nonBlockingSet.Load(fd)
	return ok
}

// forgetNonBlocking removes fd from the tracked set, e.g. after Close.
func forgetNonBlocking(fd int) { nonBlockingSet.Delete(fd) }
