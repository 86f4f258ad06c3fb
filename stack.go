package opencoroutine

import "unsafe"

// MaybeGrowStack implements the original runtime's "segmented stack
// extension" (§6 `maybe_grow_stack`, §9 "Segmented stack growth"): run fn
// directly if the calling coroutine's body goroutine has at least
// redZone bytes of estimated stack headroom left, otherwise run it on a
// freshly spawned coroutine (its own goroutine, its own stack, grown to
// stackSize on demand the same way every coroutine body's stack grows)
// and context-switch to it via the same Resume/Yield swap every other
// coroutine uses — "not a separate mechanism", per the original's own
// description of this call.
//
// Go exposes no portable way to read a goroutine's actual remaining
// stack budget, so headroom is estimated the way several ecosystem
// libraries approximate it: the address of a stack-local variable near
// the body goroutine's entry point is recorded once (Coroutine.stackBase),
// and the distance from that address to a fresh stack-local variable
// here is treated as the high-water mark of bytes consumed so far. This
// is a heuristic, not an exact measurement — it assumes a single
// contiguous, one-directional stack growth pattern, which holds for the
// goroutine stacks Go actually uses.
//
// If the calling goroutine isn't running inside a managed coroutine (no
// stackBase to measure from), fn runs directly; there is no budget to
// compare against.
func MaybeGrowStack(redZone, stackSize int, fn func(param any) any, param any) any {
	c := CurrentCoroutine()
	if c == nil || redZone <= 0 {
		return fn(param)
	}

	var probe byte
	used := stackDistance(c.stackBase, uintptr(unsafe.Pointer(&probe)))
	headroom := c.stackSize - used
	if headroom >= redZone {
		return fn(param)
	}

	if stackSize <= 0 {
		stackSize = c.stackSize
	}
	result := make(chan any, 1)
	grown := NewCoroutine(c.name+"/grow", func(_ *Yielder, arg any) (any, error) {
		result <- fn(arg)
		return nil, nil
	}, stackSize)
	if _, err := grown.Resume(param); err != nil {
		return nil
	}
	return <-result
}

func stackDistance(a, b uintptr) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
