//go:build cgo_exports

// Package cabi exports the runtime control API (§6) as C-ABI symbols for
// an external native loader — the LD_PRELOAD/DYLD_INSERT_LIBRARIES shim
// and Windows detour installer are both outside this module's scope (§1,
// §6: that half is a cgo/linker concern, not a Go library concern), but
// whatever process installs them needs exactly these five entry points
// to start and stop the Go-side runtime and hand it work. Every function
// here is a thin cgo wrapper delegating to the corresponding exported Go
// function on the root package; none of them contain scheduling logic.
//
// Built only under -tags cgo_exports: a plain `go build ./...` of this
// module never requires cgo, only a native loader actually linking
// against this package does.
package cabi

/*
#include <stdint.h>

typedef int64_t (*oc_task_fn)(int64_t param);

static int64_t oc_call_task_fn(oc_task_fn fn, int64_t param) {
    return fn(param);
}
*/
import "C"

import (
	"sync"
	"time"

	oc "github.com/open-coroutine/opencoroutine-go"
)

var (
	mu sync.Mutex
	rt *oc.Runtime
)

// open_coroutine_init's keep_alive_time and max_size (§6 Configuration)
// have no equivalent among the Runtime's Options, so this shim only takes the fields
// that map onto an actual Option: event_loop_size, stack_size, and
// use_completion_io (-> WithIOURing). preempt_enabled has no knob either:
// the scheduler's preemption monitor is always on.
//
//export open_coroutine_init
func open_coroutine_init(eventLoopSize C.int, stackSize C.longlong, useCompletionIO C.int) C.int32_t {
	mu.Lock()
	defer mu.Unlock()
	if rt != nil {
		return 0
	}
	opts := []oc.Option{
		oc.WithWorkers(int(eventLoopSize)),
		oc.WithStackSize(int(stackSize)),
		oc.WithIOURing(useCompletionIO != 0),
	}
	r, err := oc.Init(opts...)
	if err != nil {
		return 1
	}
	rt = r
	return 0
}

//export open_coroutine_stop
func open_coroutine_stop(seconds C.int32_t) C.int32_t {
	mu.Lock()
	r := rt
	rt = nil
	mu.Unlock()
	if r == nil {
		return 0
	}
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
		return 0
	case <-time.After(time.Duration(seconds) * time.Second):
		return 1
	}
}

// taskCounter hands back a monotonically increasing id for task_crate,
// since the root package's SubmitTask identifies work by caller-assigned
// name rather than an integer id; the C ABI needs a stable i32 to return.
var taskCounter int32

//export task_crate
func task_crate(fn C.oc_task_fn, param C.int64_t) C.int32_t {
	mu.Lock()
	r := rt
	mu.Unlock()
	if r == nil {
		return -1
	}
	taskCounter++
	id := taskCounter
	name := "cabi-task-" + itoa(int64(id))
	_, err := r.SubmitTask(name, func(_ *oc.Yielder, _ any) (any, error) {
		ret := C.oc_call_task_fn(fn, param)
		return int64(ret), nil
	}, nil)
	if err != nil {
		return -1
	}
	return id
}

//export coroutine_crate
func coroutine_crate(fn C.oc_task_fn, param C.int64_t, stackSize C.longlong) C.int32_t {
	mu.Lock()
	r := rt
	mu.Unlock()
	if r == nil {
		return -1
	}
	taskCounter++
	id := taskCounter
	name := "cabi-coroutine-" + itoa(int64(id))
	c := oc.NewCoroutine(name, func(_ *oc.Yielder, _ any) (any, error) {
		ret := C.oc_call_task_fn(fn, param)
		return int64(ret), nil
	}, int(stackSize))
	r.Scheduler().Spawn(c, nil)
	return id
}

//export maybe_grow_stack
func maybe_grow_stack(redZone C.int64_t, stackSize C.int64_t, fn C.oc_task_fn, param C.int64_t) C.int64_t {
	result := oc.MaybeGrowStack(int(redZone), int(stackSize), func(p any) any {
		v, _ := p.(int64)
		return int64(C.oc_call_task_fn(fn, C.int64_t(v)))
	}, int64(param))
	v, _ := result.(int64)
	return C.int64_t(v)
}

// itoa avoids pulling in strconv just for id-to-name formatting here;
// ids are always small non-negative task counters.
func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
