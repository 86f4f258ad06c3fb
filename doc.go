// Package opencoroutine provides a transparent, user-space concurrency
// runtime: it turns ordinary blocking I/O and sleep calls made by existing
// code into cooperative coroutine suspension points, without requiring the
// calling code to be rewritten.
//
// # Architecture
//
// The runtime is built around four layers:
//
//   - A stackful [Coroutine] primitive with explicit Resume/Yield semantics,
//     a finite [CoroutineState] machine, and a preemption hook driven by
//     [PreemptionMonitor].
//   - A [Scheduler] that owns ready and suspended coroutines and drives one
//     scheduling step per invocation ([Scheduler.TryScheduleOnce]), honouring
//     timer deadlines via the internal timer list.
//   - An [EventLoop] that binds a Scheduler and a readiness selector
//     (package selector) — plus, on Linux, a completion operator (package
//     ioqueue) — to one pinned worker goroutine.
//   - A syscall facade (package hook) that, when running inside a managed
//     coroutine, diverts blocking primitives into non-blocking retries plus a
//     coroutine park.
//
// # Platform support
//
// Readiness polling is implemented using platform-native mechanisms in the
// selector package: epoll on Linux, kqueue on Darwin, IOCP on Windows,
// and poll(2) on every other platform. Completion-queue I/O (io_uring) is
// available on Linux only; elsewhere the facade falls back to the readiness
// path.
//
// # Thread safety
//
// [Scheduler.Spawn] and the work-stealing injector are safe to call from
// any goroutine. A given [Coroutine] may only be Running on the worker that
// owns it; cross-worker handoff happens only while the coroutine is Ready.
//
// # Usage
//
//	rt, err := opencoroutine.Init(opencoroutine.WithWorkers(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Stop()
//
//	done := make(chan CoroutineState, 1)
//	c, _ := rt.SubmitTask("greet", func(_ *Yielder, _ any) (any, error) {
//	    return "hello", nil
//	}, nil)
//	c.AddListener(func(_ *Coroutine, _, to CoroutineState) {
//	    if to.Terminal() {
//	        done <- to
//	    }
//	})
package opencoroutine
