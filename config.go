package opencoroutine

import "time"

// config holds the tunables for Init (§6 Config). Follows the teacher's
// functional-options pattern (loopOptions/LoopOption) generalised from a
// single Loop flag set to the full runtime: worker count, stack size,
// preemption slice and metrics/logging toggles.
type config struct {
	numWorkers    int
	stackSize     int
	timeSlice     time.Duration
	metrics       bool
	ioUring       bool
	logger        Logger
	warnWindow    time.Duration
	warnBurst     int
}

// Option configures a Runtime created by Init.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithWorkers sets the number of scheduler workers (one event loop per
// worker, each pinned to its own OS thread's worth of goroutine time).
// n <= 0 defaults to runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return optionFunc(func(c *config) { c.numWorkers = n })
}

// WithStackSize sets the default coroutine stack size passed to
// NewCoroutine when the pool creates coroutines on the caller's behalf.
func WithStackSize(n int) Option {
	return optionFunc(func(c *config) { c.stackSize = n })
}

// WithTimeSlice sets the preemption monitor's time slice (§4.3).
func WithTimeSlice(d time.Duration) Option {
	return optionFunc(func(c *config) { c.timeSlice = d })
}

// WithMetrics enables runtime metrics collection (§4.10 EXPANSION).
func WithMetrics(enabled bool) Option {
	return optionFunc(func(c *config) { c.metrics = enabled })
}

// WithIOURing requests the Linux io_uring completion-queue accelerant
// (§4.9). When enabled, hook.Read/Write/Accept submit through it instead
// of the readiness selector whenever the coroutine's currently-driving
// EventLoop has one open. On platforms or kernels without it the loop logs
// a warning and falls back to the readiness path.
func WithIOURing(enabled bool) Option {
	return optionFunc(func(c *config) { c.ioUring = enabled })
}

// WithLogger installs a structured Logger for this runtime only, without
// affecting the package-wide logger set by SetStructuredLogger.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}

// WithWarnRateLimit records a warning window and burst in the runtime's
// configuration. No runtime component reads these values: the runtime's
// own warnings (e.g. selector poll errors) are logged without rate
// limiting.
func WithWarnRateLimit(window time.Duration, burst int) Option {
	return optionFunc(func(c *config) {
		c.warnWindow = window
		c.warnBurst = burst
	})
}

func resolveConfig(opts []Option) *config {
	cfg := &config{
		numWorkers: 0, // resolved against GOMAXPROCS by Init
		stackSize:  DefaultStackSize,
		timeSlice:  DefaultTimeSlice,
		warnWindow: time.Second,
		warnBurst:  5,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(cfg)
	}
	return cfg
}
