package opencoroutine

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRuntime_CustomLoggerDoesNotLeakIntoGlobal(t *testing.T) {
	SetStructuredLogger(nil)
	defer SetStructuredLogger(nil)

	var buf bytes.Buffer
	custom := NewWriterLogger(LevelDebug, &buf)

	rt, err := newRuntime(WithWorkers(1), WithLogger(custom))
	require.NoError(t, err)
	defer rt.Stop()

	require.Same(t, custom, rt.sched.logger)
	_, isNoOp := getGlobalLogger().(*NoOpLogger)
	require.True(t, isNoOp, "newRuntime must not install its logger as the package-wide global")
}

func TestNewRuntime_NoLoggerOptionFallsBackToGlobal(t *testing.T) {
	SetStructuredLogger(nil)
	defer SetStructuredLogger(nil)

	var buf bytes.Buffer
	global := NewWriterLogger(LevelDebug, &buf)
	SetStructuredLogger(global)

	rt, err := newRuntime(WithWorkers(1))
	require.NoError(t, err)
	defer rt.Stop()

	require.Same(t, global, rt.sched.logger)
}

func TestRuntime_SubmitTaskRunsToCompletion(t *testing.T) {
	rt, err := newRuntime(WithWorkers(1))
	require.NoError(t, err)
	defer rt.Stop()

	result := make(chan any, 1)
	_, err = rt.SubmitTask("task", func(_ *Yielder, arg any) (any, error) {
		result <- arg
		return nil, nil
	}, "payload")
	require.NoError(t, err)

	select {
	case v := <-result:
		require.Equal(t, "payload", v)
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestRuntime_SubmitTaskAfterStopFails(t *testing.T) {
	rt, err := newRuntime(WithWorkers(1))
	require.NoError(t, err)
	rt.Stop()

	_, err = rt.SubmitTask("task", func(_ *Yielder, _ any) (any, error) { return nil, nil }, nil)
	require.Error(t, err)
}

func TestRuntime_StopIsIdempotent(t *testing.T) {
	rt, err := newRuntime(WithWorkers(1))
	require.NoError(t, err)
	rt.Stop()
	rt.Stop()
}

func TestInitStop_PackageWideRuntimeSingleton(t *testing.T) {
	Stop()

	rt1, err := Init(WithWorkers(1))
	require.NoError(t, err)
	rt2, err := Init(WithWorkers(2))
	require.NoError(t, err)
	require.Same(t, rt1, rt2)

	Stop()
	Stop() // no-op, already stopped
}
