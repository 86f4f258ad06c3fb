package opencoroutine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Terminal(t *testing.T) {
	require.True(t, Complete(4).Terminal())
	require.True(t, ErrorState("boom").Terminal())
	require.False(t, Ready().Terminal())
	require.False(t, Running().Terminal())
	require.False(t, Suspend(nil, 0).Terminal())
}

func TestValidTransition_ReadyToRunning(t *testing.T) {
	assert.True(t, validTransition(Ready(), Running()))
	assert.False(t, validTransition(Ready(), Suspend(nil, 0)))
}

func TestValidTransition_TerminalIsSink(t *testing.T) {
	for _, term := range []CoroutineState{Complete(1), ErrorState("x")} {
		for _, to := range []CoroutineState{Ready(), Running(), Suspend(nil, 0), Complete(2), ErrorState("y")} {
			assert.Falsef(t, validTransition(term, to), "expected %s -> %s to be invalid", term, to)
		}
	}
}

func TestValidTransition_RunningToSuspendSystemCallComplete(t *testing.T) {
	assert.True(t, validTransition(Running(), Suspend(1, 0)))
	assert.True(t, validTransition(Running(), SystemCall(nil, "read", SyscallSuspend)))
	assert.True(t, validTransition(Running(), Complete(nil)))
	assert.True(t, validTransition(Running(), ErrorState("panic")))
}

func TestValidTransition_SuspendResumesToRunning(t *testing.T) {
	assert.True(t, validTransition(Suspend(nil, 0), Running()))
	assert.True(t, validTransition(SystemCall(nil, "read", SyscallSuspend), Running()))
}
