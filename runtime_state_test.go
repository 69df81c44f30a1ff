package fibermill

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFastState_TryTransition(t *testing.T) {
	s := newFastState(StateIdle)
	assert.Equal(t, StateIdle, s.Load())

	assert.True(t, s.TryTransition(StateIdle, StateRunning))
	assert.Equal(t, StateRunning, s.Load())

	// Wrong "from" fails.
	assert.False(t, s.TryTransition(StateIdle, StateStopping))
	assert.Equal(t, StateRunning, s.Load())

	assert.True(t, s.TryTransition(StateRunning, StateStopping))
	assert.True(t, s.IsRunning() == false)
}

func TestFastState_CanAcceptWorkOnlyWhileRunning(t *testing.T) {
	s := newFastState(StateIdle)
	assert.False(t, s.CanAcceptWork())
	s.Store(StateRunning)
	assert.True(t, s.CanAcceptWork())
	s.Store(StateStopping)
	assert.False(t, s.CanAcceptWork())
	s.Store(StateStopped)
	assert.False(t, s.CanAcceptWork())
}

func TestRunState_String(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Stopping", StateStopping.String())
	assert.Equal(t, "Stopped", StateStopped.String())
	assert.Contains(t, RunState(99).String(), "Unknown")
}
