package fibermill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackMemory_CreateDestroy(t *testing.T) {
	m, err := createStackMemory(64 * 1024)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, len(m.usable), 64*1024)
	assert.NoError(t, destroyStackMemory(m))
}

func TestStackMemory_RoundsUpBelowMinimum(t *testing.T) {
	m, err := createStackMemory(1)
	require.NoError(t, err)
	defer destroyStackMemory(m)
	assert.Equal(t, 2*pageSize, len(m.usable), "below the 2-page minimum, create must round up rather than allocate a too-small stack")
}

func TestStackMemory_DestroyNilIsNoOp(t *testing.T) {
	assert.NoError(t, destroyStackMemory(nil))
}

func TestFiber_ResumeYieldRoundTrip(t *testing.T) {
	f := newFiber()
	ran := false
	f.start(func() {
		f.awaitResume()
		ran = true
		f.suspend(fiberYielded)
	})
	frame := f.resume()
	assert.True(t, ran)
	assert.Equal(t, fiberYielded, frame.reason)
}

func TestFiber_FinishedDoesNotAwaitResumeAgain(t *testing.T) {
	f := newFiber()
	f.start(func() {
		f.awaitResume()
		f.suspend(fiberFinished)
	})
	frame := f.resume()
	assert.Equal(t, fiberFinished, frame.reason)
}

func TestFiber_MultipleSuspendResumeCycles(t *testing.T) {
	f := newFiber()
	count := 0
	f.start(func() {
		f.awaitResume()
		for count < 5 {
			count++
			f.suspend(fiberYielded)
		}
		f.suspend(fiberFinished)
	})
	for i := 0; i < 5; i++ {
		frame := f.resume()
		assert.Equal(t, fiberYielded, frame.reason)
	}
	frame := f.resume()
	assert.Equal(t, fiberFinished, frame.reason)
	assert.Equal(t, 5, count)
}
