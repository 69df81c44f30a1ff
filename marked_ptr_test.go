package fibermill

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkedPointer_LoadStore(t *testing.T) {
	var m MarkedPointer
	ptr, mark := m.Load()
	assert.Nil(t, ptr)
	assert.False(t, mark)

	x := 42
	p := unsafe.Pointer(&x)
	m.Store(p, true)
	gotPtr, gotMark := m.Load()
	assert.Equal(t, p, gotPtr)
	assert.True(t, gotMark)
}

func TestMarkedPointer_CAS(t *testing.T) {
	var m MarkedPointer
	x, y := 1, 2
	px, py := unsafe.Pointer(&x), unsafe.Pointer(&y)

	require.True(t, m.CAS(nil, false, px, false))
	ptr, mark := m.Load()
	assert.Equal(t, px, ptr)
	assert.False(t, mark)

	// Wrong expected value fails.
	assert.False(t, m.CAS(nil, false, py, false))

	require.True(t, m.CAS(px, false, py, true))
	ptr, mark = m.Load()
	assert.Equal(t, py, ptr)
	assert.True(t, mark)
}

func TestMarkedPointer_AttemptMark(t *testing.T) {
	var m MarkedPointer
	x := 7
	p := unsafe.Pointer(&x)
	m.Store(p, false)

	assert.True(t, m.AttemptMark(p, true))
	_, mark := m.Load()
	assert.True(t, mark)

	// Already marked: a second attempt to set the same mark fails.
	assert.False(t, m.AttemptMark(p, true))
}

// TestMarkedPointer_ConcurrentCASRace exercises the exact race the waiter
// slot exists to resolve: many goroutines racing to install a pointer via
// CAS, exactly one of which may succeed from the nil state.
func TestMarkedPointer_ConcurrentCASRace(t *testing.T) {
	const n = 64
	var m MarkedPointer
	var wg sync.WaitGroup
	var successes atomic.Int32
	ptrs := make([]*int, n)
	for i := range ptrs {
		v := i
		ptrs[i] = &v
	}
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			if m.CAS(nil, false, unsafe.Pointer(ptrs[i]), false) {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, successes.Load())
}
