package fibermill

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadCache_SetGet(t *testing.T) {
	c := NewThreadCache(4)
	_, ok := c.Get(5)
	assert.False(t, ok)

	c.Set(5, "five")
	v, ok := c.Get(5)
	require.True(t, ok)
	assert.Equal(t, "five", v)
}

func TestThreadCache_RoundsCapacityToPowerOfTwo(t *testing.T) {
	c := NewThreadCache(5)
	assert.Equal(t, uint64(7), c.mask) // capacity 5 -> 8 slots -> mask 7
}

func TestThreadCache_Update(t *testing.T) {
	c := NewThreadCache(4)
	ok := c.Update(1, "first")
	assert.False(t, ok, "update before set should report not found")

	c.Set(1, "first")
	ok = c.Update(1, "second")
	require.True(t, ok)
	v, _ := c.Get(1)
	assert.Equal(t, "second", v)
}

func TestThreadCache_SetIdempotentForSameKey(t *testing.T) {
	c := NewThreadCache(4)
	c.Set(9, "a")
	c.Set(9, "b") // same tid set twice must overwrite, not consume a second slot
	v, ok := c.Get(9)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestThreadCache_FullTablePanics(t *testing.T) {
	c := NewThreadCache(1) // rounds to exactly 1 slot
	c.Set(1, "a")
	assert.PanicsWithError(t, "fibermill: thread cache is full: thread cache has no free slot for tid 2 (capacity 1)", func() {
		c.Set(2, "b")
	})
}

func TestThreadCache_ConcurrentDistinctKeys(t *testing.T) {
	const n = 64
	c := NewThreadCache(n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			c.Set(uint64(i), i*2)
		}()
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		v, ok := c.Get(uint64(i))
		require.True(t, ok)
		assert.Equal(t, i*2, v)
	}
}
