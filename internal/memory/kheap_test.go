package memory

import (
	"testing"

	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKHeapAllocDistinctAndInBounds(t *testing.T) {
	cpu := &syncx.CPU{}
	kh := NewKHeap(4096)

	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		off, err := kh.Alloc(cpu, 64)
		require.NoError(t, err)
		assert.False(t, seen[off])
		seen[off] = true
		assert.GreaterOrEqual(t, off, 0)
		assert.Less(t, off+64, 4096)
	}
}

func TestKHeapFreeAllCollapsesToSingleChunk(t *testing.T) {
	cpu := &syncx.CPU{}
	kh := NewKHeap(4096)

	var offs []int
	for i := 0; i < 5; i++ {
		off, err := kh.Alloc(cpu, 100)
		require.NoError(t, err)
		offs = append(offs, off)
	}
	for _, off := range offs {
		kh.Free(cpu, off)
	}

	assert.Equal(t, 1, kh.FreeChunkCount(cpu))
	assert.Equal(t, 4096-khHeaderSize, kh.chunks[kh.order[0]].size)
}

func TestKHeapCoalescesMiddleThenNeighbor(t *testing.T) {
	cpu := &syncx.CPU{}
	kh := NewKHeap(4096)

	a, err := kh.Alloc(cpu, 100)
	require.NoError(t, err)
	b, err := kh.Alloc(cpu, 100)
	require.NoError(t, err)
	c, err := kh.Alloc(cpu, 100)
	require.NoError(t, err)
	_ = a

	// Mop up the remaining free tail so c's only free-adjacent
	// neighbor after these allocations is b, matching spec.md §8.3's
	// "three consecutive allocations" setup exactly.
	tailOff := kh.order[len(kh.order)-1]
	require.NoError(t, err)
	_, err = kh.Alloc(cpu, kh.chunks[tailOff].size)
	require.NoError(t, err)

	before := len(kh.order)
	kh.Free(cpu, b)
	afterMiddle := len(kh.order)
	assert.Equal(t, before, afterMiddle, "freeing an isolated middle chunk changes no list length yet")

	kh.Free(cpu, c)
	assert.Equal(t, before-1, len(kh.order), "freeing a neighbor must coalesce and drop list length by one")

	merged := kh.chunks[b]
	assert.Equal(t, 100+100+khHeaderSize, merged.size)
}

func TestKHeapOutOfMemory(t *testing.T) {
	cpu := &syncx.CPU{}
	kh := NewKHeap(256)
	_, err := kh.Alloc(cpu, 1024)
	assert.ErrorIs(t, err, ErrOutOfKHeap)
}

func TestKHeapDoubleFreePanics(t *testing.T) {
	cpu := &syncx.CPU{}
	kh := NewKHeap(4096)
	off, err := kh.Alloc(cpu, 32)
	require.NoError(t, err)
	kh.Free(cpu, off)
	assert.Panics(t, func() { kh.Free(cpu, off) })
}
