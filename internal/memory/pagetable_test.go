package memory

import (
	"testing"

	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPageTable(t *testing.T, cpu *syncx.CPU) (*PageTable, *FrameAlloc) {
	t.Helper()
	fa, err := NewFrameAlloc(cpu, 64, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fa.Close() })
	slab := NewPageSlab(16)
	pt, err := NewPageTable(cpu, slab, fa)
	require.NoError(t, err)
	return pt, fa
}

func TestPageTableMapAndLookup(t *testing.T) {
	cpu := &syncx.CPU{}
	pt, fa := newTestPageTable(t, cpu)

	vaddr := uint32(UserBase)
	frame, err := pt.MapUser(vaddr, true)
	require.NoError(t, err)
	copy(fa.Frame(frame), []byte("hello"))

	paddr, ok := pt.Lookup(vaddr)
	require.True(t, ok)
	assert.Equal(t, "hello", string(fa.Frame(paddr&^(PageSize-1))[:5]))
}

func TestCopyRangeIsolatesFrames(t *testing.T) {
	cpu := &syncx.CPU{}
	src, fa := newTestPageTable(t, cpu)
	dst, _ := newTestPageTable(t, cpu)

	vaddr := uint32(UserBase)
	frame, err := src.MapUser(vaddr, true)
	require.NoError(t, err)
	copy(fa.Frame(frame), []byte("parent-byte"))

	require.NoError(t, CopyRange(dst, src, vaddr, vaddr+PageSize))

	srcFrame, _ := src.Lookup(vaddr)
	dstFrame, _ := dst.Lookup(vaddr)
	assert.Equal(t, string(fa.Frame(srcFrame)[:11]), string(fa.Frame(dstFrame)[:11]))

	// Writing through dst must not alter src: disjoint physical frames.
	copy(fa.Frame(dstFrame), []byte("child-wrote"))
	assert.Equal(t, "parent-byte", string(fa.Frame(srcFrame)[:11]))
	assert.NotEqual(t, dstFrame, srcFrame)
}

func TestUnmapRangeFreesFrames(t *testing.T) {
	cpu := &syncx.CPU{}
	pt, fa := newTestPageTable(t, cpu)

	vaddr := uint32(UserBase)
	_, err := pt.MapUser(vaddr, true)
	require.NoError(t, err)
	before := fa.Stats().Used

	pt.UnmapRange(vaddr, vaddr+PageSize)
	after := fa.Stats().Used
	assert.Equal(t, before-1, after)

	_, ok := pt.Lookup(vaddr)
	assert.False(t, ok)
}
