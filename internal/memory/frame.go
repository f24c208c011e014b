package memory

import (
	"fmt"

	"github.com/huxgo/kernel/internal/syncx"
)

// FrameAlloc is the physical frame bitmap allocator of spec.md §4.2,
// backed by a real memory-mapped arena standing in for physical RAM.
type FrameAlloc struct {
	bitmap *Bitmap
	arena  []byte
	unmap  func() error
	cpu    *syncx.CPU
}

// NewFrameAlloc reserves nframes frames of physical memory and
// returns an allocator over them. reservedLow frames (covering the
// kernel identity map, spec.md §3) are marked in-use up front.
func NewFrameAlloc(cpu *syncx.CPU, nframes, reservedLow int) (*FrameAlloc, error) {
	arena, unmap, err := newFrameArena(nframes)
	if err != nil {
		return nil, fmt.Errorf("memory: reserve frame arena: %w", err)
	}
	fa := &FrameAlloc{
		bitmap: NewBitmap("frame-bitmap", nframes),
		arena:  arena,
		unmap:  unmap,
		cpu:    cpu,
	}
	for i := 0; i < reservedLow; i++ {
		fa.bitmap.set(i)
	}
	return fa, nil
}

// ErrOutOfFrames is returned by Alloc when the arena is exhausted.
var ErrOutOfFrames = fmt.Errorf("memory: out of frames")

// Alloc claims one frame and returns its physical address.
func (fa *FrameAlloc) Alloc() (uint32, error) {
	idx, ok := fa.bitmap.Alloc(fa.cpu)
	if !ok {
		return 0, ErrOutOfFrames
	}
	return uint32(idx) * PageSize, nil
}

// Free releases the frame at physical address paddr back to the
// bitmap.
func (fa *FrameAlloc) Free(paddr uint32) {
	fa.bitmap.Free(fa.cpu, int(paddr/PageSize))
}

// Frame returns a slice view over the page-sized physical frame at
// paddr, for zero-fill and copy operations.
func (fa *FrameAlloc) Frame(paddr uint32) []byte {
	return fa.arena[paddr : paddr+PageSize]
}

// Stats reports allocator pressure for internal/metrics.
type FrameStats struct {
	Total, Used int
}

func (fa *FrameAlloc) Stats() FrameStats {
	used := fa.bitmap.Used(fa.cpu)
	return FrameStats{Total: fa.bitmap.Len(), Used: used}
}

// Close releases the backing arena.
func (fa *FrameAlloc) Close() error {
	if fa.unmap == nil {
		return nil
	}
	return fa.unmap()
}
