package memory

import (
	"fmt"

	"github.com/huxgo/kernel/internal/syncx"
)

const khChunkMagic = 0xDEADC0DE

// khChunk is the header-per-chunk layout of spec.md §3: size, a free
// flag, a next pointer (address-order circular list), and a magic
// guarding against double-free / wild writes.
type khChunk struct {
	size  int
	free  bool
	next  *khChunk
	magic uint32
}

// KHeap is a next-fit, header-per-chunk allocator over a fixed-size
// byte arena, as spec.md §4.4 describes. All operations are
// serialized by one spinlock.
type KHeap struct {
	lock *syncx.Spinlock

	arena      []byte
	chunks     map[int]*khChunk // arena offset -> chunk header
	order      []int            // chunk offsets in address order (circular)
	lastSearch int              // index into order of the roving cursor
}

// ErrOutOfKHeap is returned when no chunk in the free list is large
// enough to satisfy a request.
var ErrOutOfKHeap = fmt.Errorf("memory: out of kernel heap")

const khHeaderSize = 24 // bookkeeping size charged against chunk accounting

// NewKHeap carves a single free chunk spanning the whole arena.
func NewKHeap(size int) *KHeap {
	kh := &KHeap{
		lock:   syncx.NewSpinlock("kheap"),
		arena:  make([]byte, size),
		chunks: make(map[int]*khChunk),
	}
	root := &khChunk{size: size - khHeaderSize, free: true, magic: khChunkMagic}
	kh.chunks[0] = root
	kh.order = []int{0}
	return kh
}

func (kh *KHeap) offsetOf(c *khChunk) int {
	for off, cc := range kh.chunks {
		if cc == c {
			return off
		}
	}
	panic("memory: chunk not registered")
}

func (kh *KHeap) nextIndex(i int) int { return (i + 1) % len(kh.order) }
func (kh *KHeap) prevIndex(i int) int { return (i - 1 + len(kh.order)) % len(kh.order) }

// Alloc returns the arena offset of a payload of at least size bytes,
// following the next-fit search described in spec.md §4.4: starting
// from the cursor, find the first free chunk large enough; split off
// a tail when the remainder is worth a header, otherwise take the
// whole chunk.
func (kh *KHeap) Alloc(cpu *syncx.CPU, size int) (int, error) {
	kh.lock.Acquire(cpu)
	defer kh.lock.Release(cpu)

	if len(kh.order) == 0 {
		return 0, ErrOutOfKHeap
	}

	start := kh.lastSearch
	for n := 0; n < len(kh.order); n++ {
		i := (start + n) % len(kh.order)
		off := kh.order[i]
		c := kh.chunks[off]
		if !c.free || c.size < size {
			continue
		}

		if c.size >= size+khHeaderSize {
			tailOff := off + khHeaderSize + size
			tail := &khChunk{size: c.size - size - khHeaderSize, free: true, magic: khChunkMagic}
			kh.chunks[tailOff] = tail
			c.size = size

			newOrder := make([]int, 0, len(kh.order)+1)
			for _, o := range kh.order {
				newOrder = append(newOrder, o)
				if o == off {
					newOrder = append(newOrder, tailOff)
				}
			}
			kh.order = newOrder
			kh.lastSearch = kh.indexOf(off)
		} else {
			kh.lastSearch = kh.prevIndex(kh.indexOf(off))
		}

		c.free = false
		return off, nil
	}
	return 0, ErrOutOfKHeap
}

func (kh *KHeap) indexOf(off int) int {
	for i, o := range kh.order {
		if o == off {
			return i
		}
	}
	panic("memory: offset not in order list")
}

// Free releases the chunk at off, coalescing with an address-adjacent
// predecessor and/or successor when they are also free.
func (kh *KHeap) Free(cpu *syncx.CPU, off int) {
	kh.lock.Acquire(cpu)
	defer kh.lock.Release(cpu)

	c, ok := kh.chunks[off]
	if !ok || c.magic != khChunkMagic {
		panic("memory: invalid free: unrecognized chunk")
	}
	if c.free {
		panic("memory: double free")
	}
	c.free = true

	i := kh.indexOf(off)
	// Coalesce with successor first so the predecessor check below
	// still sees a valid "next" offset.
	nextI := kh.nextIndex(i)
	if nextOff := kh.order[nextI]; nextI != i {
		if next := kh.chunks[nextOff]; next.free && off+khHeaderSize+c.size == nextOff {
			c.size += khHeaderSize + next.size
			delete(kh.chunks, nextOff)
			kh.order = append(kh.order[:nextI], kh.order[nextI+1:]...)
			if nextI < i {
				i--
			}
		}
	}

	prevI := kh.prevIndex(i)
	if prevOff := kh.order[prevI]; prevI != i {
		if prev := kh.chunks[prevOff]; prev.free && prevOff+khHeaderSize+prev.size == off {
			prev.size += khHeaderSize + c.size
			delete(kh.chunks, off)
			kh.order = append(kh.order[:i], kh.order[i+1:]...)
			i = prevI
			if i > len(kh.order)-1 {
				i = len(kh.order) - 1
			}
		}
	}

	kh.lastSearch = i % max(len(kh.order), 1)
}

// Payload returns a byte slice over the chunk's payload region, for
// callers that want to read/write the allocation directly (tests,
// and callers bridging to a user-visible buffer).
func (kh *KHeap) Payload(off, size int) []byte {
	return kh.arena[off+khHeaderSize : off+khHeaderSize+size]
}

// FreeChunkCount reports how many free chunks remain, used by the
// coalescing property test (spec.md §8.3: after freeing everything,
// the free list collapses to exactly one chunk).
func (kh *KHeap) FreeChunkCount(cpu *syncx.CPU) int {
	kh.lock.Acquire(cpu)
	defer kh.lock.Release(cpu)
	n := 0
	for _, off := range kh.order {
		if kh.chunks[off].free {
			n++
		}
	}
	return n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
