package blockio

import (
	"errors"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/proc"
)

// ErrNoSpace is returned when the data bitmap has no free block left.
var ErrNoSpace = errors.New("blockio: no free data block")

// Allocator implements block_alloc/block_free (spec.md §4.8): a
// bitmap-backed free list over the data block region, persisted back
// to its on-disk bitmap blocks on every change.
type Allocator struct {
	io         *IO
	bitmap     *memory.Bitmap
	firstBlock uint32 // first disk block number of the persisted bitmap
	dataBase   uint32 // first disk block number of the data region
}

// NewAllocator wires a bitmap (already sized to the number of data
// blocks) to its on-disk persisted location and the data region it
// governs.
func NewAllocator(io *IO, bitmap *memory.Bitmap, firstBlock, dataBase uint32) *Allocator {
	return &Allocator{io: io, bitmap: bitmap, firstBlock: firstBlock, dataBase: dataBase}
}

// Alloc grabs a bit, persists the bitmap, zero-fills the new data
// block, and returns its disk address, or 0 on failure (spec.md
// §4.8's sentinel).
func (a *Allocator) Alloc(p *proc.Process) (uint32, error) {
	idx, ok := a.bitmap.Alloc(a.io.cpu)
	if !ok {
		return 0, ErrNoSpace
	}
	if err := a.persist(p); err != nil {
		a.bitmap.Free(a.io.cpu, idx)
		return 0, err
	}
	addr := a.dataBase + uint32(idx)
	var zero [block.Size]byte
	if err := a.io.WriteBlock(p, addr, zero[:]); err != nil {
		a.bitmap.Free(a.io.cpu, idx)
		_ = a.persist(p)
		return 0, err
	}
	return addr, nil
}

// Free zero-fills and clears the bit for addr (spec.md §4.8
// "block_free").
func (a *Allocator) Free(p *proc.Process, addr uint32) error {
	idx := int(addr - a.dataBase)
	var zero [block.Size]byte
	if err := a.io.WriteBlock(p, addr, zero[:]); err != nil {
		return err
	}
	a.bitmap.Free(a.io.cpu, idx)
	return a.persist(p)
}

func (a *Allocator) persist(p *proc.Process) error {
	raw := a.bitmap.Raw()
	for i := 0; i*block.Size < len(raw); i++ {
		lo := i * block.Size
		hi := lo + block.Size
		if hi > len(raw) {
			hi = len(raw)
		}
		var buf [block.Size]byte
		copy(buf[:], raw[lo:hi])
		if err := a.io.WriteBlock(p, a.firstBlock+uint32(i), buf[:]); err != nil {
			return err
		}
	}
	return nil
}
