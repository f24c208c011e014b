package fs

import (
	"fmt"

	"github.com/huxgo/kernel/internal/proc"
)

// walk resolves a logical block index within an inode to a disk
// block address, allocating along the way when alloc is true
// (spec.md §4.9 "Block index walk"). The caller must hold the
// inode's lock.
func (fs *FileSystem) walk(p *proc.Process, e *CacheEntry, idx int, alloc bool) (uint32, error) {
	switch {
	case idx < DirectCount:
		return fs.walkDirect(p, e, idx, alloc)
	case idx < DirectCount+SinglyIndirectCount*EntriesPerIndirBlock:
		return fs.walkSingly(p, e, idx-DirectCount, alloc)
	case idx < MaxFileBlocks:
		return fs.walkDoubly(p, e, idx-DirectCount-SinglyIndirectCount*EntriesPerIndirBlock, alloc)
	default:
		return 0, fmt.Errorf("fs: block index %d out of range", idx)
	}
}

func (fs *FileSystem) walkDirect(p *proc.Process, e *CacheEntry, idx int, alloc bool) (uint32, error) {
	if e.Inode.Direct[idx] == 0 {
		if !alloc {
			return 0, nil
		}
		addr, err := fs.DataAlloc.Alloc(p)
		if err != nil {
			return 0, err
		}
		e.Inode.Direct[idx] = addr
	}
	return e.Inode.Direct[idx], nil
}

func (fs *FileSystem) walkSingly(p *proc.Process, e *CacheEntry, idx int, alloc bool) (uint32, error) {
	slot := idx / EntriesPerIndirBlock
	leaf := idx % EntriesPerIndirBlock

	indirAddr := e.Inode.Singly[slot]
	var indir [EntriesPerIndirBlock]uint32
	if indirAddr == 0 {
		if !alloc {
			return 0, nil
		}
		addr, err := fs.DataAlloc.Alloc(p)
		if err != nil {
			return 0, err
		}
		indirAddr = addr
		e.Inode.Singly[slot] = addr
	} else if err := fs.readIndirect(p, indirAddr, &indir); err != nil {
		return 0, err
	}

	if indir[leaf] == 0 {
		if !alloc {
			return 0, nil
		}
		addr, err := fs.DataAlloc.Alloc(p)
		if err != nil {
			return 0, err
		}
		indir[leaf] = addr
		if err := fs.writeIndirect(p, indirAddr, &indir); err != nil {
			return 0, err
		}
	}
	return indir[leaf], nil
}

func (fs *FileSystem) walkDoubly(p *proc.Process, e *CacheEntry, idx int, alloc bool) (uint32, error) {
	l1 := idx / EntriesPerIndirBlock
	l2 := idx % EntriesPerIndirBlock

	var level1 [EntriesPerIndirBlock]uint32
	if e.Inode.Doubly == 0 {
		if !alloc {
			return 0, nil
		}
		addr, err := fs.DataAlloc.Alloc(p)
		if err != nil {
			return 0, err
		}
		e.Inode.Doubly = addr
	} else if err := fs.readIndirect(p, e.Inode.Doubly, &level1); err != nil {
		return 0, err
	}

	l1Addr := level1[l1]
	var level2 [EntriesPerIndirBlock]uint32
	if l1Addr == 0 {
		if !alloc {
			return 0, nil
		}
		addr, err := fs.DataAlloc.Alloc(p)
		if err != nil {
			return 0, err
		}
		l1Addr = addr
		level1[l1] = addr
		if err := fs.writeIndirect(p, e.Inode.Doubly, &level1); err != nil {
			return 0, err
		}
	} else if err := fs.readIndirect(p, l1Addr, &level2); err != nil {
		return 0, err
	}

	if level2[l2] == 0 {
		if !alloc {
			return 0, nil
		}
		addr, err := fs.DataAlloc.Alloc(p)
		if err != nil {
			return 0, err
		}
		level2[l2] = addr
		if err := fs.writeIndirect(p, l1Addr, &level2); err != nil {
			return 0, err
		}
	}
	return level2[l2], nil
}

func (fs *FileSystem) readIndirect(p *proc.Process, addr uint32, out *[EntriesPerIndirBlock]uint32) error {
	var buf [1024]byte
	if err := fs.IO.ReadBlock(p, addr, buf[:]); err != nil {
		return err
	}
	for i := range out {
		out[i] = le32(buf[i*4 : i*4+4])
	}
	return nil
}

func (fs *FileSystem) writeIndirect(p *proc.Process, addr uint32, in *[EntriesPerIndirBlock]uint32) error {
	var buf [1024]byte
	for i, v := range in {
		putLE32(buf[i*4:i*4+4], v)
	}
	return fs.IO.WriteBlock(p, addr, buf[:])
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
