package fs

import (
	"fmt"

	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
)

// Open mode flags (spec.md §6's open syscall).
const (
	ModeRead  = 1 << 0
	ModeWrite = 1 << 1
)

// OpenFile is the open-file table entry of spec.md §3: shared across
// descriptors of parent/child after fork, hence its own ref_count.
type OpenFile struct {
	RefCount int
	Readable bool
	Writable bool
	Inode    *CacheEntry
	Offset   int
}

// FTable is the system-wide open file table.
type FTable struct {
	spin    *syncx.Spinlock
	cpu     *syncx.CPU
	entries []*OpenFile
}

// NewFTable allocates an open file table with the given capacity.
func NewFTable(cpu *syncx.CPU, slots int) *FTable {
	return &FTable{spin: syncx.NewSpinlock("fs.ftable"), cpu: cpu, entries: make([]*OpenFile, slots)}
}

// Get implements file_get: claims a free slot and sets ref_count=1.
func (t *FTable) Get() (*OpenFile, error) {
	t.spin.Acquire(t.cpu)
	defer t.spin.Release(t.cpu)
	for i, e := range t.entries {
		if e == nil {
			f := &OpenFile{RefCount: 1}
			t.entries[i] = f
			return f, nil
		}
	}
	return nil, fmt.Errorf("fs: open file table full")
}

// Ref bumps f's ref_count, used when a descriptor is inherited across
// fork.
func (t *FTable) Ref(f *OpenFile) {
	t.spin.Acquire(t.cpu)
	f.RefCount++
	t.spin.Release(t.cpu)
}

// put drops f's ref_count and reports whether it reached zero.
func (t *FTable) put(f *OpenFile) bool {
	t.spin.Acquire(t.cpu)
	defer t.spin.Release(t.cpu)
	f.RefCount--
	if f.RefCount <= 0 {
		for i, e := range t.entries {
			if e == f {
				t.entries[i] = nil
			}
		}
		return true
	}
	return false
}

// allocFd finds the first free descriptor slot in p's file table.
func allocFd(p *proc.Process) (int, error) {
	for i := range p.Files {
		if !p.Files[i].Open {
			return i, nil
		}
	}
	return -1, fmt.Errorf("fs: process file table full")
}

// Open resolves path against cwd, installs the resolved inode in an
// ftable slot, and records the slot in the first free descriptor of
// p (spec.md §4.9 "Open files").
func (fs *FileSystem) Open(p *proc.Process, ftable *FTable, cwd *CacheEntry, path string, mode int) (int, error) {
	inode, err := fs.Resolve(p, cwd, path)
	if err != nil {
		return -1, err
	}

	of, err := ftable.Get()
	if err != nil {
		fs.Cache.Put(p, inode)
		return -1, err
	}
	of.Inode = inode
	of.Readable = mode&ModeRead != 0
	of.Writable = mode&ModeWrite != 0

	fd, err := allocFd(p)
	if err != nil {
		ftable.put(of)
		fs.Cache.Put(p, inode)
		return -1, err
	}
	p.Files[fd] = proc.FileSlot{Open: true, Handle: of}
	return fd, nil
}

// Close drops a descriptor's reference to its open-file entry,
// releasing the inode once the entry's own ref_count reaches zero
// (spec.md §4.9 "Closed by last reference drop").
func (fs *FileSystem) Close(p *proc.Process, ftable *FTable, fd int) error {
	if fd < 0 || fd >= len(p.Files) || !p.Files[fd].Open {
		return fmt.Errorf("fs: fd %d not open", fd)
	}
	of, ok := p.Files[fd].Handle.(*OpenFile)
	if !ok {
		return fmt.Errorf("fs: fd %d has no file handle", fd)
	}
	p.Files[fd] = proc.FileSlot{}
	if ftable.put(of) {
		fs.Cache.Put(p, of.Inode)
	}
	return nil
}

// Read reads up to len(dst) bytes from fd starting at its current
// offset, advancing the offset by the amount actually read.
func (fs *FileSystem) Read(p *proc.Process, fd int, dst []byte) (int, error) {
	of, err := fdHandle(p, fd)
	if err != nil {
		return -1, err
	}
	if !of.Readable {
		return -1, fmt.Errorf("fs: fd %d not opened for reading", fd)
	}
	n, err := fs.ReadInode(p, of.Inode, of.Offset, dst)
	of.Offset += n
	return n, err
}

// Write writes src to fd at its current offset, advancing the offset.
func (fs *FileSystem) Write(p *proc.Process, fd int, src []byte) (int, error) {
	of, err := fdHandle(p, fd)
	if err != nil {
		return -1, err
	}
	if !of.Writable {
		return -1, fmt.Errorf("fs: fd %d not opened for writing", fd)
	}
	n, err := fs.WriteInode(p, of.Inode, of.Offset, src)
	of.Offset += n
	return n, err
}

// Seek repositions fd's offset.
func (fs *FileSystem) Seek(p *proc.Process, fd int, offset int) error {
	of, err := fdHandle(p, fd)
	if err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("fs: negative seek offset")
	}
	of.Offset = offset
	return nil
}

func fdHandle(p *proc.Process, fd int) (*OpenFile, error) {
	if fd < 0 || fd >= len(p.Files) || !p.Files[fd].Open {
		return nil, fmt.Errorf("fs: fd %d not open", fd)
	}
	of, ok := p.Files[fd].Handle.(*OpenFile)
	if !ok {
		return nil, fmt.Errorf("fs: fd %d has no file handle", fd)
	}
	return of, nil
}

// Stat mirrors the fstat syscall's output fields, carried over from
// original_source/src/filesys/file.c's stat_t verbatim (spec.md
// §3.5's supplement): inumber, type, size, and the inode cache
// entry's ref_count standing in for a link count.
type Stat struct {
	Inumber  uint32
	Type     InodeType
	Size     uint32
	RefCount int
}

// Fstat reports fd's inode identity, type, size, and cache ref_count.
func (fs *FileSystem) Fstat(p *proc.Process, fd int) (Stat, error) {
	of, err := fdHandle(p, fd)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Inumber:  of.Inode.Inumber,
		Type:     of.Inode.Inode.Type,
		Size:     of.Inode.Inode.Size,
		RefCount: of.Inode.RefCount,
	}, nil
}
