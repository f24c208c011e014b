package fs

import (
	"fmt"
	"strings"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/blockio"
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
)

// FileSystem wires together the inode cache, block allocator, and
// inode bitmap into the operations of spec.md §4.9.
type FileSystem struct {
	IO         *blockio.IO
	InodeAlloc *memory.Bitmap
	DataAlloc  *blockio.Allocator
	Cache      *Cache
	Super      Superblock
	cpu        *syncx.CPU
}

// Boot reads the superblock and both bitmaps into memory (spec.md
// §4.9 "Boot"). inodeCacheSlots sizes the in-memory inode cache.
func Boot(cpu *syncx.CPU, io *blockio.IO, table *proc.Table, inodeCacheSlots int) (*FileSystem, error) {
	var sbBlock [1024]byte
	if err := io.ReadBlock(nil, SuperblockNo, sbBlock[:]); err != nil {
		return nil, fmt.Errorf("fs: read superblock: %w", err)
	}
	super := Superblock{
		Magic:      le32(sbBlock[0:4]),
		TotalSize:  le32(sbBlock[4:8]),
		InodeCount: le32(sbBlock[8:12]),
		DataBlocks: le32(sbBlock[12:16]),
	}
	if super.Magic != superblockMagic {
		return nil, fmt.Errorf("fs: bad superblock magic %#x", super.Magic)
	}

	inodeBitmap := memory.NewBitmap("fs.inode-bitmap", MaxInodes)
	if err := loadBitmap(io, inodeBitmap, InodeBitmapStart, InodeBitmapBlocks); err != nil {
		return nil, err
	}
	dataBitmap := memory.NewBitmap("fs.data-bitmap", MaxDataBlocks)
	if err := loadBitmap(io, dataBitmap, DataBitmapStart, DataBitmapBlocks); err != nil {
		return nil, err
	}

	return &FileSystem{
		IO:         io,
		InodeAlloc: inodeBitmap,
		DataAlloc:  blockio.NewAllocator(io, dataBitmap, DataBitmapStart, DataRegionStart),
		Cache:      NewCache(cpu, table, io, inodeCacheSlots),
		Super:      super,
		cpu:        cpu,
	}, nil
}

// Format writes a fresh superblock and zeroes both bitmaps, for
// building a disk image from scratch (used by `goux boot` when its
// disk.format setting is true, by `goux mkfs`, and by tests).
func Format(cpu *syncx.CPU, io *blockio.IO) error {
	var sb [1024]byte
	putLE32(sb[0:4], superblockMagic)
	putLE32(sb[4:8], TotalBlocks)
	putLE32(sb[8:12], MaxInodes)
	putLE32(sb[12:16], MaxDataBlocks)
	if err := io.WriteBlock(nil, SuperblockNo, sb[:]); err != nil {
		return err
	}
	var zero [1024]byte
	for i := 0; i < InodeBitmapBlocks; i++ {
		if err := io.WriteBlock(nil, InodeBitmapStart+uint32(i), zero[:]); err != nil {
			return err
		}
	}
	for i := 0; i < DataBitmapBlocks; i++ {
		if err := io.WriteBlock(nil, DataBitmapStart+uint32(i), zero[:]); err != nil {
			return err
		}
	}

	// Reserve inumber 0 for the root directory (spec.md §3): mark its
	// bitmap bit and write an empty directory inode directly, since no
	// cache/process context exists yet this early.
	var inodeBitmapBlock0 [1024]byte
	inodeBitmapBlock0[0] = 0x01
	if err := io.WriteBlock(nil, InodeBitmapStart, inodeBitmapBlock0[:]); err != nil {
		return err
	}
	var inodeTableBlock0 [1024]byte
	root := DiskInode{Type: TypeDir}
	rootBytes := root.Marshal()
	copy(inodeTableBlock0[:InodeSize], rootBytes[:])
	return io.WriteBlock(nil, InodeTableStart, inodeTableBlock0[:])
}

// FormatAndDescribe formats a fresh disk image via Format and returns
// the Superblock it wrote, for a caller (`goux mkfs`) that wants to
// describe the freshly laid-out geometry without a second read of
// block 0.
func FormatAndDescribe(cpu *syncx.CPU, io *blockio.IO) (Superblock, error) {
	if err := Format(cpu, io); err != nil {
		return Superblock{}, err
	}
	return Superblock{
		Magic:      superblockMagic,
		TotalSize:  TotalBlocks,
		InodeCount: MaxInodes,
		DataBlocks: MaxDataBlocks,
	}, nil
}

func loadBitmap(io *blockio.IO, bm *memory.Bitmap, firstBlock uint32, blocks int) error {
	raw := make([]byte, 0, blocks*block.Size)
	for i := 0; i < blocks; i++ {
		var buf [block.Size]byte
		if err := io.ReadBlock(nil, firstBlock+uint32(i), buf[:]); err != nil {
			return err
		}
		raw = append(raw, buf[:]...)
	}
	bm.LoadRaw(raw[:len(bm.Raw())])
	return nil
}

// AllocInode implements inode_alloc(type): bitmap alloc, zero
// on-disk inode with the given type, persist both (spec.md §4.9).
func (fs *FileSystem) AllocInode(p *proc.Process, typ InodeType) (*CacheEntry, error) {
	idx, ok := fs.InodeAlloc.Alloc(fs.cpu)
	if !ok {
		return nil, fmt.Errorf("fs: no free inodes")
	}
	e, err := fs.Cache.Get(p, uint32(idx))
	if err != nil {
		fs.InodeAlloc.Free(fs.cpu, idx)
		return nil, err
	}
	if err := e.Lock.Acquire(fs.cpu, p); err != nil {
		return nil, err
	}
	e.Inode = DiskInode{Type: typ}
	err = fs.Cache.Flush(p, e)
	e.Lock.Release(fs.cpu, p)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FreeInode implements inode_free: walk every direct/indirect block,
// free each, free the indirect blocks themselves, clear the inode's
// bitmap bit, flush. The caller must hold e.Lock (spec.md §4.9).
func (fs *FileSystem) FreeInode(p *proc.Process, e *CacheEntry) error {
	for i, addr := range e.Inode.Direct {
		if addr != 0 {
			if err := fs.DataAlloc.Free(p, addr); err != nil {
				return err
			}
			e.Inode.Direct[i] = 0
		}
	}
	for i, indirAddr := range e.Inode.Singly {
		if indirAddr == 0 {
			continue
		}
		var indir [EntriesPerIndirBlock]uint32
		if err := fs.readIndirect(p, indirAddr, &indir); err != nil {
			return err
		}
		for _, leaf := range indir {
			if leaf != 0 {
				if err := fs.DataAlloc.Free(p, leaf); err != nil {
					return err
				}
			}
		}
		if err := fs.DataAlloc.Free(p, indirAddr); err != nil {
			return err
		}
		e.Inode.Singly[i] = 0
	}
	if e.Inode.Doubly != 0 {
		var level1 [EntriesPerIndirBlock]uint32
		if err := fs.readIndirect(p, e.Inode.Doubly, &level1); err != nil {
			return err
		}
		for _, l1Addr := range level1 {
			if l1Addr == 0 {
				continue
			}
			var level2 [EntriesPerIndirBlock]uint32
			if err := fs.readIndirect(p, l1Addr, &level2); err != nil {
				return err
			}
			for _, leaf := range level2 {
				if leaf != 0 {
					if err := fs.DataAlloc.Free(p, leaf); err != nil {
						return err
					}
				}
			}
			if err := fs.DataAlloc.Free(p, l1Addr); err != nil {
				return err
			}
		}
		if err := fs.DataAlloc.Free(p, e.Inode.Doubly); err != nil {
			return err
		}
		e.Inode.Doubly = 0
	}

	fs.InodeAlloc.Free(fs.cpu, int(e.Inumber))
	e.Inode.Type = TypeEmpty
	e.Inode.Size = 0
	return fs.Cache.Flush(p, e)
}

// ReadInode implements inode_read(inode, dst, offset, len): clamps
// len to size-offset and loops per-block via walk (spec.md §4.9).
func (fs *FileSystem) ReadInode(p *proc.Process, e *CacheEntry, offset int, dst []byte) (int, error) {
	if offset >= int(e.Inode.Size) {
		return 0, nil
	}
	length := len(dst)
	if offset+length > int(e.Inode.Size) {
		length = int(e.Inode.Size) - offset
	}
	resolve := func(idx int) (uint32, error) { return fs.walk(p, e, idx, false) }
	return fs.IO.ReadSpan(p, resolve, offset, length, dst)
}

// WriteInode implements inode_write(inode, src, offset, len):
// forbids offset > size, extends size and flushes on growth (spec.md
// §4.9).
func (fs *FileSystem) WriteInode(p *proc.Process, e *CacheEntry, offset int, src []byte) (int, error) {
	if offset > int(e.Inode.Size) {
		return 0, fmt.Errorf("fs: write offset %d beyond size %d (no sparse holes)", offset, e.Inode.Size)
	}
	resolve := func(idx int) (uint32, error) { return fs.walk(p, e, idx, true) }
	n, err := fs.IO.WriteSpan(p, resolve, offset, len(src), src)
	if n > 0 && offset+n > int(e.Inode.Size) {
		e.Inode.Size = uint32(offset + n)
		if flushErr := fs.Cache.Flush(p, e); flushErr != nil && err == nil {
			err = flushErr
		}
	}
	return n, err
}

// Lookup implements the directory lookup half of path resolution: a
// linear scan of dir's data for a matching filename.
func (fs *FileSystem) Lookup(p *proc.Process, dir *CacheEntry, name string) (uint32, bool, error) {
	count := int(dir.Inode.Size) / DirentSize
	var raw [DirentSize]byte
	for i := 0; i < count; i++ {
		if _, err := fs.ReadInode(p, dir, i*DirentSize, raw[:]); err != nil {
			return 0, false, err
		}
		entry := Unmarshal(raw)
		if entry.Inumber != 0 && entry.Name == name {
			return entry.Inumber, true, nil
		}
	}
	return 0, false, nil
}

// Link writes a new directory entry into dir, reusing the first
// unused slot if any, otherwise appending (spec.md §4.9 "Create").
func (fs *FileSystem) Link(p *proc.Process, dir *CacheEntry, name string, inumber uint32) error {
	count := int(dir.Inode.Size) / DirentSize
	var raw [DirentSize]byte
	for i := 0; i < count; i++ {
		if _, err := fs.ReadInode(p, dir, i*DirentSize, raw[:]); err != nil {
			return err
		}
		if Unmarshal(raw).Inumber == 0 {
			entry := Dirent{Inumber: inumber, Name: name}.Marshal()
			_, err := fs.WriteInode(p, dir, i*DirentSize, entry[:])
			return err
		}
	}
	entry := Dirent{Inumber: inumber, Name: name}.Marshal()
	_, err := fs.WriteInode(p, dir, count*DirentSize, entry[:])
	return err
}

// Unlink zeroes name's entry in dir (spec.md §4.9 "Remove").
func (fs *FileSystem) Unlink(p *proc.Process, dir *CacheEntry, name string) error {
	count := int(dir.Inode.Size) / DirentSize
	var raw [DirentSize]byte
	for i := 0; i < count; i++ {
		if _, err := fs.ReadInode(p, dir, i*DirentSize, raw[:]); err != nil {
			return err
		}
		entry := Unmarshal(raw)
		if entry.Inumber != 0 && entry.Name == name {
			zero := Dirent{}.Marshal()
			_, err := fs.WriteInode(p, dir, i*DirentSize, zero[:])
			return err
		}
	}
	return fmt.Errorf("fs: %q not found", name)
}

// ResolveParent splits path into its containing directory and final
// component, resolving only the directory part (spec.md §4.9's
// create/remove both need the parent directory entry, not the target
// itself, since the target may not exist yet).
func (fs *FileSystem) ResolveParent(p *proc.Process, cwd *CacheEntry, path string) (dir *CacheEntry, base string, err error) {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return nil, "", fmt.Errorf("fs: empty path")
	}
	slash := strings.LastIndex(trimmed, "/")
	if slash < 0 {
		fs.Cache.Ref(cwd)
		return cwd, trimmed, nil
	}
	dirPart := trimmed[:slash]
	base = trimmed[slash+1:]
	if dirPart == "" {
		dirPart = "/"
	}
	dir, err = fs.Resolve(p, cwd, dirPart)
	return dir, base, err
}

// IsEmptyDir reports whether dir has no live directory entries
// (spec.md scenario S5: remove on a non-empty directory must fail).
func (fs *FileSystem) IsEmptyDir(p *proc.Process, dir *CacheEntry) (bool, error) {
	count := int(dir.Inode.Size) / DirentSize
	var raw [DirentSize]byte
	for i := 0; i < count; i++ {
		if _, err := fs.ReadInode(p, dir, i*DirentSize, raw[:]); err != nil {
			return false, err
		}
		if Unmarshal(raw).Inumber != 0 {
			return false, nil
		}
	}
	return true, nil
}

// Create implements the create syscall: resolves path's parent
// directory, allocates a new inode of typ, and links it into the
// parent under path's final component (spec.md §4.9 "Create").
func (fs *FileSystem) Create(p *proc.Process, cwd *Cwd, path string, typ InodeType) error {
	dir, base, err := fs.ResolveParent(p, cwd.Entry, path)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(p, dir)

	if _, ok, err := fs.Lookup(p, dir, base); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("fs: %q already exists", path)
	}

	e, err := fs.AllocInode(p, typ)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(p, e)
	return fs.Link(p, dir, base, e.Inumber)
}

// Remove implements the remove syscall: fails on a non-empty
// directory (spec.md scenario S5), otherwise frees the target inode
// and zeroes its parent directory entry.
func (fs *FileSystem) Remove(p *proc.Process, cwd *Cwd, path string) error {
	dir, base, err := fs.ResolveParent(p, cwd.Entry, path)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(p, dir)

	inum, ok, err := fs.Lookup(p, dir, base)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("fs: %q not found", path)
	}

	target, err := fs.Cache.Get(p, inum)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(p, target)

	if target.Inode.Type == TypeDir {
		empty, err := fs.IsEmptyDir(p, target)
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("fs: %q is not empty", path)
		}
	}

	if err := target.Lock.Acquire(fs.cpu, p); err != nil {
		return err
	}
	err = fs.FreeInode(p, target)
	target.Lock.Release(fs.cpu, p)
	if err != nil {
		return err
	}
	return fs.Unlink(p, dir, base)
}

// Resolve walks path component by component from cwd (or the root
// for a leading '/'), returning the resolved entry (spec.md §4.9
// "Path resolution"). Intermediate directory entries are released as
// traversal proceeds.
func (fs *FileSystem) Resolve(p *proc.Process, cwd *CacheEntry, path string) (*CacheEntry, error) {
	cur := cwd
	if strings.HasPrefix(path, "/") {
		root, err := fs.Cache.Get(p, RootInumber)
		if err != nil {
			return nil, err
		}
		cur = root
	} else {
		fs.Cache.Ref(cur)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if cur.Inode.Type != TypeDir {
			fs.Cache.Put(p, cur)
			return nil, fmt.Errorf("fs: %q is not a directory", part)
		}
		inum, ok, err := fs.Lookup(p, cur, part)
		if err != nil {
			fs.Cache.Put(p, cur)
			return nil, err
		}
		if !ok {
			fs.Cache.Put(p, cur)
			return nil, fmt.Errorf("fs: %q not found", part)
		}
		next, err := fs.Cache.Get(p, inum)
		if err != nil {
			fs.Cache.Put(p, cur)
			return nil, err
		}
		fs.Cache.Put(p, cur)
		cur = next
	}
	return cur, nil
}
