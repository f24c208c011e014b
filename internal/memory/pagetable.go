package memory

import (
	"encoding/binary"
	"fmt"

	"github.com/huxgo/kernel/internal/syncx"
)

// PTE bit layout, matching the x86 leaf-entry fields spec.md §3
// describes: present, writable, user-accessible, accessed, dirty,
// and a 20-bit frame number in the top bits.
const (
	ptePresent  = 1 << 0
	pteWritable = 1 << 1
	pteUser     = 1 << 2
	pteAccessed = 1 << 5
	pteDirty    = 1 << 6
	pteFrameMask = 0xFFFFF000
)

func pteFrame(entry uint32) uint32   { return entry & pteFrameMask }
func pteIsPresent(entry uint32) bool { return entry&ptePresent != 0 }

func makePTE(frame uint32, user, writable bool) uint32 {
	e := pteFrame(frame) | ptePresent
	if user {
		e |= pteUser
	}
	if writable {
		e |= pteWritable
	}
	return e
}

// table is a page-slab-backed array of 1024 32-bit entries, used for
// both the directory and level-2 tables.
type table struct {
	page *Page
}

func (t *table) get(i int) uint32 {
	return binary.LittleEndian.Uint32(t.page[i*4 : i*4+4])
}

func (t *table) set(i int, v uint32) {
	binary.LittleEndian.PutUint32(t.page[i*4:i*4+4], v)
}

// PageTable is the two-level directory described in spec.md §3/§4.3.
// Level-2 tables are tracked both by their encoded PDE (for the
// present/frame bookkeeping a real walk would use) and by a direct Go
// pointer (avoiding the need to fake a physical-address-indexed
// memory space for level-2 table storage itself).
type PageTable struct {
	dir     *table
	level2  map[int]*table // index into dir -> level-2 table
	slab    *PageSlab
	frames  *FrameAlloc
	cpu     *syncx.CPU
	isBoot  bool
	bootGen func() (*Page, error) // bump allocator, boot path only
}

// NewPageTable allocates a fresh, empty page directory from the page
// slab.
func NewPageTable(cpu *syncx.CPU, slab *PageSlab, frames *FrameAlloc) (*PageTable, error) {
	p, err := slab.Alloc(cpu)
	if err != nil {
		return nil, err
	}
	return &PageTable{
		dir:    &table{page: p},
		level2: make(map[int]*table),
		slab:   slab,
		frames: frames,
		cpu:    cpu,
	}, nil
}

// NewBootPageTable builds the kernel's first page directory using a
// simple bump allocator over the supplied arena instead of the page
// slab, which does not exist yet this early in boot (spec.md §4.3's
// "boot path variant"). The two paths share walk() via the isBoot
// flag.
func NewBootPageTable(arena []byte) *PageTable {
	off := 0
	bump := func() (*Page, error) {
		if off+PageSize > len(arena) {
			return nil, fmt.Errorf("memory: boot bump allocator exhausted")
		}
		p := (*Page)(arena[off : off+PageSize])
		off += PageSize
		return p, nil
	}
	dirPage, _ := bump()
	return &PageTable{
		dir:     &table{page: dirPage},
		level2:  make(map[int]*table),
		isBoot:  true,
		bootGen: bump,
	}
}

// Slab returns the page-slab allocator backing this directory's
// level-2 tables, or nil for a boot-path directory.
func (pt *PageTable) Slab() *PageSlab { return pt.slab }

// Frames returns the physical frame allocator backing this
// directory's user mappings.
func (pt *PageTable) Frames() *FrameAlloc { return pt.frames }

func (pt *PageTable) allocTablePage() (*Page, error) {
	if pt.isBoot {
		return pt.bootGen()
	}
	return pt.slab.Alloc(pt.cpu)
}

func dirStackIndex(vaddr uint32) int  { return int(vaddr>>22) & 0x3FF }
func tableStackIndex(vaddr uint32) int { return int(vaddr>>12) & 0x3FF }

// Walk returns the level-2 table and leaf index for vaddr, allocating
// the level-2 table on demand when allocate is true. It reports
// ok=false when allocation was needed but failed.
func (pt *PageTable) Walk(vaddr uint32, allocate bool) (lvl2 *table, idx int, ok bool) {
	di := dirStackIndex(vaddr)
	idx = tableStackIndex(vaddr)

	lvl2, present := pt.level2[di]
	if !present {
		if !allocate {
			return nil, idx, false
		}
		page, err := pt.allocTablePage()
		if err != nil {
			return nil, idx, false
		}
		lvl2 = &table{page: page}
		pt.level2[di] = lvl2
		pt.dir.set(di, ptePresent) // page-size bit always 4 KiB; frame unused for bookkeeping
	}
	return lvl2, idx, true
}

// MapUser claims a fresh physical frame and maps vaddr to it as a
// user page.
func (pt *PageTable) MapUser(vaddr uint32, writable bool) (uint32, error) {
	lvl2, idx, ok := pt.Walk(vaddr, true)
	if !ok {
		return 0, ErrOutOfPageSlab
	}
	frame, err := pt.frames.Alloc()
	if err != nil {
		return 0, err
	}
	lvl2.set(idx, makePTE(frame, true, writable))
	return frame, nil
}

// MapKernel maps vaddr to an already-owned physical page paddr,
// non-user and non-writable (the kernel can still write to it by
// privilege).
func (pt *PageTable) MapKernel(vaddr, paddr uint32) error {
	lvl2, idx, ok := pt.Walk(vaddr, true)
	if !ok {
		return ErrOutOfPageSlab
	}
	lvl2.set(idx, makePTE(paddr, false, false))
	return nil
}

// Lookup returns the physical address mapped for vaddr, if present.
func (pt *PageTable) Lookup(vaddr uint32) (uint32, bool) {
	lvl2, idx, ok := pt.Walk(vaddr, false)
	if !ok {
		return 0, false
	}
	e := lvl2.get(idx)
	if !pteIsPresent(e) {
		return 0, false
	}
	return pteFrame(e) + (vaddr & (PageSize - 1)), true
}

// ErrFault reports a user-memory access that sysarg_get_* (spec.md
// §4.10) must translate into the distinguished syscall failure value.
var ErrFault = fmt.Errorf("memory: user access fault")

// userFrame returns the frame-relative byte slice backing vaddr,
// failing unless the containing page is present and user-accessible.
func (pt *PageTable) userFrame(vaddr uint32) ([]byte, error) {
	lvl2, idx, ok := pt.Walk(vaddr, false)
	if !ok {
		return nil, ErrFault
	}
	e := lvl2.get(idx)
	if !pteIsPresent(e) || e&pteUser == 0 {
		return nil, ErrFault
	}
	base := pteFrame(e)
	off := vaddr & (PageSize - 1)
	return pt.frames.Frame(base)[off:], nil
}

// ReadUser copies len(dst) bytes starting at user vaddr into dst,
// crossing page boundaries as needed, failing if any touched page is
// not present and user-accessible (spec.md §4.10's sysarg_get_mem).
func (pt *PageTable) ReadUser(vaddr uint32, dst []byte) error {
	for len(dst) > 0 {
		frame, err := pt.userFrame(vaddr)
		if err != nil {
			return err
		}
		n := copy(dst, frame)
		dst = dst[n:]
		vaddr += uint32(n)
	}
	return nil
}

// WriteUser writes src into user memory starting at vaddr, crossing
// page boundaries as needed.
func (pt *PageTable) WriteUser(vaddr uint32, src []byte) error {
	for len(src) > 0 {
		frame, err := pt.userFrame(vaddr)
		if err != nil {
			return err
		}
		n := copy(frame, src)
		src = src[n:]
		vaddr += uint32(n)
	}
	return nil
}

// ReadCString scans forward from vaddr for a NUL terminator without
// leaving mapped user memory, per spec.md §4.10's sysarg_get_str.
func (pt *PageTable) ReadCString(vaddr uint32, maxLen int) (string, error) {
	var b []byte
	for len(b) < maxLen {
		frame, err := pt.userFrame(vaddr)
		if err != nil {
			return "", err
		}
		for _, c := range frame {
			if c == 0 {
				return string(b), nil
			}
			b = append(b, c)
			if len(b) >= maxLen {
				return "", ErrFault
			}
		}
		vaddr += uint32(len(frame))
	}
	return "", ErrFault
}

// UnmapRange clears every present leaf entry in [lo, hi), freeing its
// frame back to the frame allocator. Level-2 tables themselves are
// never freed here (spec.md §4.3).
func (pt *PageTable) UnmapRange(lo, hi uint32) {
	for v := lo &^ (PageSize - 1); v < hi; v += PageSize {
		lvl2, idx, ok := pt.Walk(v, false)
		if !ok {
			continue
		}
		e := lvl2.get(idx)
		if !pteIsPresent(e) {
			continue
		}
		if pt.frames != nil {
			pt.frames.Free(pteFrame(e))
		}
		lvl2.set(idx, 0)
	}
}

// CopyRange copies every present user page in [lo, hi) from src into
// dst, allocating fresh frames in dst and preserving writability. On
// any failure it rolls back by unmapping whatever it had already
// mapped in dst and reports failure, per spec.md §4.3.
func CopyRange(dst, src *PageTable, lo, hi uint32) error {
	for v := lo &^ (PageSize - 1); v < hi; v += PageSize {
		slvl2, sidx, ok := src.Walk(v, false)
		if !ok {
			continue
		}
		se := slvl2.get(sidx)
		if !pteIsPresent(se) {
			continue
		}
		writable := se&pteWritable != 0

		dlvl2, didx, ok := dst.Walk(v, true)
		if !ok {
			dst.UnmapRange(lo, hi)
			return ErrOutOfPageSlab
		}
		dframe, err := dst.frames.Alloc()
		if err != nil {
			dst.UnmapRange(lo, hi)
			return err
		}
		copy(dst.frames.Frame(dframe), src.frames.Frame(pteFrame(se)))
		dlvl2.set(didx, makePTE(dframe, true, writable))
	}
	return nil
}

// Destroy returns every level-2 table to the page slab along with the
// directory itself. The caller must already have unmapped any user
// frames via UnmapRange — Destroy does not touch frames.
func (pt *PageTable) Destroy(cpu *syncx.CPU) {
	if pt.isBoot {
		return // boot directory has no slab pages to return
	}
	for _, lvl2 := range pt.level2 {
		pt.slab.Free(cpu, lvl2.page)
	}
	pt.level2 = make(map[int]*table)
	pt.slab.Free(cpu, pt.dir.page)
}
