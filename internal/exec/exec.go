// Package exec implements the ELF-32 load-and-swap operation of
// spec.md §4.11: parse program headers, map PT_LOAD segments into a
// freshly built address space, push argv, and atomically install the
// new image in place of the calling process's old one.
package exec

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/huxgo/kernel/internal/fs"
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
)

// MaxArgv bounds argv per spec.md §6's syscall surface table.
const MaxArgv = 32

// inodeReaderAt lets debug/elf read ELF contents straight out of the
// on-disk inode, matching spec.md §4.11 step 1's "in-memory inode for
// the ELF" input.
type inodeReaderAt struct {
	fsys *fs.FileSystem
	p    *proc.Process
	e    *fs.CacheEntry
}

func (r *inodeReaderAt) ReadAt(b []byte, off int64) (int, error) {
	n, err := r.fsys.ReadInode(r.p, r.e, int(off), b)
	if err == nil && n < len(b) {
		err = io.EOF
	}
	return n, err
}

// Load parses the ELF at elfInode, builds a new address space for it,
// and — only on complete success — swaps p's page directory, name,
// and trap state in place, tearing down the old address space.
// Argv entries are limited to MaxArgv per spec.md §6. Any failure
// before the swap tears down the half-built directory and leaves p
// untouched (spec.md §4.11's atomicity contract).
func Load(cpu *syncx.CPU, p *proc.Process, fsys *fs.FileSystem, elfInode *fs.CacheEntry, name string, argv []string) error {
	if len(argv) > MaxArgv {
		return fmt.Errorf("exec: argv has %d entries, max %d", len(argv), MaxArgv)
	}

	f, err := elf.NewFile(&inodeReaderAt{fsys: fsys, p: p, e: elfInode})
	if err != nil {
		fsys.Cache.Put(p, elfInode)
		return fmt.Errorf("exec: bad ELF header: %w", err)
	}

	newDir, err := memory.NewPageTable(cpu, p.PageDir.Slab(), p.PageDir.Frames())
	if err != nil {
		fsys.Cache.Put(p, elfInode)
		return fmt.Errorf("exec: new page directory: %w", err)
	}

	highest := uint32(memory.UserBase)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Memsz < prog.Filesz {
			newDir.UnmapRange(memory.UserBase, memory.UserMax)
			newDir.Destroy(cpu)
			fsys.Cache.Put(p, elfInode)
			return fmt.Errorf("exec: segment memsz %d < filesz %d", prog.Memsz, prog.Filesz)
		}
		vaddr := uint32(prog.Vaddr)
		memsz := uint32(prog.Memsz)
		if vaddr < memory.KernelWindowHigh || uint64(vaddr)+prog.Memsz > uint64(memory.UserMax) {
			newDir.UnmapRange(memory.UserBase, memory.UserMax)
			newDir.Destroy(cpu)
			fsys.Cache.Put(p, elfInode)
			return fmt.Errorf("exec: segment [%#x,%#x) overlaps kernel window or stack", vaddr, vaddr+memsz)
		}
		if err := mapSegment(newDir, prog, vaddr, memsz); err != nil {
			newDir.UnmapRange(memory.UserBase, memory.UserMax)
			newDir.Destroy(cpu)
			fsys.Cache.Put(p, elfInode)
			return err
		}
		if end := vaddr + memsz; end > highest {
			highest = end
		}
	}
	fsys.Cache.Put(p, elfInode) // step 4: release the inode once segments are copied in

	heapHigh := (highest + memory.PageSize - 1) &^ (memory.PageSize - 1)
	stackLow := memory.UserMax - memory.PageSize
	if _, err := newDir.MapUser(stackLow, true); err != nil {
		newDir.UnmapRange(memory.UserBase, memory.UserMax)
		newDir.Destroy(cpu)
		return fmt.Errorf("exec: map stack page: %w", err)
	}

	sp, err := pushArgv(newDir, argv)
	if err != nil {
		newDir.UnmapRange(memory.UserBase, memory.UserMax)
		newDir.Destroy(cpu)
		return err
	}

	oldDir := p.PageDir
	p.PageDir = newDir
	p.Name = name
	p.HeapHigh = heapHigh
	p.StackLow = stackLow
	p.Trap = proc.TrapState{Eip: uint32(f.Entry), Esp: sp}

	oldDir.UnmapRange(memory.UserBase, memory.UserMax)
	oldDir.Destroy(cpu)
	return nil
}

func mapSegment(dir *memory.PageTable, prog *elf.Prog, vaddr, memsz uint32) error {
	writable := prog.Flags&elf.PF_W != 0
	lo := vaddr &^ (memory.PageSize - 1)
	hi := vaddr + memsz
	fileEnd := vaddr + uint32(prog.Filesz)

	for v := lo; v < hi; v += memory.PageSize {
		paddr, err := dir.MapUser(v, writable)
		if err != nil {
			return fmt.Errorf("exec: map segment page: %w", err)
		}
		frame := dir.Frames().Frame(paddr)
		for i := range frame {
			frame[i] = 0
		}
		copyLo, copyHi := max32(v, vaddr), min32(v+memory.PageSize, fileEnd)
		if copyHi <= copyLo {
			continue
		}
		buf := make([]byte, copyHi-copyLo)
		if _, err := prog.ReadAt(buf, int64(copyLo-vaddr)); err != nil && err != io.EOF {
			return fmt.Errorf("exec: read segment data: %w", err)
		}
		copy(frame[copyLo-v:], buf)
	}
	return nil
}

// pushArgv lays out argv strings and their pointer array at the top
// of the single mapped stack page, then argv, argc, and a fake return
// address, per spec.md §4.11 step 6.
func pushArgv(dir *memory.PageTable, argv []string) (uint32, error) {
	sp := memory.UserMax

	ptrs := make([]uint32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		sp -= uint32(len(s) + 1)
		if sp < memory.UserMax-memory.PageSize {
			return 0, fmt.Errorf("exec: argv strings overflow the stack page")
		}
		if err := dir.WriteUser(sp, append([]byte(s), 0)); err != nil {
			return 0, err
		}
		ptrs[i] = sp
	}
	sp &^= 3 // word-align before the pointer array

	argvTop := sp - uint32(4*(len(ptrs)+1))
	if argvTop < memory.UserMax-memory.PageSize {
		return 0, fmt.Errorf("exec: argv pointer array overflows the stack page")
	}
	for i, ptr := range ptrs {
		if err := writeWord(dir, argvTop+uint32(4*i), ptr); err != nil {
			return 0, err
		}
	}
	if err := writeWord(dir, argvTop+uint32(4*len(ptrs)), 0); err != nil {
		return 0, err
	}
	sp = argvTop

	sp -= 4
	if err := writeWord(dir, sp, sp+4); err != nil { // argv pointer
		return 0, err
	}
	sp -= 4
	if err := writeWord(dir, sp, uint32(len(ptrs))); err != nil { // argc
		return 0, err
	}
	sp -= 4
	if err := writeWord(dir, sp, 0x0000DEAD); err != nil { // fake return address
		return 0, err
	}
	return sp, nil
}

func writeWord(dir *memory.PageTable, addr, v uint32) error {
	var buf [4]byte
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	return dir.WriteUser(addr, buf[:])
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
