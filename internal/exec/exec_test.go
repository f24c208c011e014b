package exec

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/blockio"
	"github.com/huxgo/kernel/internal/fs"
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/require"
)

type memDisk struct {
	mu   sync.Mutex
	data []byte
}

func newMemDisk(blocks int) *memDisk { return &memDisk{data: make([]byte, blocks*block.Size)} }

func (m *memDisk) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(p, m.data[off:]), nil
}

func (m *memDisk) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(m.data[off:], p), nil
}

func newTestFS(t *testing.T) (*fs.FileSystem, *proc.Table, *syncx.CPU) {
	t.Helper()
	cpu := &syncx.CPU{}
	tbl := proc.NewTable(cpu, 4)
	dev := block.NewFakeDevice(newMemDisk(fs.TotalBlocks), 100000)
	q := block.NewQueue(dev)
	io := blockio.New(cpu, q, tbl)
	require.NoError(t, fs.Format(cpu, io))
	filesys, err := fs.Boot(cpu, io, tbl, 8)
	require.NoError(t, err)
	return filesys, tbl, cpu
}

// buildELF32 assembles a minimal, valid 32-bit little-endian ELF image
// with exactly one PT_LOAD segment: the ELF header and single program
// header immediately followed by the segment's file contents, matching
// the tiny test binaries real toolchains produce for a single
// text+data segment.
func buildELF32(entry, vaddr uint32, fileData []byte, memsz uint32, writable bool) []byte {
	const ehsize = 52
	const phsize = 32
	const dataOff = ehsize + phsize

	buf := make([]byte, dataOff+len(fileData))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2)          // e_type = ET_EXEC
	le.PutUint16(buf[18:20], 3)          // e_machine = EM_386
	le.PutUint32(buf[20:24], 1)          // e_version
	le.PutUint32(buf[24:28], entry)      // e_entry
	le.PutUint32(buf[28:32], ehsize)     // e_phoff
	le.PutUint32(buf[32:36], 0)          // e_shoff
	le.PutUint32(buf[36:40], 0)          // e_flags
	le.PutUint16(buf[40:42], ehsize)     // e_ehsize
	le.PutUint16(buf[42:44], phsize)     // e_phentsize
	le.PutUint16(buf[44:46], 1)          // e_phnum
	le.PutUint16(buf[46:48], 0)          // e_shentsize
	le.PutUint16(buf[48:50], 0)          // e_shnum
	le.PutUint16(buf[50:52], 0)          // e_shstrndx

	ph := buf[ehsize : ehsize+phsize]
	flags := uint32(4) // PF_R
	if writable {
		flags |= 2 // PF_W
	}
	le.PutUint32(ph[0:4], 1)          // p_type = PT_LOAD
	le.PutUint32(ph[4:8], dataOff)    // p_offset
	le.PutUint32(ph[8:12], vaddr)     // p_vaddr
	le.PutUint32(ph[12:16], vaddr)    // p_paddr
	le.PutUint32(ph[16:20], uint32(len(fileData))) // p_filesz
	le.PutUint32(ph[20:24], memsz)    // p_memsz
	le.PutUint32(ph[24:28], flags)    // p_flags
	le.PutUint32(ph[28:32], memory.PageSize) // p_align

	copy(buf[dataOff:], fileData)
	return buf
}

// newTestProcess allocates a process with an empty but real address
// space: exec always replaces it, but Load needs the slab/frames
// backing p.PageDir to build the new one from.
func newTestProcess(t *testing.T, tbl *proc.Table, cpu *syncx.CPU) *proc.Process {
	t.Helper()
	p, err := tbl.Alloc("execee", nil)
	require.NoError(t, err)
	slab := memory.NewPageSlab(16)
	frames, err := memory.NewFrameAlloc(cpu, 64, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = frames.Close() })
	dir, err := memory.NewPageTable(cpu, slab, frames)
	require.NoError(t, err)
	p.PageDir = dir
	p.HeapHigh = memory.UserBase
	p.StackLow = memory.UserMax - memory.PageSize
	return p
}

// writeELFInode creates a file at path under root holding the given
// ELF bytes and returns its resolved cache entry, ready for Load.
func writeELFInode(t *testing.T, fsys *fs.FileSystem, p *proc.Process, path string, elfBytes []byte) *fs.CacheEntry {
	t.Helper()
	root, err := fsys.Cache.Get(p, fs.RootInumber)
	require.NoError(t, err)
	defer fsys.Cache.Put(p, root)

	e, err := fsys.AllocInode(p, fs.TypeFile)
	require.NoError(t, err)
	defer fsys.Cache.Put(p, e)
	require.NoError(t, fsys.Link(p, root, path, e.Inumber))

	_, err = fsys.WriteInode(p, e, 0, elfBytes)
	require.NoError(t, err)

	entry, err := fsys.Resolve(p, root, path)
	require.NoError(t, err)
	return entry
}

func TestLoadMapsSegmentAndSetsEntry(t *testing.T) {
	fsys, tbl, cpu := newTestFS(t)
	p := newTestProcess(t, tbl, cpu)

	text := []byte("\x90\x90\x90\x90hello, world")
	elfBytes := buildELF32(memory.UserBase, memory.UserBase, text, uint32(len(text))+memory.PageSize, true)
	entry := writeELFInode(t, fsys, p, "prog", elfBytes)

	require.NoError(t, Load(cpu, p, fsys, entry, "prog", []string{"prog", "arg1"}))

	require.Equal(t, "prog", p.Name)
	require.Equal(t, uint32(memory.UserBase), p.Trap.Eip)
	require.True(t, p.HeapHigh > memory.UserBase)
	require.Equal(t, memory.UserMax-memory.PageSize, p.StackLow)

	got := make([]byte, len(text))
	require.NoError(t, p.PageDir.ReadUser(memory.UserBase, got))
	require.Equal(t, text, got)
}

func TestLoadRejectsSegmentOverlappingKernelWindow(t *testing.T) {
	fsys, tbl, cpu := newTestFS(t)
	p := newTestProcess(t, tbl, cpu)

	elfBytes := buildELF32(0, memory.KernelWindowHigh-memory.PageSize, []byte("x"), memory.PageSize, true)
	entry := writeELFInode(t, fsys, p, "bad", elfBytes)

	oldDir := p.PageDir
	err := Load(cpu, p, fsys, entry, "bad", nil)
	require.Error(t, err)
	require.Same(t, oldDir, p.PageDir, "a failed Load must leave the caller's address space untouched")
}

func TestLoadRejectsTooManyArgv(t *testing.T) {
	fsys, tbl, cpu := newTestFS(t)
	p := newTestProcess(t, tbl, cpu)

	elfBytes := buildELF32(memory.UserBase, memory.UserBase, []byte("x"), memory.PageSize, true)
	entry := writeELFInode(t, fsys, p, "prog", elfBytes)

	argv := make([]string, MaxArgv+1)
	for i := range argv {
		argv[i] = "a"
	}
	require.Error(t, Load(cpu, p, fsys, entry, "prog", argv))
}

func TestLoadPushesArgvReadableFromNewStack(t *testing.T) {
	fsys, tbl, cpu := newTestFS(t)
	p := newTestProcess(t, tbl, cpu)

	elfBytes := buildELF32(memory.UserBase, memory.UserBase, []byte("x"), memory.PageSize, true)
	entry := writeELFInode(t, fsys, p, "prog", elfBytes)

	require.NoError(t, Load(cpu, p, fsys, entry, "prog", []string{"prog", "hi"}))

	var argcBuf [4]byte
	require.NoError(t, p.PageDir.ReadUser(p.Trap.Esp+4, argcBuf[:]))
	argc := binary.LittleEndian.Uint32(argcBuf[:])
	require.Equal(t, uint32(2), argc)
}
