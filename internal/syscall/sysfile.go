package syscall

import (
	"encoding/binary"

	"github.com/huxgo/kernel/internal/fs"
	"github.com/huxgo/kernel/internal/proc"
)

const maxPathLen = 256

// Create's mode argument (spec.md §6's `create` row: "mode ∈ {FILE, DIR}").
const (
	CreateFile = 0
	CreateDir  = 1
)

const statWireSize = 16

func marshalStat(st fs.Stat) [statWireSize]byte {
	var b [statWireSize]byte
	binary.LittleEndian.PutUint32(b[0:4], st.Inumber)
	binary.LittleEndian.PutUint32(b[4:8], uint32(st.Type))
	binary.LittleEndian.PutUint32(b[8:12], st.Size)
	binary.LittleEndian.PutUint32(b[12:16], uint32(st.RefCount))
	return b
}

// sysOpen implements open(path, mode) (spec.md §6).
func (t *Table) sysOpen(p *proc.Process) (uint32, error) {
	path, err := argStr(p, 0, maxPathLen)
	if err != nil {
		return Fail, nil
	}
	mode, err := argInt(p, 1)
	if err != nil {
		return Fail, nil
	}
	cwd, ok := cwdOf(p)
	if !ok {
		return Fail, nil
	}
	fd, err := t.deps.FS.Open(p, t.deps.Files, cwd.Entry, path, int(mode))
	if err != nil {
		return Fail, nil
	}
	return uint32(fd), nil
}

// sysClose implements close(fd) (spec.md §6).
func (t *Table) sysClose(p *proc.Process) (uint32, error) {
	fd, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	if err := t.deps.FS.Close(p, t.deps.Files, int(fd)); err != nil {
		return Fail, nil
	}
	return 0, nil
}

// sysCreate implements create(path, mode) (spec.md §6).
func (t *Table) sysCreate(p *proc.Process) (uint32, error) {
	path, err := argStr(p, 0, maxPathLen)
	if err != nil {
		return Fail, nil
	}
	mode, err := argInt(p, 1)
	if err != nil {
		return Fail, nil
	}
	cwd, ok := cwdOf(p)
	if !ok {
		return Fail, nil
	}
	typ := fs.TypeFile
	if mode == CreateDir {
		typ = fs.TypeDir
	}
	if err := t.deps.FS.Create(p, cwd, path, typ); err != nil {
		return Fail, nil
	}
	return 0, nil
}

// sysRemove implements remove(path) (spec.md §6); fails on a
// non-empty directory per scenario S5.
func (t *Table) sysRemove(p *proc.Process) (uint32, error) {
	path, err := argStr(p, 0, maxPathLen)
	if err != nil {
		return Fail, nil
	}
	cwd, ok := cwdOf(p)
	if !ok {
		return Fail, nil
	}
	if err := t.deps.FS.Remove(p, cwd, path); err != nil {
		return Fail, nil
	}
	return 0, nil
}

// sysRead implements read(fd, buf, len) (spec.md §6), validating buf
// against the caller's mapped region before touching it (invariant
// 12).
func (t *Table) sysRead(p *proc.Process) (uint32, error) {
	fd, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	length, err := argInt(p, 2)
	if err != nil {
		return Fail, nil
	}
	ptr, err := argMem(p, 1, length)
	if err != nil {
		return Fail, nil
	}
	buf := make([]byte, length)
	n, err := t.deps.FS.Read(p, int(fd), buf)
	if err != nil || n < 0 {
		return Fail, nil
	}
	if err := p.PageDir.WriteUser(ptr, buf[:n]); err != nil {
		return Fail, nil
	}
	return uint32(n), nil
}

// sysWrite implements write(fd, buf, len) (spec.md §6).
func (t *Table) sysWrite(p *proc.Process) (uint32, error) {
	fd, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	length, err := argInt(p, 2)
	if err != nil {
		return Fail, nil
	}
	ptr, err := argMem(p, 1, length)
	if err != nil {
		return Fail, nil
	}
	buf := make([]byte, length)
	if err := p.PageDir.ReadUser(ptr, buf); err != nil {
		return Fail, nil
	}
	n, err := t.deps.FS.Write(p, int(fd), buf)
	if err != nil || n < 0 {
		return Fail, nil
	}
	return uint32(n), nil
}

// sysChdir implements chdir(path) (spec.md §6).
func (t *Table) sysChdir(p *proc.Process) (uint32, error) {
	path, err := argStr(p, 0, maxPathLen)
	if err != nil {
		return Fail, nil
	}
	cwd, ok := cwdOf(p)
	if !ok {
		return Fail, nil
	}
	newCwd, err := t.deps.FS.Chdir(p, cwd, path)
	if err != nil {
		return Fail, nil
	}
	p.Cwd = newCwd
	return 0, nil
}

// sysGetcwd implements getcwd(buf, limit) (spec.md §6): limit must be
// at least 2 (room for one byte plus NUL).
func (t *Table) sysGetcwd(p *proc.Process) (uint32, error) {
	limit, err := argInt(p, 1)
	if err != nil || limit < 2 {
		return Fail, nil
	}
	ptr, err := argMem(p, 0, limit)
	if err != nil {
		return Fail, nil
	}
	cwd, ok := cwdOf(p)
	if !ok {
		return Fail, nil
	}
	if uint32(len(cwd.Path)+1) > limit {
		return Fail, nil
	}
	if err := p.PageDir.WriteUser(ptr, append([]byte(cwd.Path), 0)); err != nil {
		return Fail, nil
	}
	return 0, nil
}

// sysFstat implements fstat(fd, stat*) (spec.md §6), writing the
// statWireSize-byte {inumber, type, size, ref_count} record the
// original's stat_t carries (spec.md §3.5's supplement).
func (t *Table) sysFstat(p *proc.Process) (uint32, error) {
	fd, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	ptr, err := argMem(p, 1, statWireSize)
	if err != nil {
		return Fail, nil
	}
	st, err := t.deps.FS.Fstat(p, int(fd))
	if err != nil {
		return Fail, nil
	}
	buf := marshalStat(st)
	if err := p.PageDir.WriteUser(ptr, buf[:]); err != nil {
		return Fail, nil
	}
	return 0, nil
}

// sysSeek implements seek(fd, offset) (spec.md §6).
func (t *Table) sysSeek(p *proc.Process) (uint32, error) {
	fd, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	offset, err := argInt(p, 1)
	if err != nil {
		return Fail, nil
	}
	if err := t.deps.FS.Seek(p, int(fd), int(int32(offset))); err != nil {
		return Fail, nil
	}
	return 0, nil
}
