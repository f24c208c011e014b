package syscall

import (
	"github.com/huxgo/kernel/internal/exec"
	"github.com/huxgo/kernel/internal/proc"
)

// sysExec implements exec(path, argv) (spec.md §6, §4.11). argv is an
// in-memory NULL-terminated array of pointers, capped at
// exec.MaxArgv entries; each pointer is read and decoded with the
// same sysarg_get_str discipline as any other string argument.
func (t *Table) sysExec(p *proc.Process) (uint32, error) {
	path, err := argStr(p, 0, maxPathLen)
	if err != nil {
		return Fail, nil
	}
	argvPtr, err := argInt(p, 1)
	if err != nil {
		return Fail, nil
	}

	var argv []string
	for i := 0; i < exec.MaxArgv; i++ {
		var word [4]byte
		if err := p.PageDir.ReadUser(argvPtr+uint32(4*i), word[:]); err != nil {
			return Fail, nil
		}
		ptr := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
		if ptr == 0 {
			break
		}
		if i == exec.MaxArgv-1 {
			return Fail, nil // unterminated past the cap
		}
		s, err := p.PageDir.ReadCString(ptr, maxPathLen)
		if err != nil {
			return Fail, nil
		}
		argv = append(argv, s)
	}

	cwd, ok := cwdOf(p)
	if !ok {
		return Fail, nil
	}
	elfInode, err := t.deps.FS.Resolve(p, cwd.Entry, path)
	if err != nil {
		return Fail, nil
	}

	if err := exec.Load(t.deps.CPU, p, t.deps.FS, elfInode, path, argv); err != nil {
		return Fail, nil
	}
	// Exec "does not return" on success in spec.md's model of a real
	// trap-return; since this module has no instruction interpreter to
	// actually jump to f.Entry, the calling Go code must itself treat a
	// successful exec as the end of its own execution.
	return 0, nil
}
