package syscall

import "github.com/huxgo/kernel/internal/proc"

// sysKbdstr implements kbdstr(buf, len) (spec.md §6): reads one line
// from the keyboard source, blocking the process ON_KBDIN for the
// duration (spec.md §5's keyboard-line-read suspension point).
func (t *Table) sysKbdstr(p *proc.Process) (uint32, error) {
	length, err := argInt(p, 1)
	if err != nil {
		return Fail, nil
	}
	ptr, err := argMem(p, 0, length)
	if err != nil {
		return Fail, nil
	}

	line, err := t.deps.Procs.BlockOnKbd(p, t.deps.Keyboard.ReadLine)
	if err != nil {
		return propagateKilled(err)
	}

	n := len(line)
	if uint32(n) > length {
		n = int(length)
	}
	if err := p.PageDir.WriteUser(ptr, []byte(line[:n])); err != nil {
		return Fail, nil
	}
	return uint32(n), nil
}

// sysTprint implements tprint(color, str) (spec.md §6).
func (t *Table) sysTprint(p *proc.Process) (uint32, error) {
	color, err := argInt(p, 0)
	if err != nil || color > 15 {
		return Fail, nil
	}
	str, err := argStr(p, 1, maxPathLen)
	if err != nil {
		return Fail, nil
	}
	if !t.deps.Term.Print(int(color), str) {
		return Fail, nil
	}
	return 0, nil
}
