package syscall

import (
	"errors"

	"github.com/huxgo/kernel/internal/proc"
)

// RunProcess adapts a process body written directly against this
// Table's Call/Fork API into a proc.ProcFunc. Since this module has no
// instruction interpreter, "user code" is Go code that drives
// syscalls explicitly and is expected to return once it calls exit,
// shutdown, or a successful exec, or once it observes proc.ErrKilled;
// RunProcess is the seam that turns any of those into the int exit
// code proc.Table.Exit wants. A killed process never reaches its own
// exit call, so this is also where its file/cwd references are
// released — sysExit does the same cleanup for the ordinary path.
func (t *Table) RunProcess(body func(p *proc.Process) error) proc.ProcFunc {
	return func(p *proc.Process) int {
		err := body(p)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, ErrExit), errors.Is(err, ErrShutdown):
			return 0
		case errors.Is(err, proc.ErrKilled):
			t.releaseResources(p)
			return -1
		default:
			t.releaseResources(p)
			return -1
		}
	}
}
