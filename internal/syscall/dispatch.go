package syscall

import (
	"errors"
	"fmt"

	"github.com/huxgo/kernel/internal/fs"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
	"github.com/huxgo/kernel/internal/term"
)

// Fail is the distinguished "operation failed" return value spec.md
// §6's surface table spells as "−1": every ordinary syscall failure
// (bad fd, not found, fault, wrong mode) is reported this way without
// propagating a Go error, so the calling process keeps running.
const Fail = ^uint32(0)

// ErrExit and ErrShutdown are control-flow signals, not ordinary
// failures: a handler returns one of these (alongside proc.ErrKilled,
// which Call detects on its own) when the calling Go code must stop
// running rather than receive a return value, standing in for the
// real kernel's "does not return" exit/shutdown syscalls.
var (
	ErrExit     = fmt.Errorf("syscall: process called exit")
	ErrShutdown = fmt.Errorf("syscall: kernel shutdown requested")
)

// Deps bundles every kernel subsystem a syscall handler needs.
type Deps struct {
	CPU      *syncx.CPU
	Procs    *proc.Table
	FS       *fs.FileSystem
	Files    *fs.FTable
	Keyboard term.KeyboardSource
	Term     term.Sink
	Shutdown func()
}

type handlerFunc func(t *Table, p *proc.Process) (uint32, error)

// Table is the fixed, number-indexed syscall dispatch table of
// spec.md §4.10/§6 ("the dispatch table is a fixed array indexed by
// syscall number, not a map"). Fork has no working handler in the
// array (its slot holds sysForkUnavailable, which always fails with
// an error): unlike every other syscall, it needs a Go continuation for
// the child process that the trap frame has no way to carry, so it is
// exposed as Table.Fork instead (the same reasoning already applied
// to proc.Table.Fork's ChildFunc parameter).
type Table struct {
	deps     Deps
	handlers [numSyscalls]handlerFunc
}

// NewTable wires every syscall number to its handler.
func NewTable(deps Deps) *Table {
	t := &Table{deps: deps}
	t.handlers[SysGetpid] = (*Table).sysGetpid
	t.handlers[SysFork] = (*Table).sysForkUnavailable
	t.handlers[SysExit] = (*Table).sysExit
	t.handlers[SysSleep] = (*Table).sysSleep
	t.handlers[SysWait] = (*Table).sysWait
	t.handlers[SysKill] = (*Table).sysKill
	t.handlers[SysShutdown] = (*Table).sysShutdown
	t.handlers[SysSetheap] = (*Table).sysSetheap
	t.handlers[SysOpen] = (*Table).sysOpen
	t.handlers[SysClose] = (*Table).sysClose
	t.handlers[SysCreate] = (*Table).sysCreate
	t.handlers[SysRemove] = (*Table).sysRemove
	t.handlers[SysRead] = (*Table).sysRead
	t.handlers[SysWrite] = (*Table).sysWrite
	t.handlers[SysChdir] = (*Table).sysChdir
	t.handlers[SysGetcwd] = (*Table).sysGetcwd
	t.handlers[SysExec] = (*Table).sysExec
	t.handlers[SysFstat] = (*Table).sysFstat
	t.handlers[SysSeek] = (*Table).sysSeek
	t.handlers[SysUptime] = (*Table).sysUptime
	t.handlers[SysKbdstr] = (*Table).sysKbdstr
	t.handlers[SysTprint] = (*Table).sysTprint
	return t
}

// Call dispatches syscall num for p and reports its eax result. The
// only errors Call itself can return are proc.ErrKilled (checked both
// before and after the handler runs, per spec.md §3.4's supplement
// that the killed flag is also checked at syscall return, not just
// the timer tick), a handler's own ErrExit/ErrShutdown signal, and the
// error the SysFork slot always returns (fork goes through Fork).
// Every other failure is encoded in the returned value as Fail.
func (t *Table) Call(p *proc.Process, num int) (uint32, error) {
	if p.Killed {
		return 0, proc.ErrKilled
	}
	if num < 0 || num >= numSyscalls || t.handlers[num] == nil {
		return Fail, nil
	}
	eax, err := t.handlers[num](t, p)
	if err != nil {
		return eax, err
	}
	if p.Killed {
		return 0, proc.ErrKilled
	}
	return eax, nil
}

// Fork builds a child process via proc.Table.Fork, translating its
// result into spec.md §6's "child pid / 0 / −1" contract. Unlike
// every syscall in the numbered table, this is called directly by the
// harness driving p rather than through Call, since only the caller
// knows what Go code the child should run.
func (t *Table) Fork(p *proc.Process, childEntry proc.ChildFunc) (uint32, error) {
	if p.Killed {
		return 0, proc.ErrKilled
	}
	timeslice, err := argInt(p, 0)
	if err != nil {
		timeslice = 1
	}
	child, err := t.deps.Procs.Fork(p, int(timeslice), childEntry)
	if err != nil {
		return Fail, nil
	}

	// proc.Table.Fork copies the parent's Cwd pointer and Files array
	// directly (it cannot see into internal/fs to bump ref_counts
	// itself); spec.md §4.6 "fork" requires every inherited file and
	// cwd reference to be bumped, done here instead.
	if cwd, ok := cwdOf(child); ok {
		t.deps.FS.Cache.Ref(cwd.Entry)
	}
	for i := range child.Files {
		if !child.Files[i].Open {
			continue
		}
		if of, ok := child.Files[i].Handle.(*fs.OpenFile); ok {
			t.deps.Files.Ref(of)
		}
	}
	return uint32(child.Pid), nil
}

func (t *Table) sysForkUnavailable(p *proc.Process) (uint32, error) {
	return Fail, fmt.Errorf("syscall: fork must be invoked via Table.Fork directly")
}

// cwdOf recovers p's *fs.Cwd, type-asserted back out of the opaque
// interface{} field proc.Process carries to avoid an fs<->proc import
// cycle.
func cwdOf(p *proc.Process) (*fs.Cwd, bool) {
	c, ok := p.Cwd.(*fs.Cwd)
	return c, ok && c != nil
}

func propagateKilled(err error) (uint32, error) {
	if errors.Is(err, proc.ErrKilled) {
		return 0, err
	}
	return Fail, nil
}
