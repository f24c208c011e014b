package syscall

import (
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/proc"
)

// sysGetpid implements the getpid syscall (spec.md §6): no arguments,
// never fails.
func (t *Table) sysGetpid(p *proc.Process) (uint32, error) {
	return uint32(p.Pid), nil
}

// releaseResources drops every open file reference and the cwd
// reference, since proc.Table.Exit clears the PCB's bookkeeping
// fields directly but cannot see into the filesystem layer to release
// what they point to. Called both by sysExit and, for a process that
// never reaches its own exit call, by RunProcess once Call reports it
// killed.
func (t *Table) releaseResources(p *proc.Process) {
	for fd := range p.Files {
		if p.Files[fd].Open {
			_ = t.deps.FS.Close(p, t.deps.Files, fd)
		}
	}
	if cwd, ok := cwdOf(p); ok {
		t.deps.FS.Cache.Put(p, cwd.Entry)
		p.Cwd = nil
	}
}

// sysExit implements the exit syscall: releases p's resources and
// signals ErrExit so the calling Go code unwinds back to its harness
// instead of continuing to run a terminated process's logic (spec.md
// §6 "does not return").
func (t *Table) sysExit(p *proc.Process) (uint32, error) {
	t.releaseResources(p)
	return 0, ErrExit
}

// sysSleep implements sleep(millis) (spec.md §6). The scheduler is
// driven at a 1ms tick period, so millis maps directly onto ticks.
func (t *Table) sysSleep(p *proc.Process) (uint32, error) {
	millis, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	if err := t.deps.Procs.Sleep(p, int64(millis)); err != nil {
		return propagateKilled(err)
	}
	return 0, nil
}

// sysWait implements wait (spec.md §6): reaped child pid, or Fail if
// there is nothing to reap.
func (t *Table) sysWait(p *proc.Process) (uint32, error) {
	pid, err := t.deps.Procs.Wait(p)
	if err != nil {
		return propagateKilled(err)
	}
	return uint32(pid), nil
}

// sysKill implements kill(pid) (spec.md §6).
func (t *Table) sysKill(p *proc.Process) (uint32, error) {
	pid, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	if err := t.deps.Procs.Kill(int(pid)); err != nil {
		return Fail, nil
	}
	return 0, nil
}

// sysShutdown implements shutdown (spec.md §6): signals the kernel's
// cancellation hook, if wired, and then — like exit — never returns
// to the calling process.
func (t *Table) sysShutdown(p *proc.Process) (uint32, error) {
	if t.deps.Shutdown != nil {
		t.deps.Shutdown()
	}
	return 0, ErrShutdown
}

// sysSetheap implements setheap(new_top) (spec.md §6): grows or
// shrinks the heap region, mapping or unmapping whole pages to match,
// rolling back on partial allocation failure.
func (t *Table) sysSetheap(p *proc.Process) (uint32, error) {
	newTop, err := argInt(p, 0)
	if err != nil {
		return Fail, nil
	}
	as := memory.AddressSpace{HeapHigh: p.HeapHigh, StackLow: p.StackLow}
	if !as.ExtendHeap(newTop) {
		return Fail, nil
	}

	switch {
	case newTop > p.HeapHigh:
		lo := (p.HeapHigh + memory.PageSize - 1) &^ (memory.PageSize - 1)
		for v := lo; v < newTop; v += memory.PageSize {
			if _, err := p.PageDir.MapUser(v, true); err != nil {
				p.PageDir.UnmapRange(lo, v)
				return Fail, nil
			}
		}
	case newTop < p.HeapHigh:
		lo := (newTop + memory.PageSize - 1) &^ (memory.PageSize - 1)
		p.PageDir.UnmapRange(lo, p.HeapHigh)
	}

	p.HeapHigh = newTop
	return 0, nil
}

// sysUptime implements uptime (spec.md §6): ms since boot.
func (t *Table) sysUptime(p *proc.Process) (uint32, error) {
	return uint32(t.deps.Procs.Now()), nil
}
