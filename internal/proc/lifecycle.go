package proc

import (
	"fmt"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/syncx"
)

// Sleep blocks p until Tick observes TargetTick has arrived (spec.md
// §4.6 "sleep").
func (t *Table) Sleep(p *Process, ticks int64) error {
	t.lock.Acquire(t.cpu)
	p.TargetTick = t.tick + ticks
	p.State = Blocked
	p.BlockOn = OnSleep
	t.lock.Release(t.cpu)
	return t.Yield(p)
}

// BlockOnDisk submits req to q and blocks p with reason ON_IDEDISK
// until the device completes it (spec.md §4.5 step 3, §4.6 BlockOn).
// The actual FIFO/wake mechanics live in internal/block; this just
// keeps the PCB's visible bookkeeping faithful while the goroutine
// really blocks on req.Wait() inside q.Submit.
func (t *Table) BlockOnDisk(cpu *syncx.CPU, p *Process, q *block.Queue, req *block.Request) error {
	t.lock.Acquire(t.cpu)
	p.State = Blocked
	p.BlockOn = OnIDEDisk
	p.WaitReq = req
	t.lock.Release(t.cpu)

	err := q.Submit(cpu, req)

	t.lock.Acquire(t.cpu)
	p.State = Running
	p.BlockOn = Nothing
	p.WaitReq = nil
	t.lock.Release(t.cpu)

	if yErr := t.Yield(p); yErr != nil {
		return yErr
	}
	return err
}

// BlockOnKbd marks p BLOCKED/ON_KBDIN for the duration of a keyboard
// line read, matching spec.md §5's "keyboard line read" suspension
// point the same way BlockOnDisk mirrors disk I/O: read is called
// with no ptable lock held so a real blocking implementation is free
// to take as long as it needs.
func (t *Table) BlockOnKbd(p *Process, read func() (string, error)) (string, error) {
	t.lock.Acquire(t.cpu)
	p.State = Blocked
	p.BlockOn = OnKbdIn
	t.lock.Release(t.cpu)

	line, err := read()

	t.lock.Acquire(t.cpu)
	p.State = Running
	p.BlockOn = Nothing
	t.lock.Release(t.cpu)

	if yErr := t.Yield(p); yErr != nil {
		return "", yErr
	}
	return line, err
}

// BlockOnLock moves p to BLOCKED/ON_LOCK with WaitLock set to lock
// (opaque, see Process.WaitLock), matching the acquire idiom in
// spec.md §5: the resource's internal lock is released by the caller
// before this is invoked, then the ptable lock (taken here) is used
// to record the block and yield.
func (t *Table) BlockOnLock(p *Process, lock interface{}) error {
	t.lock.Acquire(t.cpu)
	p.State = Blocked
	p.BlockOn = OnLock
	p.WaitLock = lock
	t.lock.Release(t.cpu)
	return t.Yield(p)
}

// WakeWaiters moves every process in waiters back to READY, used by
// a park lock's Release to wake all waiters at once (spec.md §4.7,
// §5 "wakeups are not FIFO").
func (t *Table) WakeWaiters(waiters []*Process) {
	t.lock.Acquire(t.cpu)
	defer t.lock.Release(t.cpu)
	for _, p := range waiters {
		if p.State == Blocked && p.BlockOn == OnLock {
			p.State = Ready
			p.BlockOn = Nothing
			p.WaitLock = nil
		}
	}
}

// Wait reclaims one TERMINATED child, or blocks ON_WAIT if any child
// is still alive, or fails if there are none (spec.md §4.6 "wait").
func (t *Table) Wait(p *Process) (int, error) {
	for {
		t.lock.Acquire(t.cpu)
		childCount := 0
		for _, c := range t.procs {
			if c.State == Unused || c.Parent != p {
				continue
			}
			childCount++
			if c.State == Terminated {
				pid := c.Pid
				if c.PageDir != nil {
					c.PageDir.UnmapRange(memory.UserBase, memory.UserMax)
					c.PageDir.Destroy(t.cpu)
				}
				*c = Process{State: Unused, table: t}
				t.lock.Release(t.cpu)
				return pid, nil
			}
		}
		if p.Killed {
			t.lock.Release(t.cpu)
			return -1, ErrKilled
		}
		if childCount == 0 {
			t.lock.Release(t.cpu)
			return -1, fmt.Errorf("proc: no children to reap")
		}
		p.State = Blocked
		p.BlockOn = OnWait
		t.lock.Release(t.cpu)
		if err := t.Yield(p); err != nil {
			return -1, err
		}
	}
}

// Exit releases p's resources, reparents its children to init,
// wakes a waiting parent, and marks p TERMINATED (spec.md §4.6
// "exit"). It never returns to p's own goroutine — runLoop calls it
// once p.run returns and then the goroutine exits naturally.
func (t *Table) Exit(p *Process, code int) {
	t.lock.Acquire(t.cpu)
	for i := range p.Files {
		p.Files[i] = FileSlot{}
	}
	p.Cwd = nil

	var initProc *Process
	for _, c := range t.procs {
		if c.State != Unused && c.Parent == nil && c != p {
			initProc = c
			break
		}
	}
	for _, c := range t.procs {
		if c.State == Unused || c.Parent != p {
			continue
		}
		c.Parent = initProc
		if c.State == Terminated && initProc != nil && initProc.State == Blocked && initProc.BlockOn == OnWait {
			initProc.State = Ready
			initProc.BlockOn = Nothing
		}
	}

	if p.Parent != nil && p.Parent.State == Blocked && p.Parent.BlockOn == OnWait {
		p.Parent.State = Ready
		p.Parent.BlockOn = Nothing
	}

	p.ExitCode = code
	p.State = Terminated
	t.lock.Release(t.cpu)
}
