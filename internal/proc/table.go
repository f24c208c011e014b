package proc

import (
	"fmt"

	"github.com/huxgo/kernel/internal/syncx"
)

// Table is the process table (ptable): one spinlock serializes every
// field of every Process, exactly as spec.md §5 requires.
type Table struct {
	cpu     *syncx.CPU
	lock    *syncx.Spinlock
	tickLk  *syncx.Spinlock
	procs   []*Process
	nextPid int
	tick    int64
	running *Process
	lastIdx int
}

// NewTable builds an empty process table sized for up to maxProcs
// simultaneous processes.
func NewTable(cpu *syncx.CPU, maxProcs int) *Table {
	t := &Table{
		cpu:    cpu,
		lock:   syncx.NewSpinlock("ptable"),
		tickLk: syncx.NewSpinlock("ptable.tick"),
		procs:  make([]*Process, maxProcs),
	}
	for i := range t.procs {
		t.procs[i] = &Process{State: Unused, table: t}
	}
	return t
}

// Alloc scans for an UNUSED slot, assigns the next monotonically
// increasing pid, and starts the process's goroutine parked on its
// turn channel until the scheduler first dispatches it (spec.md
// §4.6 "Allocation").
func (t *Table) Alloc(name string, run ProcFunc) (*Process, error) {
	t.lock.Acquire(t.cpu)
	defer t.lock.Release(t.cpu)

	var p *Process
	for _, cand := range t.procs {
		if cand.State == Unused {
			p = cand
			break
		}
	}
	if p == nil {
		return nil, fmt.Errorf("proc: process table full")
	}

	t.nextPid++
	*p = Process{
		Name:      name,
		Pid:       t.nextPid,
		State:     Initial,
		table:     t,
		run:       run,
		turn:      make(chan struct{}),
		yielded:   make(chan struct{}),
		TimeSlice: 1,
	}
	go t.runLoop(p)
	return p, nil
}

func (t *Table) runLoop(p *Process) {
	<-p.turn
	code := 0
	if p.run != nil {
		code = p.run(p)
	}
	t.Exit(p, code)
	// Unblock whichever Dispatch call is waiting on this process so it
	// observes the Terminated state and moves on to the next one.
	p.yielded <- struct{}{}
}

// Tick advances the global tick, wakes every ON_SLEEP process whose
// TargetTick has arrived, and requests preemption of whatever process
// is currently running, standing in for the timer interrupt handler
// (spec.md §4.6 "Timer tick").
func (t *Table) Tick() int64 {
	t.tickLk.Acquire(t.cpu)
	t.tick++
	now := t.tick
	t.tickLk.Release(t.cpu)

	t.lock.Acquire(t.cpu)
	for _, p := range t.procs {
		if p.State == Blocked && p.BlockOn == OnSleep && p.TargetTick <= now {
			p.State = Ready
			p.BlockOn = Nothing
		}
	}
	if t.running != nil {
		t.running.preempt = true
	}
	t.lock.Release(t.cpu)
	return now
}

func (t *Table) now() int64 {
	t.tickLk.Acquire(t.cpu)
	defer t.tickLk.Release(t.cpu)
	return t.tick
}

// Now reports the current tick count, usable directly as milliseconds
// since boot when the scheduler is driven at a 1ms tick period (the
// uptime syscall of spec.md §6).
func (t *Table) Now() int64 {
	return t.now()
}

// Yield is called by a process's own goroutine at every suspension
// point (spec.md §5): sleep, wait, park-lock acquire, disk I/O, and
// the end of each cooperative step. If the caller already moved
// State away from Running (a true block), the scheduler picks a new
// process next; otherwise this call merely counts against the
// process's timeslice, matching "stay scheduled on the same process
// for up to timeslice ticks" (spec.md §4.6 "Scheduler loop").
func (t *Table) Yield(p *Process) error {
	t.lock.Acquire(t.cpu)
	if p.State == Running {
		p.sliceRemaining--
		if p.sliceRemaining <= 0 || p.preempt {
			p.State = Ready
		}
		p.preempt = false
	}
	t.lock.Release(t.cpu)

	p.yielded <- struct{}{}
	<-p.turn

	if p.Killed {
		return ErrKilled
	}
	return nil
}

// pickReady scans round-robin starting just after the last dispatch.
func (t *Table) pickReady() (*Process, int) {
	n := len(t.procs)
	for i := 0; i < n; i++ {
		idx := (t.lastIdx + 1 + i) % n
		if t.procs[idx].State == Ready {
			return t.procs[idx], idx
		}
	}
	return nil, t.lastIdx
}

// Dispatch runs exactly one scheduling decision: pick a READY
// process (if any) and run it until it blocks, is terminated, or
// exhausts its timeslice, possibly re-dispatching the same process
// several times in a row per spec.md's "stays scheduled" rule. It
// returns false if there was no READY process to run.
func (t *Table) Dispatch() bool {
	t.lock.Acquire(t.cpu)
	p, idx := t.pickReady()
	if p == nil {
		t.lock.Release(t.cpu)
		return false
	}
	t.lastIdx = idx
	p.State = Running
	p.sliceRemaining = p.TimeSlice
	if p.sliceRemaining <= 0 {
		p.sliceRemaining = 1
	}
	t.running = p
	t.lock.Release(t.cpu)

	for {
		p.turn <- struct{}{}
		<-p.yielded

		t.lock.Acquire(t.cpu)
		stillRunning := p.State == Running
		t.lock.Release(t.cpu)
		if !stillRunning {
			break
		}
	}

	t.lock.Acquire(t.cpu)
	if t.running == p {
		t.running = nil
	}
	t.lock.Release(t.cpu)
	return true
}

// Running reports the process currently holding the CPU, or nil.
func (t *Table) Running() *Process {
	t.lock.Acquire(t.cpu)
	defer t.lock.Release(t.cpu)
	return t.running
}

// Stats counts live processes by state, keyed by State.String(), for
// feeding metrics.Metrics.ObserveProcStats. Unused slots are omitted.
func (t *Table) Stats() map[string]int {
	t.lock.Acquire(t.cpu)
	defer t.lock.Release(t.cpu)

	counts := make(map[string]int)
	for _, p := range t.procs {
		if p.State == Unused {
			continue
		}
		counts[p.State.String()]++
	}
	return counts
}

// Lookup finds a live process by pid.
func (t *Table) Lookup(pid int) *Process {
	t.lock.Acquire(t.cpu)
	defer t.lock.Release(t.cpu)
	for _, p := range t.procs {
		if p.State != Unused && p.Pid == pid {
			return p
		}
	}
	return nil
}

// Kill sets the target's Killed flag and, if it is blocked, unblocks
// it so the flag can be observed (spec.md §4.6 "kill").
func (t *Table) Kill(pid int) error {
	t.lock.Acquire(t.cpu)
	defer t.lock.Release(t.cpu)
	for _, p := range t.procs {
		if p.State == Unused || p.Pid != pid {
			continue
		}
		p.Killed = true
		if p.State == Blocked {
			p.State = Ready
			p.BlockOn = Nothing
		}
		return nil
	}
	return fmt.Errorf("proc: no such pid %d", pid)
}
