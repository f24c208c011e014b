// Package parklock implements a blocking lock that parks the calling
// process instead of spinning, per spec.md §4.7. It lives above
// internal/proc (rather than inside internal/syncx, which only
// layers IntState and the non-blocking Spinlock) because acquiring
// one must move the caller to BLOCKED in the process table — doing
// that from syncx would make syncx depend on proc, which proc's own
// Spinlock already depends on the other way around.
package parklock

import (
	"fmt"

	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
)

// Lock is a park lock: { locked, holder_pid, internal spinlock, name }
// exactly as spec.md §4.7 describes.
type Lock struct {
	name     string
	internal *syncx.Spinlock
	locked   bool
	holder   int
	cpu      *syncx.CPU
	table    *proc.Table
	waiters  []*proc.Process
}

// New creates a named, initially-unlocked park lock attached to
// table so Acquire can block the calling process in it.
func New(cpu *syncx.CPU, table *proc.Table, name string) *Lock {
	return &Lock{
		name:     name,
		internal: syncx.NewSpinlock(name + ".internal"),
		cpu:      cpu,
		table:    table,
	}
}

// Acquire blocks p until the lock is free, then takes it (spec.md
// §4.7 "Acquire"). The acquire idiom is resource-internal-lock then
// ptable-lock, matching spec.md §5's required lock ordering: this
// package's Lock.internal plays the resource's internal lock, and
// proc.Table's own ptable spinlock (entered via BlockOnLock) is taken
// after it is released here.
func (l *Lock) Acquire(cpu *syncx.CPU, p *proc.Process) error {
	for {
		l.internal.Acquire(cpu)
		if !l.locked {
			l.locked = true
			if p != nil {
				l.holder = p.Pid
			}
			l.internal.Release(cpu)
			return nil
		}
		if p == nil {
			l.internal.Release(cpu)
			return fmt.Errorf("parklock: %s is held; cannot block without a process context", l.name)
		}
		l.waiters = append(l.waiters, p)
		l.internal.Release(cpu)

		if err := l.table.BlockOnLock(p, l); err != nil {
			return err
		}
	}
}

// Release clears ownership and wakes every waiter; the scheduler's
// next selection decides which one actually re-acquires (spec.md §4.7
// "Release", §5 "wakeups are not FIFO").
func (l *Lock) Release(cpu *syncx.CPU, p *proc.Process) {
	l.internal.Acquire(cpu)
	l.locked = false
	l.holder = 0
	waiters := l.waiters
	l.waiters = nil
	l.internal.Release(cpu)

	l.table.WakeWaiters(waiters)
}

// Holding reports whether p currently holds the lock.
func (l *Lock) Holding(p *proc.Process) bool {
	if p == nil {
		return false
	}
	l.internal.Acquire(l.cpu)
	defer l.internal.Release(l.cpu)
	return l.locked && l.holder == p.Pid
}

// Name returns the lock's diagnostic name.
func (l *Lock) Name() string { return l.name }
