package syncx

import (
	"sync/atomic"
	"time"
)

// Spinlock is mutual exclusion built directly on a CPU's interrupt
// stack (spec.md §4.1). On the single CPU this kernel targets,
// Acquire always succeeds immediately after CliPush — the atomic
// test-and-set is kept anyway so the same code would be correct if
// ported to SMP.
type Spinlock struct {
	Name string

	locked int32

	// HoldLogger, if set, is invoked with the hold duration every time
	// Release runs. It mirrors the teacher's "debug_mutex" flag that
	// logs mutex hold times; nothing in this module sets it, and
	// cfg.DebugConfig.LogMutex is not connected to it.
	HoldLogger func(name string, held time.Duration)

	acquiredAt time.Time
}

// NewSpinlock constructs a named, unlocked spinlock.
func NewSpinlock(name string) *Spinlock {
	return &Spinlock{Name: name}
}

// Acquire disables interrupts on cpu and spins until the lock is
// taken. A process must not yield while holding a spinlock; callers
// that need to block belong on a ParkLock instead.
func (s *Spinlock) Acquire(cpu *CPU) {
	cpu.CliPush()
	for !atomic.CompareAndSwapInt32(&s.locked, 0, 1) {
		// Busy-wait; on a single CPU this loop body never actually
		// executes because nothing else can be running concurrently
		// without having gone through CliPush itself first, but the
		// loop is kept so the same lock is SMP-correct.
	}
	s.acquiredAt = time.Now()
}

// Release clears the lock and re-enables interrupts per the CliPop
// contract.
func (s *Spinlock) Release(cpu *CPU) {
	if s.HoldLogger != nil && !s.acquiredAt.IsZero() {
		s.HoldLogger(s.Name, time.Since(s.acquiredAt))
	}
	atomic.StoreInt32(&s.locked, 0)
	cpu.CliPop()
}

// Holding reports whether the lock currently appears held. Useful
// only for assertions/diagnostics, never for correctness decisions.
func (s *Spinlock) Holding() bool {
	return atomic.LoadInt32(&s.locked) == 1
}
