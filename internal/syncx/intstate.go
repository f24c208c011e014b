// Package syncx implements the kernel's low-level synchronization
// primitives: a nestable interrupt-disable stack and spinlocks built on
// top of it. Blocking park locks, which integrate with the process
// table, live in internal/parklock. See spec.md §4.1, §4.7.
package syncx

import (
	"fmt"
	"sync"
)

// CPU holds the interrupt-disable bookkeeping for one virtual CPU.
// spec.md is explicit that this module targets a single CPU, so in
// practice exactly one CPU value exists; it is still modeled as a
// distinct type (rather than package-level globals) so an eventual
// SMP port would only need one per core instead of a rewrite.
//
// IntEnabled is unusual: spec.md §4.1 notes it is conceptually
// per-process, not per-CPU, because a process can push cli inside a
// syscall, get scheduled out, and a different process can
// independently manipulate the same counter. Nothing in this module
// saves or restores IntEnabled across a process switch: CPU holds a
// single value that every process shares.
type CPU struct {
	mu sync.Mutex

	CliDepth   int
	IntEnabled bool
}

// CliPush disables interrupts, remembering the previous enabled state
// the first time the depth transitions from 0 to 1.
//
// The single-CPU model assumes CliPush/CliPop run with true hardware
// mutual exclusion between interrupted code and its interrupt handler.
// A goroutine-ticker rendition of the timer interrupt does not give
// that for free — it can call into the same CPU concurrently with
// whatever process goroutine is running — so the push/pop/enabled
// bookkeeping is itself guarded by a mutex rather than assumed safe.
func (c *CPU) CliPush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	enabled := c.IntEnabled
	if c.CliDepth == 0 {
		c.IntEnabled = enabled
	}
	c.CliDepth++
}

// CliPop reverses one CliPush. Interrupts are only actually
// re-enabled once the depth returns to 0 and the remembered flag says
// they were enabled beforehand.
func (c *CPU) CliPop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CliDepth <= 0 {
		panic(fmt.Sprintf("syncx: CliPop with CliDepth=%d", c.CliDepth))
	}
	c.CliDepth--
}

// Enabled reports whether interrupts are currently enabled, i.e. the
// depth has unwound to zero.
func (c *CPU) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CliDepth == 0 && c.IntEnabled
}

// AssertQuiescent panics unless exactly one CliPush is outstanding
// with interrupts considered disabled — the invariant the scheduler
// requires of a process about to yield (spec.md §4.6's
// yield_to_scheduler precondition).
func (c *CPU) AssertQuiescent() {
	c.mu.Lock()
	depth := c.CliDepth
	c.mu.Unlock()
	if depth != 1 {
		panic(fmt.Sprintf("syncx: yield with CliDepth=%d, want 1", depth))
	}
}
