package proc

import (
	"fmt"

	"github.com/huxgo/kernel/internal/memory"
)

// ChildFunc is the continuation a forked child executes. Go cannot
// clone a running goroutine's call stack at an arbitrary program
// counter the way copy-on-write address-space duplication lets a
// real fork() resume both parent and child from the same point, so
// callers supply the child's continuation explicitly; Fork does the
// rest of spec.md §4.6's fork: address-space duplication, copying the
// file-table and cwd slots, and trap-state copying with eax zeroed.
// It does not bump the inherited references' ref counts, since proc
// cannot see internal/fs; syscall.Table.Fork does that afterwards.
type ChildFunc func(child *Process) int

// Fork builds a child process that shares the parent's address space
// by copy, inherits its open files and cwd, and runs childEntry in
// place of literally resuming the parent's instruction stream
// (spec.md §4.6 "fork"). It returns the child process, or an error on
// any failure, with partial allocation rolled back.
func (t *Table) Fork(parent *Process, timeslice int, childEntry ChildFunc) (*Process, error) {
	if timeslice < 1 || timeslice > 16 {
		timeslice = 1
	}

	slab := parentSlab(parent)
	frames := parentFrames(parent)
	if slab == nil || frames == nil {
		return nil, fmt.Errorf("proc: fork: parent has no address space")
	}

	childDir, err := memory.NewPageTable(t.cpu, slab, frames)
	if err != nil {
		return nil, fmt.Errorf("proc: fork: new page directory: %w", err)
	}
	if err := memory.CopyRange(childDir, parent.PageDir, memory.UserBase, parent.HeapHigh); err != nil {
		childDir.UnmapRange(memory.UserBase, parent.HeapHigh)
		childDir.Destroy(t.cpu)
		return nil, fmt.Errorf("proc: fork: copy heap/text: %w", err)
	}
	if err := memory.CopyRange(childDir, parent.PageDir, parent.StackLow, memory.UserMax); err != nil {
		childDir.UnmapRange(memory.UserBase, memory.UserMax)
		childDir.Destroy(t.cpu)
		return nil, fmt.Errorf("proc: fork: copy stack: %w", err)
	}

	child, err := t.Alloc(parent.Name, nil)
	if err != nil {
		childDir.UnmapRange(memory.UserBase, memory.UserMax)
		childDir.Destroy(t.cpu)
		return nil, err
	}

	t.lock.Acquire(t.cpu)
	child.PageDir = childDir
	child.StackLow = parent.StackLow
	child.HeapHigh = parent.HeapHigh
	child.Parent = parent
	child.Trap = parent.Trap
	child.Trap.Eax = 0
	child.TimeSlice = timeslice
	child.Cwd = parent.Cwd
	for i, f := range parent.Files {
		child.Files[i] = f
	}
	child.State = Ready
	child.run = func(p *Process) int { return childEntry(p) }
	t.lock.Release(t.cpu)

	return child, nil
}

// parentSlab/parentFrames recover the allocators backing the
// parent's page directory so the child's directory can be built from
// the same pools; PageTable keeps both internally for exactly this.
func parentSlab(p *Process) *memory.PageSlab  { return p.PageDir.Slab() }
func parentFrames(p *Process) *memory.FrameAlloc { return p.PageDir.Frames() }
