// Package proc implements the process table, cooperative scheduler,
// and process lifecycle operations (spec.md §4.6). A real kernel
// switches between per-process kernel stacks by hand; this package
// gets the same one-running-process-at-a-time discipline from a Go
// goroutine per process handed a baton channel by the scheduler, so
// the state machine and locking order spec.md §5 requires are
// preserved even though there is no literal stack-pointer swap.
package proc

import (
	"errors"

	"github.com/huxgo/kernel/internal/memory"
)

// MaxFilesPerProc bounds the per-process open file table.
const MaxFilesPerProc = 16

// State is a process's scheduling state (spec.md §3).
type State int

const (
	Unused State = iota
	Initial
	Ready
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Initial:
		return "INITIAL"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// BlockReason is why a BLOCKED process is waiting (spec.md §3).
type BlockReason int

const (
	Nothing BlockReason = iota
	OnSleep
	OnWait
	OnKbdIn
	OnIDEDisk
	OnLock
)

// ErrKilled is returned by every blocking operation on this package's
// API once a process's Killed flag has been observed, standing in for
// the real kernel's lazy self-exit at the next trap-return or
// scheduler yield (spec.md §4.6 kill, §5 cancellation). Simulated
// user programs are expected to check for it the same way idiomatic
// Go code checks ctx.Err(), and return so Table can reap them.
var ErrKilled = errors.New("proc: process was killed")

// TrapState mirrors the fields of the real trap frame that matter to
// this simulation: the syscall/fault entry point's visible register
// state. Exec and fork both construct or copy one of these directly.
type TrapState struct {
	Eip uint32
	Esp uint32
	Eax uint32 // syscall/fork return-value register
}

// FileSlot is one entry of a process's open-file table. Handle is
// opaque here (an *fs.OpenFile once internal/fs exists) to avoid
// proc depending on the filesystem layer; fs type-asserts it back.
type FileSlot struct {
	Open   bool
	Handle interface{}
}

// Process is the in-memory process control block (spec.md §3).
type Process struct {
	Name     string
	Pid      int
	State    State
	BlockOn  BlockReason
	PageDir  *memory.PageTable
	StackLow uint32
	HeapHigh uint32
	Trap     TrapState

	Parent     *Process
	Killed     bool
	TimeSlice  int
	TargetTick int64

	// WaitReq/WaitLock mirror wait_req/wait_lock: exactly one is
	// meaningful depending on BlockOn. WaitLock is typed interface{}
	// for the same import-cycle reason as FileSlot.Handle — the
	// internal/parklock package (which depends on proc, not the
	// reverse) type-asserts it back to *parklock.Lock.
	WaitReq  interface{}
	WaitLock interface{}

	Files [MaxFilesPerProc]FileSlot
	Cwd   interface{}

	table          *Table
	turn           chan struct{}
	yielded        chan struct{}
	sliceRemaining int
	preempt        bool
	run            ProcFunc
	ExitCode       int
}

// ProcFunc is the simulated "user program" a process executes: since
// this module has no x86 instruction-level interpreter, user-mode
// execution is represented directly as Go code that drives the
// syscall-layer API. It returns the process's exit code.
type ProcFunc func(p *Process) int
