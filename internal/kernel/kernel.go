// Package kernel wires every subsystem package in this module into
// the single "kernel context object" design notes call for: paging,
// the page slab, the kernel heap, the process table, the filesystem,
// and the scheduler loop, built in that order and held together by
// one *Kernel value (spec.md §9).
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huxgo/kernel/cfg"
	"github.com/huxgo/kernel/clock"
	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/blockio"
	"github.com/huxgo/kernel/internal/fs"
	"github.com/huxgo/kernel/internal/logger"
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/metrics"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
	"github.com/huxgo/kernel/internal/syscall"
	"github.com/huxgo/kernel/internal/term"
	"github.com/prometheus/client_golang/prometheus"
)

// Kernel is the boot-time handle to every live subsystem. Nothing
// outside this package should need to reach into its fields directly;
// it exists so `cmd` and tests have one thing to hold onto.
type Kernel struct {
	SessionID string
	Cfg       cfg.Config

	CPU    *syncx.CPU
	Frames *memory.FrameAlloc
	Slab   *memory.PageSlab
	KHeap  *memory.KHeap

	// BootDir is the kernel's own identity-mapped address space,
	// built before the page slab exists (spec.md §4.3's boot-path
	// variant). No process ever runs against it; it is kept only so
	// the documented init order has something concrete standing in
	// for "paging" coming up first.
	BootDir *memory.PageTable

	Disk  *block.FakeDevice
	Queue *block.Queue
	IO    *blockio.IO
	FS    *fs.FileSystem

	Procs    *proc.Table
	Syscalls *syscall.Table

	Clock   clock.Clock
	Metrics *metrics.Metrics

	Keyboard term.KeyboardSource
	Term     term.Sink
}

const bootArenaSize = 256 * memory.PageSize

// Boot brings up a Kernel from cfg in the order SPEC_FULL.md documents:
// paging, page-slab, kheap, process table, filesystem, then returns
// with the scheduler left idle — callers drive it with Run or their
// own Dispatch/Tick loop (tests commonly want the latter).
func Boot(c cfg.Config) (*Kernel, error) {
	sessionID := uuid.NewString()
	if err := logger.Init(c.Logging); err != nil {
		return nil, fmt.Errorf("kernel: init logger: %w", err)
	}
	logger.Infof("boot: session=%s app=%s", sessionID, c.AppName)

	cpu := &syncx.CPU{}

	frames, err := memory.NewFrameAlloc(cpu, c.Memory.Frames, c.Memory.ReservedLowFrames)
	if err != nil {
		return nil, fmt.Errorf("kernel: frame allocator: %w", err)
	}
	bootArena := make([]byte, bootArenaSize)
	bootDir := memory.NewBootPageTable(bootArena)

	slab := memory.NewPageSlab(c.Memory.PageSlabPages)
	kheap := memory.NewKHeap(c.Memory.KHeapBytes)

	disk, err := openDisk(c.Disk)
	if err != nil {
		return nil, fmt.Errorf("kernel: open disk: %w", err)
	}
	queue := block.NewQueue(disk)

	procs := proc.NewTable(cpu, c.Scheduler.MaxProcs)
	io := blockio.New(cpu, queue, procs)

	if c.Disk.Format {
		if err := fs.Format(cpu, io); err != nil {
			return nil, fmt.Errorf("kernel: format disk: %w", err)
		}
	}
	filesys, err := fs.Boot(cpu, io, procs, 64)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot filesystem: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	kbd := term.NewHeadlessKeyboard(noInput{})
	sink := term.NewHeadlessSink(discardWriter{})

	k := &Kernel{
		SessionID: sessionID,
		Cfg:       c,
		CPU:       cpu,
		Frames:    frames,
		Slab:      slab,
		KHeap:     kheap,
		BootDir:   bootDir,
		Disk:      disk,
		Queue:     queue,
		IO:        io,
		FS:        filesys,
		Procs:     procs,
		Clock:     clock.RealClock{},
		Metrics:   m,
		Keyboard:  kbd,
		Term:      sink,
	}

	k.Syscalls = syscall.NewTable(syscall.Deps{
		CPU:      cpu,
		Procs:    procs,
		FS:       filesys,
		Files:    fs.NewFTable(cpu, c.Scheduler.MaxProcs*proc.MaxFilesPerProc),
		Keyboard: kbd,
		Term:     sink,
	})

	logger.Infof("boot: session=%s ready (frames=%d maxprocs=%d)", sessionID, c.Memory.Frames, c.Scheduler.MaxProcs)
	return k, nil
}

// openDisk builds the block device backing the filesystem: a file at
// cfg.Disk.ImagePath if one was given, otherwise an in-memory disk
// sized to fs.TotalBlocks, matching `goux boot`'s "no image supplied"
// default.
func openDisk(c cfg.DiskConfig) (*block.FakeDevice, error) {
	const blocksPerSecond = 50000
	if c.ImagePath == "" {
		return block.NewFakeDevice(memDisk(make([]byte, fs.TotalBlocks*block.Size)), blocksPerSecond), nil
	}
	return block.NewFileBackedDevice(c.ImagePath, fs.TotalBlocks, blocksPerSecond)
}

// memDisk is a ReaderAt/WriterAt over a plain byte slice, for the
// default in-memory disk image (no file means no real persistence is
// expected).
type memDisk []byte

func (m memDisk) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m[off:]), nil }
func (m memDisk) WriteAt(p []byte, off int64) (int, error) { return copy(m[off:], p), nil }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// noInput serves an empty keyboard stream: every read fails with a
// "no keyboard input configured" error (not io.EOF), so any kbdstr
// caller in a headless boot gets the failure value.
type noInput struct{}

func (noInput) Read(p []byte) (int, error) { return 0, fmt.Errorf("kernel: no keyboard input configured") }

// Run drives the scheduler until no process is READY, ticking the
// clock once per TickMillis between dispatch rounds — the simplest
// possible stand-in for the timer-interrupt-driven loop spec.md §4.6
// describes, suitable for a headless boot that runs a fixed batch of
// processes to completion.
func (k *Kernel) Run() {
	tickMillis := k.Cfg.Scheduler.TickMillis
	if tickMillis <= 0 {
		tickMillis = 1
	}
	period := time.Duration(tickMillis) * time.Millisecond
	for {
		if !k.Procs.Dispatch() {
			return
		}
		<-k.Clock.After(period)
		k.Procs.Tick()
		k.Metrics.SchedulerTicks.Inc()
		k.Metrics.ObserveProcStats(k.Procs.Stats())
	}
}

// RunContext drives the scheduler via proc.Table.Run until ctx is
// canceled, the long-running counterpart to Run: a SIGINT handler
// wired up by the caller (goux boot's interrupt handling, mirroring
// the teacher's unmount-on-SIGINT goroutine) is the usual way ctx
// gets canceled, rather than the scheduler ever running dry.
func (k *Kernel) RunContext(ctx context.Context) {
	tickMillis := k.Cfg.Scheduler.TickMillis
	if tickMillis <= 0 {
		tickMillis = 1
	}
	k.Procs.Run(ctx, k.Clock, time.Duration(tickMillis)*time.Millisecond)
}

// Shutdown releases the resources Boot acquired that outlive a single
// process (the physical frame arena's mmap, chiefly).
func (k *Kernel) Shutdown() error {
	logger.Infof("shutdown: session=%s", k.SessionID)
	return k.Frames.Close()
}
