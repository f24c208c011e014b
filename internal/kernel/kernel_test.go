package kernel

import (
	"testing"

	"github.com/huxgo/kernel/cfg"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syscall"
	"github.com/stretchr/testify/require"
)

func testConfig() cfg.Config {
	c := cfg.GetDefaultConfig()
	c.Disk.Format = true
	c.Memory.Frames = 512
	c.Memory.ReservedLowFrames = 8
	c.Memory.PageSlabPages = 32
	c.Scheduler.MaxProcs = 4
	return c
}

func TestBootWiresEverySubsystem(t *testing.T) {
	k, err := Boot(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Shutdown() })

	require.NotNil(t, k.Frames)
	require.NotNil(t, k.Slab)
	require.NotNil(t, k.KHeap)
	require.NotNil(t, k.FS)
	require.NotNil(t, k.Procs)
	require.NotNil(t, k.Syscalls)
	require.NotEmpty(t, k.SessionID)

	stats := k.Frames.Stats()
	require.Equal(t, 512, stats.Total)
}

// TestRunDrivesAnAllocatedProcessToCompletion exercises Boot end to
// end: a process that only calls getpid through the wired syscall
// table runs to completion once Run is given control.
func TestRunDrivesAnAllocatedProcessToCompletion(t *testing.T) {
	k, err := Boot(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Shutdown() })

	var got uint32
	p, err := k.Procs.Alloc("init", k.Syscalls.RunProcess(func(p *proc.Process) error {
		eax, err := k.Syscalls.Call(p, syscall.SysGetpid)
		got = eax
		return err
	}))
	require.NoError(t, err)
	p.State = proc.Ready

	k.Run()

	require.Equal(t, uint32(p.Pid), got)
	require.Equal(t, proc.Terminated, p.State)
}
