package proc

import (
	"context"
	"testing"
	"time"

	"github.com/huxgo/kernel/clock"
	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAssignsMonotonicPids(t *testing.T) {
	tbl := NewTable(&syncx.CPU{}, 4)
	a, err := tbl.Alloc("a", func(p *Process) int { return 0 })
	require.NoError(t, err)
	b, err := tbl.Alloc("b", func(p *Process) int { return 0 })
	require.NoError(t, err)

	assert.Less(t, a.Pid, b.Pid)
}

func TestAllocFailsWhenTableFull(t *testing.T) {
	tbl := NewTable(&syncx.CPU{}, 1)
	_, err := tbl.Alloc("only", func(p *Process) int { return 0 })
	require.NoError(t, err)
	_, err = tbl.Alloc("overflow", func(p *Process) int { return 0 })
	assert.Error(t, err)
}

func TestDispatchRunsReadyProcessToCompletion(t *testing.T) {
	tbl := NewTable(&syncx.CPU{}, 2)
	ran := make(chan struct{}, 1)
	p, err := tbl.Alloc("worker", func(p *Process) int {
		ran <- struct{}{}
		return 7
	})
	require.NoError(t, err)

	tbl.lock.Acquire(tbl.cpu)
	p.State = Ready
	tbl.lock.Release(tbl.cpu)

	require.True(t, tbl.Dispatch())
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("process never ran")
	}
}

func TestSleepBlocksUntilTickReachesTarget(t *testing.T) {
	tbl := NewTable(&syncx.CPU{}, 2)
	woke := make(chan struct{})
	p, err := tbl.Alloc("sleeper", func(p *Process) int {
		_ = tbl.Sleep(p, 3)
		close(woke)
		return 0
	})
	require.NoError(t, err)

	tbl.lock.Acquire(tbl.cpu)
	p.State = Ready
	tbl.lock.Release(tbl.cpu)

	go tbl.Dispatch()

	// Give the goroutine a chance to call Sleep and block.
	for i := 0; i < 100 && p.State != Blocked; i++ {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, Blocked, p.State)
	require.Equal(t, OnSleep, p.BlockOn)

	for i := 0; i < 3; i++ {
		tbl.Tick()
	}
	require.Equal(t, Ready, p.State)
	go tbl.Dispatch()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("sleeper never woke")
	}
}

func TestKillWakesBlockedProcessWithError(t *testing.T) {
	tbl := NewTable(&syncx.CPU{}, 2)
	result := make(chan error, 1)
	p, err := tbl.Alloc("victim", func(p *Process) int {
		result <- tbl.Sleep(p, 1_000_000)
		return 0
	})
	require.NoError(t, err)

	tbl.lock.Acquire(tbl.cpu)
	p.State = Ready
	tbl.lock.Release(tbl.cpu)
	go tbl.Dispatch()

	for i := 0; i < 100 && p.State != Blocked; i++ {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, tbl.Kill(p.Pid))
	require.Equal(t, Ready, p.State)
	go tbl.Dispatch()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrKilled)
	case <-time.After(time.Second):
		t.Fatal("killed process never resumed")
	}
}

func TestStatsCountsByState(t *testing.T) {
	tbl := NewTable(&syncx.CPU{}, 4)
	_, err := tbl.Alloc("a", func(p *Process) int { return 0 })
	require.NoError(t, err)
	b, err := tbl.Alloc("b", func(p *Process) int { return 0 })
	require.NoError(t, err)

	tbl.lock.Acquire(tbl.cpu)
	b.State = Ready
	tbl.lock.Release(tbl.cpu)

	stats := tbl.Stats()
	assert.Equal(t, 1, stats[Initial.String()])
	assert.Equal(t, 1, stats[Ready.String()])
	assert.Equal(t, 0, stats[Unused.String()])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tbl := NewTable(&syncx.CPU{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		tbl.Run(ctx, clock.RealClock{}, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
