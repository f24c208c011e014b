package parklock

import (
	"testing"
	"time"

	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	cpu := &syncx.CPU{}
	tbl := proc.NewTable(cpu, 2)
	lk := New(cpu, tbl, "test.lock")

	acquired := make(chan struct{})
	p, err := tbl.Alloc("holder", func(p *proc.Process) int {
		if err := lk.Acquire(cpu, p); err != nil {
			return -1
		}
		close(acquired)
		lk.Release(cpu, p)
		return 0
	})
	require.NoError(t, err)

	tblSetReady(t, tbl, p)
	go tbl.Dispatch()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock never acquired")
	}
}

func TestSecondAcquirerBlocksUntilReleased(t *testing.T) {
	cpu := &syncx.CPU{}
	tbl := proc.NewTable(cpu, 3)
	lk := New(cpu, tbl, "test.lock2")

	holderReleased := make(chan struct{})
	holder, err := tbl.Alloc("holder", func(p *proc.Process) int {
		require.NoError(t, lk.Acquire(cpu, p))
		<-holderReleased
		lk.Release(cpu, p)
		return 0
	})
	require.NoError(t, err)
	tblSetReady(t, tbl, holder)
	go tbl.Dispatch()

	waiterAcquired := make(chan struct{})
	var waiter *proc.Process
	waiter, err = tbl.Alloc("waiter", func(p *proc.Process) int {
		require.NoError(t, lk.Acquire(cpu, p))
		close(waiterAcquired)
		lk.Release(cpu, p)
		return 0
	})
	require.NoError(t, err)

	// Give the holder a chance to actually take the lock first.
	time.Sleep(20 * time.Millisecond)
	tblSetReady(t, tbl, waiter)
	go tbl.Dispatch()

	select {
	case <-waiterAcquired:
		t.Fatal("waiter acquired before holder released")
	case <-time.After(50 * time.Millisecond):
	}

	close(holderReleased)
	go func() {
		for i := 0; i < 5; i++ {
			tbl.Dispatch()
		}
	}()

	select {
	case <-waiterAcquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
	assert.False(t, lk.locked)
}

func tblSetReady(t *testing.T, tbl *proc.Table, p *proc.Process) {
	t.Helper()
	p.State = proc.Ready
}
