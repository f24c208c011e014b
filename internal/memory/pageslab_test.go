package memory

import (
	"context"
	"testing"
	"time"

	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSlabAllocExhaustsAtCapacity(t *testing.T) {
	cpu := &syncx.CPU{}
	ps := NewPageSlab(2)

	_, err := ps.Alloc(cpu)
	require.NoError(t, err)
	_, err = ps.Alloc(cpu)
	require.NoError(t, err)

	_, err = ps.Alloc(cpu)
	assert.ErrorIs(t, err, ErrOutOfPageSlab)
}

func TestPageSlabFreeReturnsCapacityToTheSemaphore(t *testing.T) {
	cpu := &syncx.CPU{}
	ps := NewPageSlab(1)

	p, err := ps.Alloc(cpu)
	require.NoError(t, err)
	_, err = ps.Alloc(cpu)
	require.Error(t, err)

	ps.Free(cpu, p)
	_, err = ps.Alloc(cpu)
	assert.NoError(t, err)
}

func TestPageSlabAllocWaitBlocksUntilFreed(t *testing.T) {
	cpu := &syncx.CPU{}
	ps := NewPageSlab(1)

	p, err := ps.Alloc(cpu)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, err := ps.AllocWait(context.Background(), cpu)
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("AllocWait returned before a page was freed")
	case <-time.After(20 * time.Millisecond):
	}

	ps.Free(cpu, p)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AllocWait never woke after Free")
	}
}

func TestPageSlabAllocWaitRespectsContextCancellation(t *testing.T) {
	cpu := &syncx.CPU{}
	ps := NewPageSlab(1)
	_, err := ps.Alloc(cpu)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = ps.AllocWait(ctx, cpu)
	assert.Error(t, err)
}
