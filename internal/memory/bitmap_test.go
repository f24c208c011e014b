package memory

import (
	"testing"

	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapAllocFreeRoundTrip(t *testing.T) {
	cpu := &syncx.CPU{}
	b := NewBitmap("test", 8)

	got := map[int]bool{}
	for i := 0; i < 8; i++ {
		idx, ok := b.Alloc(cpu)
		require.True(t, ok)
		assert.False(t, got[idx], "slot %d allocated twice", idx)
		got[idx] = true
	}

	_, ok := b.Alloc(cpu)
	assert.False(t, ok, "bitmap should report full")

	b.Free(cpu, 3)
	idx, ok := b.Alloc(cpu)
	require.True(t, ok)
	assert.Equal(t, 3, idx, "freed slot should be reused")
}

func TestBitmapUsedTracksSetBits(t *testing.T) {
	cpu := &syncx.CPU{}
	b := NewBitmap("test", 16)
	for i := 0; i < 5; i++ {
		_, _ = b.Alloc(cpu)
	}
	assert.Equal(t, 5, b.Used(cpu))
	b.Free(cpu, 2)
	assert.Equal(t, 4, b.Used(cpu))
}

func TestBitmapLoadRawMirrorsPersistedState(t *testing.T) {
	cpu := &syncx.CPU{}
	b := NewBitmap("test", 16)
	_, _ = b.Alloc(cpu)
	_, _ = b.Alloc(cpu)
	raw := b.Raw()

	b2 := NewBitmap("test2", 16)
	b2.LoadRaw(raw)
	assert.Equal(t, b.Used(cpu), b2.Used(cpu))
}
