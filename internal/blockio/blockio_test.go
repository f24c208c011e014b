package blockio

import (
	"sync"
	"testing"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDisk struct {
	mu   sync.Mutex
	data []byte
}

func newMemDisk(blocks int) *memDisk { return &memDisk{data: make([]byte, blocks*block.Size)} }

func (m *memDisk) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(p, m.data[off:]), nil
}

func (m *memDisk) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(m.data[off:], p), nil
}

func newTestIO(t *testing.T) *IO {
	t.Helper()
	cpu := &syncx.CPU{}
	dev := block.NewFakeDevice(newMemDisk(32), 10000)
	q := block.NewQueue(dev)
	return New(cpu, q, nil)
}

func TestReadSpanAcrossTwoBlocks(t *testing.T) {
	io := newTestIO(t)

	var full [2 * block.Size]byte
	for i := range full {
		full[i] = byte(i % 251)
	}
	require.NoError(t, io.WriteBlock(nil, 0, full[:block.Size]))
	require.NoError(t, io.WriteBlock(nil, 1, full[block.Size:]))

	resolve := func(idx int) (uint32, error) { return uint32(idx), nil }
	dst := make([]byte, 100)
	n, err := io.ReadSpan(nil, resolve, block.Size-50, 100, dst)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, full[block.Size-50:block.Size+50], dst)
}

func TestWriteSpanPartialBlockPreservesRest(t *testing.T) {
	io := newTestIO(t)
	resolve := func(idx int) (uint32, error) { return uint32(5 + idx), nil }

	var original [block.Size]byte
	for i := range original {
		original[i] = 0xAB
	}
	require.NoError(t, io.WriteBlock(nil, 5, original[:]))

	patch := []byte("hello")
	n, err := io.WriteSpan(nil, resolve, 10, len(patch), patch)
	require.NoError(t, err)
	assert.Equal(t, len(patch), n)

	var buf [block.Size]byte
	require.NoError(t, io.ReadBlock(nil, 5, buf[:]))
	assert.Equal(t, "hello", string(buf[10:15]))
	assert.Equal(t, byte(0xAB), buf[9])
	assert.Equal(t, byte(0xAB), buf[15])
}

func TestAllocatorRoundTrip(t *testing.T) {
	io := newTestIO(t)
	bm := memory.NewBitmap("data-bitmap-test", 32)
	alloc := NewAllocator(io, bm, 0, 16)

	addr, err := alloc.Alloc(nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), addr)

	require.NoError(t, alloc.Free(nil, addr))
	addr2, err := alloc.Alloc(nil)
	require.NoError(t, err)
	assert.Equal(t, addr, addr2)
}
