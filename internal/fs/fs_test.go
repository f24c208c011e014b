package fs

import (
	"sync"
	"testing"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/blockio"
	"github.com/huxgo/kernel/internal/proc"
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

func newTestFS(t *testing.T) (*FileSystem, *proc.Table) {
	t.Helper()
	cpu := &syncx.CPU{}
	tbl := proc.NewTable(cpu, 4)
	dev := block.NewFakeDevice(newMemDisk(TotalBlocks), 100000)
	q := block.NewQueue(dev)
	io := blockio.New(cpu, q, tbl)

	require.NoError(t, Format(cpu, io))
	filesys, err := Boot(cpu, io, tbl, 8)
	require.NoError(t, err)
	return filesys, tbl
}

func TestBootReadsFormattedSuperblockAndRoot(t *testing.T) {
	fs, _ := newTestFS(t)
	assert.Equal(t, uint32(superblockMagic), fs.Super.Magic)
	assert.True(t, fs.InodeAlloc.Check(fs.cpu, RootInumber))
}

func TestInodeAllocFreeRoundTrip(t *testing.T) {
	fs, _ := newTestFS(t)
	e, err := fs.AllocInode(nil, TypeFile)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, e.Inode.Type)

	require.NoError(t, e.Lock.Acquire(fs.cpu, nil))
	require.NoError(t, fs.FreeInode(nil, e))
	e.Lock.Release(fs.cpu, nil)

	assert.False(t, fs.InodeAlloc.Check(fs.cpu, int(e.Inumber)))
}

func TestDirectoryLinkLookupUnlink(t *testing.T) {
	fs, _ := newTestFS(t)
	root, err := fs.Cache.Get(nil, RootInumber)
	require.NoError(t, err)

	file, err := fs.AllocInode(nil, TypeFile)
	require.NoError(t, err)

	require.NoError(t, fs.Link(nil, root, "hello.txt", file.Inumber))

	inum, ok, err := fs.Lookup(nil, root, "hello.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, file.Inumber, inum)

	require.NoError(t, fs.Unlink(nil, root, "hello.txt"))
	_, ok, err = fs.Lookup(nil, root, "hello.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadWriteSpansMultipleBlocks(t *testing.T) {
	fs, _ := newTestFS(t)
	e, err := fs.AllocInode(nil, TypeFile)
	require.NoError(t, err)

	data := make([]byte, block.Size*2+10)
	for i := range data {
		data[i] = byte(i % 250)
	}
	n, err := fs.WriteInode(nil, e, 0, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, uint32(len(data)), e.Inode.Size)

	out := make([]byte, len(data))
	n, err = fs.ReadInode(nil, e, 0, out)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, out)
}

func TestOpenReadWriteSeekClose(t *testing.T) {
	fs, _ := newTestFS(t)
	root, err := fs.Cache.Get(nil, RootInumber)
	require.NoError(t, err)
	ftable := NewFTable(fs.cpu, 16)

	file, err := fs.AllocInode(nil, TypeFile)
	require.NoError(t, err)
	require.NoError(t, fs.Link(nil, root, "a.txt", file.Inumber))
	fs.Cache.Put(nil, file)

	p := &proc.Process{}
	fd, err := fs.Open(p, ftable, root, "a.txt", ModeRead|ModeWrite)
	require.NoError(t, err)

	n, err := fs.Write(p, fd, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	require.NoError(t, fs.Seek(p, fd, 0))
	buf := make([]byte, 5)
	n, err = fs.Read(p, fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	st, err := fs.Fstat(p, fd)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, st.Type)

	require.NoError(t, fs.Close(p, ftable, fd))
}
