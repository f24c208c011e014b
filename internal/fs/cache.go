package fs

import (
	"fmt"
	"strconv"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/blockio"
	"github.com/huxgo/kernel/internal/parklock"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
	"golang.org/x/sync/singleflight"
)

// CacheEntry is the in-memory inode cache entry of spec.md §3: a
// reference count, the inumber, a blocking lock guarding the cached
// on-disk inode's contents, and the cached inode itself.
type CacheEntry struct {
	RefCount int
	Inumber  uint32
	Lock     *parklock.Lock
	Inode    DiskInode

	cache *Cache
	ready bool // true once load() has populated Inode at least once
}

// Cache is the fixed-size in-memory inode cache (spec.md §4.9).
type Cache struct {
	spin    *syncx.Spinlock
	cpu     *syncx.CPU
	io      *blockio.IO
	entries []*CacheEntry

	// loads collapses concurrent Get calls for the same inumber onto a
	// single disk read, so a caller that matches the fast cache-hit
	// path below while another caller's load for that inumber is still
	// in flight waits for it instead of observing a half-populated
	// CacheEntry.
	loads singleflight.Group
}

// NewCache allocates an inode cache with the given number of slots.
func NewCache(cpu *syncx.CPU, table *proc.Table, io *blockio.IO, slots int) *Cache {
	c := &Cache{
		spin:    syncx.NewSpinlock("fs.inode-cache"),
		cpu:     cpu,
		io:      io,
		entries: make([]*CacheEntry, slots),
	}
	for i := range c.entries {
		c.entries[i] = &CacheEntry{Lock: parklock.New(cpu, table, fmt.Sprintf("fs.inode-lock[%d]", i)), cache: c}
	}
	return c
}

// Get implements inode_get(inumber): bump and return an already
// cached live entry, or claim an empty slot, load the on-disk inode
// under its own lock, and return it with ref_count=1.
func (c *Cache) Get(p *proc.Process, inumber uint32) (*CacheEntry, error) {
	c.spin.Acquire(c.cpu)
	for _, e := range c.entries {
		if e.RefCount > 0 && e.Inumber == inumber {
			e.RefCount++
			ready := e.ready
			c.spin.Release(c.cpu)
			if ready {
				return e, nil
			}
			return c.joinLoad(p, e, inumber)
		}
	}
	var slot *CacheEntry
	for _, e := range c.entries {
		if e.RefCount == 0 {
			slot = e
			break
		}
	}
	if slot == nil {
		c.spin.Release(c.cpu)
		return nil, fmt.Errorf("fs: inode cache full")
	}
	slot.RefCount = 1
	slot.Inumber = inumber
	slot.ready = false
	c.spin.Release(c.cpu)

	return c.joinLoad(p, slot, inumber)
}

// joinLoad runs slot's disk read behind a singleflight call keyed on
// inumber: the caller whose Get claimed the slot and any caller that
// matched it via the fast cache-hit path before the read finished all
// wait on the same load instead of each issuing (or observing a
// half-done) one.
func (c *Cache) joinLoad(p *proc.Process, slot *CacheEntry, inumber uint32) (*CacheEntry, error) {
	key := strconv.FormatUint(uint64(inumber), 10)
	_, err, _ := c.loads.Do(key, func() (interface{}, error) {
		if err := slot.Lock.Acquire(c.cpu, p); err != nil {
			return nil, err
		}
		defer slot.Lock.Release(c.cpu, p)
		return nil, c.load(p, slot)
	})
	if err != nil {
		c.Put(p, slot)
		return nil, err
	}

	c.spin.Acquire(c.cpu)
	slot.ready = true
	c.spin.Release(c.cpu)
	return slot, nil
}

func (c *Cache) load(p *proc.Process, e *CacheEntry) error {
	blockNo, off := inodeBlockAndOffset(e.Inumber)
	var buf [block.Size]byte
	if err := c.io.ReadBlock(p, blockNo, buf[:]); err != nil {
		return err
	}
	var raw [InodeSize]byte
	copy(raw[:], buf[off:off+InodeSize])
	e.Inode.Unmarshal(raw)
	return nil
}

// Flush writes e's cached inode back to its on-disk slot. The caller
// must hold e.Lock.
func (c *Cache) Flush(p *proc.Process, e *CacheEntry) error {
	blockNo, off := inodeBlockAndOffset(e.Inumber)
	var buf [block.Size]byte
	if err := c.io.ReadBlock(p, blockNo, buf[:]); err != nil {
		return err
	}
	raw := e.Inode.Marshal()
	copy(buf[off:off+InodeSize], raw[:])
	return c.io.WriteBlock(p, blockNo, buf[:])
}

// Ref bumps e's ref_count under the cache spinlock (inode_ref).
func (c *Cache) Ref(e *CacheEntry) {
	c.spin.Acquire(c.cpu)
	e.RefCount++
	c.spin.Release(c.cpu)
}

// Put drops e's ref_count (inode_put). Forbidden while the caller
// holds e's own blocking lock, per spec.md §4.9.
func (c *Cache) Put(p *proc.Process, e *CacheEntry) {
	if e.Lock.Holding(p) {
		panic("fs: inode_put called while holding the inode's own lock")
	}
	c.spin.Acquire(c.cpu)
	e.RefCount--
	c.spin.Release(c.cpu)
}
