package memory

import (
	"context"
	"fmt"

	"github.com/huxgo/kernel/internal/syncx"
	"golang.org/x/sync/semaphore"
)

// ErrOutOfPageSlab is returned when the slab's free list is empty.
var ErrOutOfPageSlab = fmt.Errorf("memory: out of page slab pages")

// Page is one page-slab-granularity object: level-2 page tables and
// page directories are carved from here rather than from the
// physical frame arena, per spec.md §4.4.
type Page [PageSize]byte

// PageSlab is a fixed-granularity free-list allocator over a reserved
// range of the kernel virtual window (spec.md §4.4). The free list is
// a singleton-linked stack of pages drawn up front, and a weighted
// semaphore sized to npages bounds how many pages can be checked out
// at once — the thing actually enforcing the slab's fixed capacity;
// the free-list length check beneath it is just bookkeeping.
type PageSlab struct {
	lock *syncx.Spinlock
	free []*Page // stack; free[len-1] is the head
	sem  *semaphore.Weighted
}

// NewPageSlab pre-allocates npages page-sized objects and pushes them
// all onto the free stack.
func NewPageSlab(npages int) *PageSlab {
	ps := &PageSlab{
		lock: syncx.NewSpinlock("page-slab"),
		sem:  semaphore.NewWeighted(int64(npages)),
	}
	for i := 0; i < npages; i++ {
		ps.free = append(ps.free, &Page{})
	}
	return ps
}

// Alloc pops the head of the free list, failing immediately once
// npages pages are already checked out.
func (ps *PageSlab) Alloc(cpu *syncx.CPU) (*Page, error) {
	if !ps.sem.TryAcquire(1) {
		return nil, ErrOutOfPageSlab
	}

	ps.lock.Acquire(cpu)
	defer ps.lock.Release(cpu)

	n := len(ps.free)
	if n == 0 {
		ps.sem.Release(1)
		return nil, ErrOutOfPageSlab
	}
	p := ps.free[n-1]
	ps.free = ps.free[:n-1]
	return p, nil
}

// AllocWait behaves like Alloc but blocks until a page is available or
// ctx is done, for callers that would rather wait for memory pressure
// to ease than fail an allocation outright.
func (ps *PageSlab) AllocWait(ctx context.Context, cpu *syncx.CPU) (*Page, error) {
	if err := ps.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	ps.lock.Acquire(cpu)
	defer ps.lock.Release(cpu)

	n := len(ps.free)
	if n == 0 {
		ps.sem.Release(1)
		return nil, ErrOutOfPageSlab
	}
	p := ps.free[n-1]
	ps.free = ps.free[:n-1]
	return p, nil
}

// Free zeros the page (catching dangling references, per
// sfree_page's intent) and pushes it back onto the free stack.
func (ps *PageSlab) Free(cpu *syncx.CPU, p *Page) {
	for i := range p {
		p[i] = 0
	}
	ps.lock.Acquire(cpu)
	ps.free = append(ps.free, p)
	ps.lock.Release(cpu)
	ps.sem.Release(1)
}

// Available reports the number of free pages remaining, for metrics.
func (ps *PageSlab) Available(cpu *syncx.CPU) int {
	ps.lock.Acquire(cpu)
	defer ps.lock.Release(cpu)
	return len(ps.free)
}
