//go:build linux

package memory

import "golang.org/x/sys/unix"

// newFrameArena backs physical memory with a real anonymous mmap
// region, the way a kernel simulator plausibly would for a stable,
// page-aligned backing store instead of a plain Go slice — see
// SPEC_FULL.md's Domain Stack section.
func newFrameArena(nframes int) ([]byte, func() error, error) {
	size := nframes * PageSize
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return mem, func() error { return unix.Munmap(mem) }, nil
}
