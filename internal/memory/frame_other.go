//go:build !linux

package memory

// newFrameArena falls back to a plain slice on platforms without the
// unix.Mmap syscall this module otherwise exercises (see
// frame_linux.go and DESIGN.md's stdlib-fallback entry for
// internal/memory).
func newFrameArena(nframes int) ([]byte, func() error, error) {
	return make([]byte, nframes*PageSize), func() error { return nil }, nil
}
