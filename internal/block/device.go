package block

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"
)

// Device is the minimal start/poll/interrupt contract spec.md §1 and
// §4.5 require of the IDE driver this module treats as an external
// collaborator: program a transfer, optionally poll its status
// without interrupts (used only very early in boot, before the
// scheduler exists), and deliver a completion notification.
type Device interface {
	// Start programs the device to begin transferring req. It returns
	// an error immediately if the device itself is not ready.
	Start(req *Request) error

	// Poll synchronously drives the currently started request to
	// completion without relying on interrupts, for
	// submit_blocking_poll's early-boot use (spec.md §4.5). It
	// returns an IOError-flavored error if the device reports an
	// error status.
	Poll() error

	// Interrupts delivers a value each time the in-flight request
	// completes.
	Interrupts() <-chan struct{}
}

// ErrIO reports a device-level error status (spec.md §7's IOError).
var ErrIO = fmt.Errorf("block: device reported an error")

// FakeDevice is an in-memory (or file-backed) stand-in for the IDE
// disk, used by tests and by `goux boot`'s default disk image. It
// uses a rate.Limiter to model non-instant seek/transfer latency so
// BlockQ's ordering and blocking behavior (spec.md §8.8) are
// exercised under real scheduling pressure instead of completing
// synchronously — see SPEC_FULL.md's Domain Stack section.
type FakeDevice struct {
	backing    io.ReaderAt
	writer     io.WriterAt
	limiter    *rate.Limiter
	interrupts chan struct{}
	current    *Request
}

// NewFakeDevice wraps a ReaderAt/WriterAt (an *os.File, or an
// in-memory store) as a Device. blocksPerSecond bounds how many
// blocks per second the simulated device can service.
func NewFakeDevice(backing interface {
	io.ReaderAt
	io.WriterAt
}, blocksPerSecond float64) *FakeDevice {
	return &FakeDevice{
		backing:    backing,
		writer:     backing,
		limiter:    rate.NewLimiter(rate.Limit(blocksPerSecond), 1),
		interrupts: make(chan struct{}, 1),
	}
}

// NewFileBackedDevice opens (creating if needed) a disk image file of
// the given size in blocks.
func NewFileBackedDevice(path string, sizeBlocks int, blocksPerSecond float64) (*FakeDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("block: open disk image: %w", err)
	}
	if err := f.Truncate(int64(sizeBlocks) * Size); err != nil {
		return nil, fmt.Errorf("block: size disk image: %w", err)
	}
	return NewFakeDevice(f, blocksPerSecond), nil
}

func (d *FakeDevice) Start(req *Request) error {
	d.current = req
	go func() {
		_ = d.limiter.Wait(context.Background())
		d.service(req)
		d.interrupts <- struct{}{}
	}()
	return nil
}

func (d *FakeDevice) service(req *Request) {
	if req.Dirty {
		if _, err := d.writer.WriteAt(req.Data[:], int64(req.BlockNo)*Size); err != nil {
			return
		}
		req.Dirty = false
		req.Valid = true
		return
	}
	if _, err := d.backing.ReadAt(req.Data[:], int64(req.BlockNo)*Size); err != nil && err != io.EOF {
		return
	}
	req.Valid = true
}

func (d *FakeDevice) Poll() error {
	if d.current == nil {
		return nil
	}
	d.service(d.current)
	if !d.current.Successful() {
		return ErrIO
	}
	d.current.markDone()
	d.current = nil
	return nil
}

func (d *FakeDevice) Interrupts() <-chan struct{} { return d.interrupts }
