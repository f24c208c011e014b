package block

import (
	"context"
	"fmt"

	"github.com/huxgo/kernel/internal/syncx"
)

// Queue is a FIFO queue of in-flight block requests in front of a
// single Device, implementing the submit/complete protocol of
// spec.md §4.5. The ptable-level "block the caller with reason
// ON_IDEDISK, wait_req = req" step lives one layer up, in
// internal/proc — Submit here blocks on req.Wait(), which is exactly
// what a process descriptor's wait_req channel resolves to once
// internal/proc wires a process's blocking primitive through this
// queue.
type Queue struct {
	lock    *syncx.Spinlock
	device  Device
	pending []*Request
}

// NewQueue creates a request queue in front of dev and starts the
// completion-handling goroutine that plays the role of the disk
// interrupt handler.
func NewQueue(dev Device) *Queue {
	q := &Queue{
		lock:   syncx.NewSpinlock("blockq"),
		device: dev,
	}
	go q.handleCompletions()
	return q
}

// Submit appends req to the tail, starting the device if the queue
// was previously empty, then blocks until the device has finished
// servicing it (spec.md §4.5 steps 1-3).
func (q *Queue) Submit(cpu *syncx.CPU, req *Request) error {
	q.lock.Acquire(cpu)
	empty := len(q.pending) == 0
	q.pending = append(q.pending, req)
	if empty {
		if err := q.device.Start(req); err != nil {
			q.lock.Release(cpu)
			return fmt.Errorf("block: start request: %w", err)
		}
	}
	q.lock.Release(cpu)

	req.Wait()
	if !req.Successful() {
		return ErrIO
	}
	return nil
}

// handleCompletions dequeues the head request on every device
// interrupt, finalizes it, wakes its waiter, and starts the new head
// if any (spec.md §4.5's "device completion interrupt" steps).
func (q *Queue) handleCompletions() {
	for range q.device.Interrupts() {
		cpu := &syncx.CPU{}
		q.lock.Acquire(cpu)
		if len(q.pending) == 0 {
			q.lock.Release(cpu)
			continue
		}
		done := q.pending[0]
		q.pending = q.pending[1:]
		done.markDone()

		if len(q.pending) > 0 {
			_ = q.device.Start(q.pending[0])
		}
		q.lock.Release(cpu)
	}
}

// SubmitBlockingPoll is the early-boot variant used before the
// scheduler and interrupts are usable (spec.md §4.5): it starts the
// request and polls the device's ready/error status synchronously,
// with no reliance on the completion goroutine.
func SubmitBlockingPoll(ctx context.Context, dev Device, req *Request) error {
	if err := dev.Start(req); err != nil {
		return fmt.Errorf("block: start request: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := dev.Poll(); err != nil {
			return err
		}
		if req.Successful() {
			return nil
		}
	}
}
