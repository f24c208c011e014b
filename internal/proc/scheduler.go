package proc

import (
	"context"
	"time"

	"github.com/huxgo/kernel/clock"
)

// Run drives the scheduler loop until ctx is canceled: each iteration
// is one Dispatch (spec.md §4.6 "Scheduler loop"), and tickEvery
// simulates the periodic timer interrupt that drives sleep wakeups
// and preemption (spec.md §4.6 "Timer tick"). When no process is
// READY, Run waits briefly rather than busy-spinning — a real kernel
// would `hlt` until the next interrupt.
func (t *Table) Run(ctx context.Context, clk clock.Clock, tickEvery time.Duration) {
	stopTicks := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(stopTicks)
				return
			case <-clk.After(tickEvery):
				t.Tick()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !t.Dispatch() {
			select {
			case <-ctx.Done():
				return
			case <-clk.After(time.Millisecond):
			}
		}
	}
}
