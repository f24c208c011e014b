// Package clock abstracts the passage of time so the kernel's timer
// interrupt source (the PIT, an external collaborator per spec.md §1)
// can be swapped for a deterministic stand-in in tests.
package clock

import "time"

// Clock is the timer tick source the kernel drives its scheduler and
// sleep-queue wakeups from. It stands in for the PIT hardware driver.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has
	// elapsed. It is the moral equivalent of one PIT tick deadline.
	After(d time.Duration) <-chan time.Time
}
