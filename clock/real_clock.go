package clock

import "time"

// RealClock drives the kernel from the host's wall clock. Used by
// `goux boot` outside of tests.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// After notifies on the returned channel once d has passed.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
