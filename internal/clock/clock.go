// Package clock abstracts the time operations of the poll loop so tests can
// drive it deterministically. Production code uses Real(); tests use Fake()
// and call Advance.
package clock

import "time"

// Clock is the subset of the time package the poll loop needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a Timer that delivers the time on C once d has
	// elapsed. If d <= 0, C receives immediately.
	NewTimer(d time.Duration) *Timer
}

// Timer is a one-shot timer. C is buffered with capacity 1.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the Timer from firing. It returns false if the timer has
// already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
