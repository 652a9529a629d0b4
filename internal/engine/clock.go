package engine

import "time"

// Clock is the time source of a wait. Deadlines, elapsed times and sleeps
// all go through it, so tests can drive a wait without real sleeping.
//
// Thread-safety: implementations must be safe for concurrent use; WaitAll
// shares one Clock between goroutines.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// After returns time.After(d).
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
