package clock

import "time"

// Clock is the time source for expiry comparisons and viewer-session timeouts.
// Production wiring uses Real(); tests use Fake() and advance time explicitly.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real) or synchronously during
	// Advance (fake) once d has elapsed. The returned Timer cancels the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a pending AfterFunc callback.
type Timer interface {
	// Stop reports whether the call prevented the callback from running.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
