package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger used by the navigation
// libraries. It defaults to log.Printf but may be replaced by SetLogger so
// tests and replay tools can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Limiter lets through the first occurrence of an event and then one in
// every N. Estimator tasks run at the inertial sample rate, so anything they
// log goes through a Limiter.
type Limiter struct {
	every uint64
	count atomic.Uint64
}

// NewLimiter returns a Limiter that allows one event in every n.
// Values of n below 1 are treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{every: uint64(n)}
}

// Allow records an occurrence and reports whether it should be logged.
func (l *Limiter) Allow() bool {
	c := l.count.Add(1) - 1
	return c%l.every == 0
}

// Count returns the number of occurrences recorded so far.
func (l *Limiter) Count() uint64 {
	return l.count.Load()
}

// Logf logs through the package logger when the limiter allows it.
func (l *Limiter) Logf(format string, v ...interface{}) {
	if l.Allow() {
		Logf(format, v...)
	}
}
