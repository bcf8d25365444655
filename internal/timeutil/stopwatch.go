package timeutil

import "time"

// Stopwatch measures the time between successive laps of a periodic task.
// The first lap is measured from the zero time, so it is always very large;
// callers clamp it like any other out-of-range interval.
type Stopwatch struct {
	clock Clock
	last  time.Time
}

// NewStopwatch returns a Stopwatch reading the given clock.
func NewStopwatch(clock Clock) *Stopwatch {
	return &Stopwatch{clock: clock}
}

// Lap returns the time elapsed since the previous lap and starts a new one.
func (s *Stopwatch) Lap() time.Duration {
	now := s.clock.Now()
	d := now.Sub(s.last)
	s.last = now
	return d
}

// Last returns the time the latest lap ended, or the zero time before the
// first lap.
func (s *Stopwatch) Last() time.Time { return s.last }

// Bounds is a closed interval of durations.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

// Clamp returns d limited to [b.Min, b.Max]. Negative intervals from clock
// steps clamp to Min.
func (b Bounds) Clamp(d time.Duration) time.Duration {
	if d < b.Min {
		return b.Min
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Contains reports whether d lies within the bounds.
func (b Bounds) Contains(d time.Duration) bool {
	return d >= b.Min && d <= b.Max
}

// Valid reports whether the bounds describe a usable, positive interval.
func (b Bounds) Valid() bool {
	return b.Min > 0 && b.Max >= b.Min
}
