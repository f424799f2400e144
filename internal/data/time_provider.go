package data

import "time"

// TimeProvider abstracts the clock so repositories can be tested with a
// frozen time.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider returns the wall clock.
type RealTimeProvider struct{}

// Now returns the current time.
func (RealTimeProvider) Now() time.Time { return time.Now() }

// FixedTimeProvider returns a fixed instant; useful in tests.
type FixedTimeProvider struct {
	Fixed time.Time
}

// Now returns the configured instant.
func (p FixedTimeProvider) Now() time.Time { return p.Fixed }
