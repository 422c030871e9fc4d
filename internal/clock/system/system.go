// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements archive.Clock. Times are UTC and truncated to
// microseconds, the precision Postgres keeps for timestamptz, so a run read
// back from the run store compares equal to the one written.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time at microsecond precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
