package library

import "time"

// Clock supplies timestamps for snapshots and commits.
// Implemented by SystemClock (production) and testutil.DeterministicClock (tests).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
