package engine

import "time"

// Clock supplies timestamps for journal entries and queued changes.
//
// Timestamps order the journal across devices only loosely (wall clocks
// drift), so the merge breaks timestamp ties by entry id.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
