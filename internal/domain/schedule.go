package domain

import "time"

// TimeSlot is a half-open interval [Start, End). The end instant itself is
// excluded, so back-to-back bookings never collide.
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// IsValidTimeSlot reports whether end is strictly after start. Zero-length and
// inverted intervals are rejected before any storage access.
func IsValidTimeSlot(start, end time.Time) bool {
	return end.After(start)
}

// HasTimeConflict reports whether candidate intersects existing. The candidate
// conflicts when it starts inside the existing interval, ends inside it, or
// fully encompasses it. A candidate starting exactly at existing.End, or
// ending exactly at existing.Start, does not conflict.
func HasTimeConflict(existing, candidate TimeSlot) bool {
	startsInside := !candidate.Start.Before(existing.Start) && candidate.Start.Before(existing.End)
	endsInside := candidate.End.After(existing.Start) && !candidate.End.After(existing.End)
	encompasses := !candidate.Start.After(existing.Start) && !candidate.End.Before(existing.End)
	return startsInside || endsInside || encompasses
}
