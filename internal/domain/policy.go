package domain

import "time"

// Admission rules are pure: callers pass timestamps and counts, nothing here
// touches storage or the clock.

// RegistrationWindowActive reports whether now falls inside [start, end].
// Either bound may be nil (open). A window whose start is after its end is
// treated as inactive.
func RegistrationWindowActive(start, end *time.Time, now time.Time) bool {
	if start != nil && end != nil && start.After(*end) {
		return false
	}
	if start != nil && now.Before(*start) {
		return false
	}
	if end != nil && now.After(*end) {
		return false
	}
	return true
}

// CanJoin reports whether now is at or before deadline. No deadline means
// joining is always allowed.
func CanJoin(deadline *time.Time, now time.Time) bool {
	if deadline == nil {
		return true
	}
	return !now.After(*deadline)
}

// WaitlistHasRoom ignores limit unless limited is set.
func WaitlistHasRoom(limited bool, limit *int, waiting int) bool {
	if !limited || limit == nil {
		return true
	}
	return waiting < *limit
}

// CheckAdmission returns ErrRegistrationClosed or ErrWaitlistFull when a join
// must be refused, nil otherwise.
func CheckAdmission(ev Event, now time.Time) error {
	if !RegistrationWindowActive(ev.RegistrationOpensAt, ev.RegistrationClosesAt, now) ||
		!CanJoin(ev.RegistrationClosesAt, now) {
		return ErrRegistrationClosed
	}
	if !WaitlistHasRoom(ev.WaitlistLimited, ev.WaitlistLimit, ev.WaitingCount) {
		return ErrWaitlistFull
	}
	return nil
}

// SeatsToDraw is capacity minus accepted attendees, clamped at zero. An
// unset or non-positive capacity has nothing to draw.
func SeatsToDraw(ev Event) int {
	if ev.Capacity == nil || *ev.Capacity <= 0 {
		return 0
	}
	n := *ev.Capacity - ev.AttendeeCount
	if n < 0 {
		return 0
	}
	return n
}
