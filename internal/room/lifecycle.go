package room

import "time"

// ResolveStatus derives the effective status of r at now.
//
// Rules, in order:
//  1. Legal hold caps the time-derived status at EXPIRED.
//  2. now < expiry is ACTIVE.
//  3. now < expiry + grace is EXPIRED.
//  4. Otherwise SOFT_DELETED, which is eligible for an explicit hard delete.
//
// A forced status is never lowered by the derivation, so the result is
// monotonic in now for a fixed room.
func ResolveStatus(r Room, now time.Time) Status {
	derived := derivedStatus(r, now)
	if r.Status.Valid() && r.Status.rank() > derived.rank() {
		return r.Status
	}
	return derived
}

func derivedStatus(r Room, now time.Time) Status {
	if now.Before(r.ExpiresAt) {
		return StatusActive
	}
	if r.LegalHold {
		return StatusExpired
	}
	if now.Before(GraceEndsAt(r)) {
		return StatusExpired
	}
	return StatusSoftDeleted
}

// GraceEndsAt is the instant the room leaves the EXPIRED window.
func GraceEndsAt(r Room) time.Time {
	return r.ExpiresAt.Add(time.Duration(r.SoftDeleteGraceDays) * 24 * time.Hour)
}

// ApplyLegalHold freezes deletion transitions. Applying twice is a no-op.
func ApplyLegalHold(r *Room, now time.Time) {
	if r.LegalHold {
		return
	}
	r.LegalHold = true
	r.UpdatedAt = now
}

// ReleaseLegalHold lifts the hold. Releasing an unheld room is a no-op.
func ReleaseLegalHold(r *Room, now time.Time) {
	if !r.LegalHold {
		return
	}
	r.LegalHold = false
	r.UpdatedAt = now
}

// ForceSoftDelete moves r to SOFT_DELETED ahead of its grace window.
func ForceSoftDelete(r *Room, now time.Time) error {
	return force(r, now, StatusSoftDeleted)
}

// ForceHardDelete moves r to the terminal HARD_DELETED status.
func ForceHardDelete(r *Room, now time.Time) error {
	return force(r, now, StatusHardDeleted)
}

func force(r *Room, now time.Time, target Status) error {
	if r.LegalHold {
		return ErrInvalidTransition
	}
	if ResolveStatus(*r, now).AtLeast(target) {
		return ErrInvalidTransition
	}
	r.Status = target
	r.UpdatedAt = now
	return nil
}
