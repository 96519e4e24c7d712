package room

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRoom() Room {
	return Room{
		ID:                     "room-1",
		DealID:                 "deal-1",
		Status:                 StatusActive,
		ExpiresAt:              t0.Add(10 * 24 * time.Hour),
		SoftDeleteGraceDays:    30,
		ExternalSharingEnabled: true,
	}
}

func TestResolveStatus_TimeDerived(t *testing.T) {
	r := testRoom()
	cases := []struct {
		at   time.Time
		want Status
	}{
		{t0, StatusActive},
		{r.ExpiresAt.Add(-time.Nanosecond), StatusActive},
		{r.ExpiresAt, StatusExpired},
		{GraceEndsAt(r).Add(-time.Second), StatusExpired},
		{GraceEndsAt(r), StatusSoftDeleted},
		{GraceEndsAt(r).Add(365 * 24 * time.Hour), StatusSoftDeleted},
	}
	for _, tc := range cases {
		if got := ResolveStatus(r, tc.at); got != tc.want {
			t.Fatalf("at %v: expected %s, got %s", tc.at, tc.want, got)
		}
	}
}

func TestResolveStatus_MonotonicInTime(t *testing.T) {
	for _, hold := range []bool{false, true} {
		r := testRoom()
		r.LegalHold = hold
		prev := ResolveStatus(r, t0)
		for h := 0; h < 24*60; h += 7 {
			cur := ResolveStatus(r, t0.Add(time.Duration(h)*time.Hour))
			if !cur.AtLeast(prev) {
				t.Fatalf("hold=%v: status went from %s back to %s at +%dh", hold, prev, cur, h)
			}
			prev = cur
		}
	}
}

func TestResolveStatus_LegalHoldFreezesDeletion(t *testing.T) {
	r := testRoom()
	now := t0.Add(time.Hour)
	ApplyLegalHold(&r, now)

	later := GraceEndsAt(r).Add(90 * 24 * time.Hour)
	if got := ResolveStatus(r, later); got != StatusExpired {
		t.Fatalf("expected EXPIRED under legal hold, got %s", got)
	}
	if got := ResolveStatus(r, t0); got != StatusActive {
		t.Fatalf("expected ACTIVE before expiry under hold, got %s", got)
	}

	ReleaseLegalHold(&r, later)
	if got := ResolveStatus(r, later); got != StatusSoftDeleted {
		t.Fatalf("expected SOFT_DELETED after release, got %s", got)
	}
}

func TestForcedStatusIsNeverLowered(t *testing.T) {
	r := testRoom()
	if err := ForceSoftDelete(&r, t0); err != nil {
		t.Fatalf("force soft delete: %v", err)
	}
	if got := ResolveStatus(r, t0); got != StatusSoftDeleted {
		t.Fatalf("expected SOFT_DELETED, got %s", got)
	}
	// a hold applied afterwards does not resurrect the room
	ApplyLegalHold(&r, t0)
	if got := ResolveStatus(r, t0); got != StatusSoftDeleted {
		t.Fatalf("expected forced status to stick, got %s", got)
	}
}

func TestForceDelete_Transitions(t *testing.T) {
	t.Run("hard delete fails under legal hold", func(t *testing.T) {
		r := testRoom()
		ApplyLegalHold(&r, t0)
		if err := ForceHardDelete(&r, t0); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if r.Status != StatusActive {
			t.Fatalf("room must be unchanged, got %s", r.Status)
		}
	})
	t.Run("soft delete fails under legal hold", func(t *testing.T) {
		r := testRoom()
		ApplyLegalHold(&r, t0)
		if err := ForceSoftDelete(&r, t0); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
	t.Run("hard delete is terminal", func(t *testing.T) {
		r := testRoom()
		if err := ForceHardDelete(&r, t0); err != nil {
			t.Fatalf("hard delete: %v", err)
		}
		if err := ForceHardDelete(&r, t0); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected second hard delete to fail, got %v", err)
		}
		if err := ForceSoftDelete(&r, t0); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected soft delete after hard delete to fail, got %v", err)
		}
	})
	t.Run("soft delete of a room past grace is redundant", func(t *testing.T) {
		r := testRoom()
		if err := ForceSoftDelete(&r, GraceEndsAt(r)); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if err := ForceHardDelete(&r, GraceEndsAt(r)); err != nil {
			t.Fatalf("hard delete past grace: %v", err)
		}
	})
}

func TestLegalHoldTogglesAreIdempotent(t *testing.T) {
	r := testRoom()
	ApplyLegalHold(&r, t0)
	stamp := r.UpdatedAt
	ApplyLegalHold(&r, t0.Add(time.Hour))
	if !r.LegalHold || r.UpdatedAt != stamp {
		t.Fatalf("second apply must be a no-op")
	}
	ReleaseLegalHold(&r, t0.Add(2*time.Hour))
	ReleaseLegalHold(&r, t0.Add(3*time.Hour))
	if r.LegalHold || !r.UpdatedAt.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("second release must be a no-op")
	}
}
