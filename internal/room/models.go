package room

import (
	"errors"
	"time"
)

// Status is ordered: a room only moves forward through these values.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusExpired     Status = "EXPIRED"
	StatusSoftDeleted Status = "SOFT_DELETED"
	StatusHardDeleted Status = "HARD_DELETED"
)

func (s Status) rank() int {
	switch s {
	case StatusActive:
		return 0
	case StatusExpired:
		return 1
	case StatusSoftDeleted:
		return 2
	case StatusHardDeleted:
		return 3
	default:
		return -1
	}
}

func (s Status) Valid() bool { return s.rank() >= 0 }

// AtLeast reports whether s is at or beyond other in lifecycle order.
func (s Status) AtLeast(other Status) bool { return s.rank() >= other.rank() }

// Room is one deal's data room.
//
// Invariants:
// - Status holds the administratively forced status (ACTIVE when none was forced).
//   The effective status is always ResolveStatus(room, now).
// - Rows are never deleted; HARD_DELETED is terminal.
type Room struct {
	ID        string `json:"room_id" db:"id"`
	DealID    string `json:"deal_id" db:"deal_id"`
	IssuerOrg string `json:"issuer_org,omitempty" db:"issuer_org"`

	Status Status `json:"status" db:"status"`

	ExpiresAt           time.Time `json:"expires_at" db:"expires_at"`
	SoftDeleteGraceDays int       `json:"soft_delete_grace_days" db:"soft_delete_grace_days"`

	LegalHold              bool `json:"legal_hold" db:"legal_hold"`
	ExternalSharingEnabled bool `json:"external_sharing_enabled" db:"external_sharing_enabled"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var (
	ErrNotFound          = errors.New("room: not found")
	ErrInvalidArgument   = errors.New("room: invalid argument")
	ErrInvalidTransition = errors.New("room: invalid transition")
	ErrAlreadyExists     = errors.New("room: already exists")
)

func (r Room) Validate() error {
	if r.ID == "" || r.DealID == "" {
		return ErrInvalidArgument
	}
	if r.ExpiresAt.IsZero() || r.SoftDeleteGraceDays < 0 {
		return ErrInvalidArgument
	}
	if r.Status != "" && !r.Status.Valid() {
		return ErrInvalidArgument
	}
	return nil
}
