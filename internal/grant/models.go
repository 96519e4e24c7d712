package grant

import (
	"errors"
	"strings"
	"time"

	"dataroom/internal/rbac"
)

type PartyType string

const (
	PartyInternal PartyType = "Internal"
	PartyExternal PartyType = "External"
)

// ParsePartyType is case-insensitive. Unknown values are returned as given
// so validation can reject them.
func ParsePartyType(s string) PartyType {
	switch v := strings.TrimSpace(s); strings.ToLower(v) {
	case "internal":
		return PartyInternal
	case "external":
		return PartyExternal
	default:
		return PartyType(v)
	}
}

type Permission string

const PermissionViewOnly Permission = "VIEW_ONLY"

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// Grant is one subject's access to one room.
//
// Invariants:
// - Stored Status is ACTIVE or REVOKED; EXPIRED is derived at read time.
// - Grants are never deleted.
type Grant struct {
	ID     string `json:"grant_id" db:"id"`
	RoomID string `json:"room_id" db:"room_id"`

	SubjectRole     rbac.Role `json:"subject_role" db:"subject_role"`
	SubjectIdentity string    `json:"subject_identity" db:"subject_identity"`
	PartyType       PartyType `json:"party_type" db:"party_type"`

	Permission Permission `json:"permission" db:"permission"`
	ExpiresOn  time.Time  `json:"expires_on" db:"expires_on"`
	Status     Status     `json:"status" db:"status"`

	CreatedBy string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

var (
	ErrNotFound        = errors.New("grant: not found")
	ErrInvalidArgument = errors.New("grant: invalid argument")
)

// EffectiveStatus derives EXPIRED without rewriting the stored row.
func (g Grant) EffectiveStatus(now time.Time) Status {
	if g.Status == StatusRevoked {
		return StatusRevoked
	}
	if g.ExpiresOn.Before(now) {
		return StatusExpired
	}
	return g.Status
}

// Usable reports status ACTIVE and expiresOn >= now.
func (g Grant) Usable(now time.Time) bool {
	return g.EffectiveStatus(now) == StatusActive
}

// Matches scopes a grant to room + exact role and, when identity is given,
// to that identity. Identities compare case-insensitively.
func (g Grant) Matches(roomID string, role rbac.Role, identity string) bool {
	if g.RoomID != roomID || g.SubjectRole != role {
		return false
	}
	if identity == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(g.SubjectIdentity), strings.TrimSpace(identity))
}

func (g Grant) Validate() error {
	if g.ID == "" || g.RoomID == "" || g.SubjectIdentity == "" {
		return ErrInvalidArgument
	}
	if !g.SubjectRole.Valid() || g.ExpiresOn.IsZero() {
		return ErrInvalidArgument
	}
	switch g.PartyType {
	case PartyInternal, PartyExternal:
	default:
		return ErrInvalidArgument
	}
	if g.Permission != PermissionViewOnly {
		return ErrInvalidArgument
	}
	if g.Status != StatusActive && g.Status != StatusRevoked {
		return ErrInvalidArgument
	}
	return nil
}
