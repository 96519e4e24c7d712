package rbac

import (
	"errors"
	"strings"
)

// Role is the subject role claimed by the authentication collaborator.
// Keep values stable; they are persisted on grants and audit events.
type Role string

const (
	RoleIssuer      Role = "ISSUER"
	RoleMarketMaker Role = "MARKET_MAKER"
	RoleInvestor    Role = "INVESTOR"
	RoleExternal    Role = "EXTERNAL"
	RoleAdmin       Role = "ADMIN"
)

var ErrUnknownRole = errors.New("rbac: unknown role")

// Roles lists every recognised role.
func Roles() []Role {
	return []Role{RoleIssuer, RoleMarketMaker, RoleInvestor, RoleExternal, RoleAdmin}
}

// ParseRole accepts the canonical identifiers as well as display labels such
// as "Market Maker".
func ParseRole(s string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, "-", "_")
	r := Role(v)
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleIssuer, RoleMarketMaker, RoleInvestor, RoleExternal, RoleAdmin:
		return true
	default:
		return false
	}
}

// HasImplicitRights reports whether the role manages rooms without a grant row.
func (r Role) HasImplicitRights() bool { return r == RoleIssuer || r == RoleAdmin }

func IsAdmin(role string) bool { return Role(role) == RoleAdmin }

// Label is the human-readable form used in reports.
func (r Role) Label() string {
	switch r {
	case RoleIssuer:
		return "Issuer"
	case RoleMarketMaker:
		return "Market Maker"
	case RoleInvestor:
		return "Investor"
	case RoleExternal:
		return "External"
	case RoleAdmin:
		return "Admin"
	default:
		return string(r)
	}
}
