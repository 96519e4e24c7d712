package rbac

import (
	"errors"
	"strings"
)

// Action is a requestable operation against a data room.
type Action string

const (
	ActionView         Action = "VIEW"
	ActionUpload       Action = "UPLOAD"
	ActionReplace      Action = "REPLACE"
	ActionDeleteDoc    Action = "DELETE_DOC"
	ActionCreateFolder Action = "CREATE_FOLDER"
	ActionInvite       Action = "INVITE"

	// Administrative commands (category ADMIN_ACTIONS).
	ActionApplyLegalHold   Action = "APPLY_LEGAL_HOLD"
	ActionReleaseLegalHold Action = "RELEASE_LEGAL_HOLD"
	ActionForceSoftDelete  Action = "FORCE_SOFT_DELETE"
	ActionForceHardDelete  Action = "FORCE_HARD_DELETE"
	ActionRevokeGrant      Action = "REVOKE_GRANT"
)

var ErrUnknownAction = errors.New("rbac: unknown action")

// Category groups actions the way the permission table does.
type Category string

const (
	CategoryView          Category = "VIEW"
	CategoryManageContent Category = "MANAGE_CONTENT"
	CategoryCreateFolder  Category = "CREATE_FOLDER"
	CategoryInvite        Category = "INVITE"
	CategoryAdmin         Category = "ADMIN_ACTIONS"
)

// Entry is one cell of the permission table.
type Entry int

const (
	Deny Entry = iota
	Allow
	// GrantGated allows the category statically but requires an active,
	// unexpired, room-scoped grant for the exact role.
	GrantGated
)

func (e Entry) String() string {
	switch e {
	case Allow:
		return "allow"
	case GrantGated:
		return "grant-gated"
	default:
		return "deny"
	}
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := CategoryOf(a); err != nil {
		return "", err
	}
	return a, nil
}

// CategoryOf maps an action to its table row.
func CategoryOf(a Action) (Category, error) {
	switch a {
	case ActionView:
		return CategoryView, nil
	case ActionUpload, ActionReplace, ActionDeleteDoc:
		return CategoryManageContent, nil
	case ActionCreateFolder:
		return CategoryCreateFolder, nil
	case ActionInvite:
		return CategoryInvite, nil
	case ActionApplyLegalHold, ActionReleaseLegalHold, ActionForceSoftDelete, ActionForceHardDelete, ActionRevokeGrant:
		return CategoryAdmin, nil
	default:
		return "", ErrUnknownAction
	}
}

// IsAdminCommand reports whether a belongs to ADMIN_ACTIONS.
func IsAdminCommand(a Action) bool {
	c, err := CategoryOf(a)
	return err == nil && c == CategoryAdmin
}

// RequiresActiveRoom reports whether the room must resolve to ACTIVE before
// the action is considered. Admin commands must work on expired rooms.
func RequiresActiveRoom(a Action) bool {
	c, err := CategoryOf(a)
	if err != nil {
		return true
	}
	return c != CategoryAdmin
}

// Matrix is the static (role, category) policy. It does not look at room
// state or grants.
type Matrix struct {
	table map[Category]map[Role]Entry
}

// DefaultMatrix returns the data room policy:
//
//	               ISSUER ADMIN MARKET_MAKER INVESTOR EXTERNAL
//	VIEW           yes    yes   grant        grant    grant
//	MANAGE_CONTENT yes    yes   no           no       no
//	CREATE_FOLDER  yes    yes   no           no       no
//	INVITE         yes    yes   no           no       no
//	ADMIN_ACTIONS  no     yes   no           no       no
func DefaultMatrix() Matrix {
	managed := map[Role]Entry{RoleIssuer: Allow, RoleAdmin: Allow}
	return Matrix{table: map[Category]map[Role]Entry{
		CategoryView: {
			RoleIssuer:      Allow,
			RoleAdmin:       Allow,
			RoleMarketMaker: GrantGated,
			RoleInvestor:    GrantGated,
			RoleExternal:    GrantGated,
		},
		CategoryManageContent: managed,
		CategoryCreateFolder:  managed,
		CategoryInvite:        managed,
		CategoryAdmin:         {RoleAdmin: Allow},
	}}
}

// Entry returns the table cell; unknown roles or actions are denied.
func (m Matrix) Entry(role Role, a Action) Entry {
	c, err := CategoryOf(a)
	if err != nil {
		return Deny
	}
	row, ok := m.table[c]
	if !ok {
		return Deny
	}
	return row[role]
}

// IsRoleAllowed reports whether the static table lets role attempt a. A
// grant-gated cell counts as allowed here; the grant check happens later.
func (m Matrix) IsRoleAllowed(role Role, a Action) bool {
	return m.Entry(role, a) != Deny
}

// IsGrantGated reports whether the cell needs a grant lookup.
func (m Matrix) IsGrantGated(role Role, a Action) bool {
	return m.Entry(role, a) == GrantGated
}
