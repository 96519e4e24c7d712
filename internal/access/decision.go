package access

import (
	"errors"

	"dataroom/internal/audit"
	"dataroom/internal/rbac"
)

// Subject is the verified caller supplied by the authentication layer.
// Role is the raw claim; the engine parses it and rejects unknown values.
type Subject struct {
	Identity string
	Role     string
}

// Request asks whether Subject may perform Action in RoomID now.
type Request struct {
	Subject    Subject
	RoomID     string
	Action     rbac.Action
	DocumentID string
}

type Outcome string

const (
	Allow Outcome = "ALLOW"
	Deny  Outcome = "DENY"
)

// Decision is the policy answer. A DENY is a normal value, not an error.
//
// Reason is empty on ALLOW. Detail carries the room status sub-reason
// (EXPIRED, SOFT_DELETED, HARD_DELETED) for ROOM_NOT_ACTIVE.
type Decision struct {
	Outcome Outcome      `json:"outcome"`
	Reason  audit.Reason `json:"reason_code,omitempty"`
	Detail  string       `json:"reason_detail,omitempty"`

	// EventSeq is the audit sequence of the event recording this decision.
	EventSeq int64  `json:"event_seq,omitempty"`
	EventID  string `json:"event_id,omitempty"`
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

func allow() Decision { return Decision{Outcome: Allow} }

func deny(reason audit.Reason, detail string) Decision {
	return Decision{Outcome: Deny, Reason: reason, Detail: detail}
}

var (
	// ErrInvalidInput covers unknown rooms, documents, roles and actions.
	// Nothing is audited for such requests.
	ErrInvalidInput = errors.New("access: invalid input")

	// ErrStorageUnavailable means the decision could not be recorded or
	// evaluated; the accompanying Decision is always DENY.
	ErrStorageUnavailable = errors.New("access: storage unavailable")
)

func (d Decision) outcome() audit.Outcome {
	if d.Allowed() {
		return audit.OutcomeAllowed
	}
	return audit.OutcomeDenied
}

// auditActionFor maps a requested action and its decision onto the persisted
// action vocabulary.
func auditActionFor(a rbac.Action, d Decision) audit.Action {
	switch a {
	case rbac.ActionView:
		if d.Allowed() {
			return audit.ActionViewStart
		}
		switch d.Reason {
		case audit.ReasonRoomNotActive:
			return audit.ActionDeniedRoomExpired
		case audit.ReasonExternalSharingDisabled:
			return audit.ActionDeniedExternalSharingOff
		default:
			return audit.ActionDeniedNoGrant
		}
	case rbac.ActionUpload:
		return audit.ActionUploadOpen
	case rbac.ActionReplace:
		return audit.ActionReplaceOpen
	case rbac.ActionDeleteDoc:
		return audit.ActionDeleteDoc
	case rbac.ActionCreateFolder:
		return audit.ActionFolderCreateOpen
	case rbac.ActionInvite:
		return audit.ActionInviteOpen
	}

	if !d.Allowed() && d.Reason != audit.ReasonInvalidTransition {
		return audit.ActionAdminBlocked
	}
	switch a {
	case rbac.ActionApplyLegalHold:
		return audit.ActionApplyLegalHold
	case rbac.ActionReleaseLegalHold:
		return audit.ActionReleaseLegalHold
	case rbac.ActionForceSoftDelete:
		return audit.ActionForceSoftDelete
	case rbac.ActionForceHardDelete:
		return audit.ActionForceHardDelete
	case rbac.ActionRevokeGrant:
		return audit.ActionRevokeGrant
	}
	return audit.ActionAdminBlocked
}
