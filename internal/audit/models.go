package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted, including after a room is hard deleted.
// - Seq is assigned at append time; Seq order is the order of occurrence and visibility.
// - RoomID, Action and Outcome are required.
//
// Storage (Postgres): table audit_events, INSERT-only, seq bigint primary key.
type Event struct {
	Seq int64  `json:"seq" db:"seq"`
	ID  string `json:"event_id" db:"id"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`

	RoomID          string `json:"room_id" db:"room_id"`
	SubjectIdentity string `json:"subject_identity" db:"subject_identity"`
	SubjectRole     string `json:"subject_role" db:"subject_role"`

	Action Action `json:"action" db:"action"`

	// Empty means no target document.
	DocumentID string `json:"document_id,omitempty" db:"document_id"`
	SessionID  string `json:"session_id,omitempty" db:"session_id"`

	Outcome      Outcome `json:"outcome" db:"outcome"`
	ReasonCode   Reason  `json:"reason_code,omitempty" db:"reason_code"`
	ReasonDetail string  `json:"reason_detail,omitempty" db:"reason_detail"`

	// Metadata is optional JSON text.
	Metadata string `json:"metadata,omitempty" db:"metadata"`
}

// Action identifiers are persisted; never rename them.
type Action string

const (
	ActionViewStart       Action = "VIEW_START"
	ActionViewEnd         Action = "VIEW_END"
	ActionPageNext        Action = "PAGE_NEXT"
	ActionPagePrev        Action = "PAGE_PREV"
	ActionZoomIn          Action = "ZOOM_IN"
	ActionZoomOut         Action = "ZOOM_OUT"
	ActionFullscreen      Action = "FULLSCREEN"
	ActionPrintBlocked    Action = "PRINT_BLOCKED"
	ActionDownloadBlocked Action = "DOWNLOAD_BLOCKED"
	ActionSessionTimeout  Action = "SESSION_TIMEOUT"

	ActionDeniedRoomExpired        Action = "ACCESS_DENIED_ROOM_EXPIRED"
	ActionDeniedExternalSharingOff Action = "ACCESS_DENIED_EXTERNAL_SHARING_OFF"
	ActionDeniedNoGrant            Action = "ACCESS_DENIED_NO_GRANT"

	ActionUploadOpen       Action = "UPLOAD_OPEN"
	ActionReplaceOpen      Action = "REPLACE_OPEN"
	ActionDeleteDoc        Action = "DELETE_DOC"
	ActionInviteOpen       Action = "INVITE_OPEN"
	ActionFolderCreateOpen Action = "FOLDER_CREATE_OPEN"

	ActionApplyLegalHold   Action = "APPLY_LEGAL_HOLD"
	ActionReleaseLegalHold Action = "RELEASE_LEGAL_HOLD"
	ActionForceSoftDelete  Action = "FORCE_SOFT_DELETE"
	ActionForceHardDelete  Action = "FORCE_HARD_DELETE"
	ActionRevokeGrant      Action = "REVOKE_GRANT"
	ActionGrantCreate      Action = "GRANT_CREATE"
	ActionAdminBlocked     Action = "ADMIN_BLOCKED"

	ActionRoleSwitch Action = "ROLE_SWITCH"
	ActionDealSelect Action = "DEAL_SELECT"
)

var knownActions = map[Action]struct{}{
	ActionViewStart: {}, ActionViewEnd: {}, ActionPageNext: {}, ActionPagePrev: {},
	ActionZoomIn: {}, ActionZoomOut: {}, ActionFullscreen: {}, ActionPrintBlocked: {},
	ActionDownloadBlocked: {}, ActionSessionTimeout: {},
	ActionDeniedRoomExpired: {}, ActionDeniedExternalSharingOff: {}, ActionDeniedNoGrant: {},
	ActionUploadOpen: {}, ActionReplaceOpen: {}, ActionDeleteDoc: {}, ActionInviteOpen: {},
	ActionFolderCreateOpen: {},
	ActionApplyLegalHold: {}, ActionReleaseLegalHold: {}, ActionForceSoftDelete: {},
	ActionForceHardDelete: {}, ActionRevokeGrant: {}, ActionGrantCreate: {}, ActionAdminBlocked: {},
	ActionRoleSwitch: {}, ActionDealSelect: {},
}

func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

type Outcome string

const (
	OutcomeAllowed Outcome = "ALLOWED"
	OutcomeDenied  Outcome = "DENIED"
)

func (o Outcome) Valid() bool { return o == OutcomeAllowed || o == OutcomeDenied }

// Reason is the machine-readable cause attached to DENIED or informational events.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonRoomNotActive           Reason = "ROOM_NOT_ACTIVE"
	ReasonExternalSharingDisabled Reason = "EXTERNAL_SHARING_DISABLED"
	ReasonRoleNotPermitted        Reason = "ROLE_NOT_PERMITTED"
	ReasonNoActiveGrant           Reason = "NO_ACTIVE_GRANT"
	ReasonInvalidTransition       Reason = "INVALID_TRANSITION"
	ReasonExportBlocked           Reason = "EXPORT_BLOCKED"
	ReasonAuditUnavailable        Reason = "AUDIT_UNAVAILABLE"
)

// Filter narrows a read. Zero fields are ignored.
type Filter struct {
	RoomID          string
	SubjectIdentity string
	Action          Action
	Outcome         Outcome
	From            time.Time // inclusive
	To              time.Time // exclusive
	AfterSeq        int64
	Limit           int
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page is one ascending-Seq slice of the log.
type Page struct {
	Events []Event `json:"events"`
	// NextAfterSeq is the cursor for the following page; zero when HasMore is false.
	NextAfterSeq int64 `json:"next_after_seq,omitempty"`
	HasMore      bool  `json:"has_more"`
}
