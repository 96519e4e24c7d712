package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dataroom/internal/audit"
	"dataroom/internal/clock"
	"dataroom/internal/document"
	"dataroom/internal/grant"
	"dataroom/internal/obs"
	"dataroom/internal/rbac"
	"dataroom/internal/room"
)

// Auditor is the append side of the audit log.
type Auditor interface {
	Append(ctx context.Context, e audit.Event) (audit.Event, error)
}

// Engine answers "can subject S perform action A on document D in room R now?"
// and records exactly one audit event per answer.
//
// Priority (first match wins):
//  1. Room not ACTIVE, for actions that need an active room
//  2. EXTERNAL viewer while external sharing is off
//  3. Static matrix denies the role
//  4. Grant-gated cell without a usable grant
//  5. Allow
//
// The decision path takes no global lock. Administrative commands run the
// same evaluation under the room's write lock (see admin.go).
type Engine struct {
	Rooms     room.Repository
	Grants    grant.Store
	Documents document.Repository
	Audit     Auditor
	Matrix    rbac.Matrix

	Clock   clock.Clock
	Log     *slog.Logger
	Metrics *obs.Metrics
}

func NewEngine(rooms room.Repository, grants grant.Store, docs document.Repository, auditor Auditor) *Engine {
	return &Engine{
		Rooms:     rooms,
		Grants:    grants,
		Documents: docs,
		Audit:     auditor,
		Matrix:    rbac.DefaultMatrix(),
		Clock:     clock.Real(),
		Log:       slog.Default(),
	}
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}

func (e *Engine) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// Decide evaluates a non-administrative request. Administrative commands
// go through the methods in admin.go, which mutate and audit atomically.
func (e *Engine) Decide(ctx context.Context, req Request) (Decision, error) {
	return e.decide(ctx, req, "")
}

// DecideForSession is Decide with the event linked to a viewer session id
// minted by the caller before the decision.
func (e *Engine) DecideForSession(ctx context.Context, req Request, sessionID string) (Decision, error) {
	return e.decide(ctx, req, sessionID)
}

func (e *Engine) decide(ctx context.Context, req Request, sessionID string) (Decision, error) {
	role, err := validateSubject(req.Subject)
	if err != nil {
		return Decision{}, err
	}
	if _, err := rbac.CategoryOf(req.Action); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if rbac.IsAdminCommand(req.Action) {
		return Decision{}, fmt.Errorf("%w: %s is an administrative command", ErrInvalidInput, req.Action)
	}

	r, err := e.loadRoom(ctx, req.RoomID)
	if err != nil {
		return deny(audit.ReasonNone, ""), err
	}
	if err := e.checkDocument(ctx, req.RoomID, req.DocumentID); err != nil {
		return deny(audit.ReasonNone, ""), err
	}

	d, err := e.evaluate(ctx, r, role, req.Subject.Identity, req.Action)
	if err != nil {
		return e.failClosed(req, err)
	}

	return e.record(ctx, req, role, d, auditActionFor(req.Action, d), sessionID, "")
}

// evaluate is the pure policy pipeline over an already loaded room.
func (e *Engine) evaluate(ctx context.Context, r room.Room, role rbac.Role, identity string, a rbac.Action) (Decision, error) {
	now := e.now()

	// 1) Room lifecycle fast path
	if rbac.RequiresActiveRoom(a) {
		if st := room.ResolveStatus(r, now); st != room.StatusActive {
			return deny(audit.ReasonRoomNotActive, string(st)), nil
		}
	}

	// 2) External sharing switch
	if a == rbac.ActionView && role == rbac.RoleExternal && !r.ExternalSharingEnabled {
		return deny(audit.ReasonExternalSharingDisabled, ""), nil
	}

	// 3) Static matrix
	entry := e.Matrix.Entry(role, a)
	if entry == rbac.Deny {
		return deny(audit.ReasonRoleNotPermitted, ""), nil
	}

	// 4) Grant gate
	if entry == rbac.GrantGated {
		if e.Grants == nil {
			return Decision{}, errors.New("access: grant store not configured")
		}
		_, ok, err := e.Grants.FindActiveGrant(ctx, r.ID, role, identity, now)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return deny(audit.ReasonNoActiveGrant, ""), nil
		}
	}

	// 5) Implicit rights or a usable grant
	return allow(), nil
}

// record appends the single audit event for a decision. If the append
// fails the caller gets DENY regardless of the policy result.
func (e *Engine) record(ctx context.Context, req Request, role rbac.Role, d Decision, action audit.Action, sessionID, metadata string) (Decision, error) {
	ev, err := e.appendEvent(ctx, audit.Event{
		RoomID:          req.RoomID,
		SubjectIdentity: req.Subject.Identity,
		SubjectRole:     string(role),
		Action:          action,
		DocumentID:      req.DocumentID,
		SessionID:       sessionID,
		Outcome:         d.outcome(),
		ReasonCode:      d.Reason,
		ReasonDetail:    d.Detail,
		Metadata:        metadata,
	})
	if err != nil {
		e.Metrics.ObserveDecision(string(req.Action), string(Deny), string(audit.ReasonAuditUnavailable))
		return deny(audit.ReasonAuditUnavailable, ""), err
	}

	d.EventSeq = ev.Seq
	d.EventID = ev.ID
	e.Metrics.ObserveDecision(string(req.Action), string(d.Outcome), string(d.Reason))
	if !d.Allowed() {
		e.logger().Info("access denied",
			"room_id", req.RoomID,
			"subject", req.Subject.Identity,
			"role", string(role),
			"action", string(req.Action),
			"reason", string(d.Reason),
			"detail", d.Detail,
			"event_seq", ev.Seq,
		)
	}
	return d, nil
}

func (e *Engine) appendEvent(ctx context.Context, ev audit.Event) (audit.Event, error) {
	if e.Audit == nil {
		e.Metrics.AuditAppendFailed()
		return audit.Event{}, fmt.Errorf("%w: audit log not configured", ErrStorageUnavailable)
	}
	stored, err := e.Audit.Append(ctx, ev)
	if err != nil {
		e.Metrics.AuditAppendFailed()
		e.logger().Error("audit unavailable, failing closed",
			"room_id", ev.RoomID,
			"action", string(ev.Action),
			"err", err,
		)
		return audit.Event{}, fmt.Errorf("%w: audit append: %w", ErrStorageUnavailable, err)
	}
	return stored, nil
}

// failClosed handles a backend failure while evaluating policy.
func (e *Engine) failClosed(req Request, err error) (Decision, error) {
	e.logger().Error("policy evaluation failed, failing closed",
		"room_id", req.RoomID,
		"action", string(req.Action),
		"err", err,
	)
	e.Metrics.ObserveDecision(string(req.Action), string(Deny), "STORAGE_UNAVAILABLE")
	return deny(audit.ReasonNone, ""), fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func validateSubject(s Subject) (rbac.Role, error) {
	if strings.TrimSpace(s.Identity) == "" {
		return "", fmt.Errorf("%w: subject identity required", ErrInvalidInput)
	}
	role, err := rbac.ParseRole(s.Role)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return role, nil
}

func (e *Engine) loadRoom(ctx context.Context, roomID string) (room.Room, error) {
	if roomID == "" {
		return room.Room{}, fmt.Errorf("%w: room_id required", ErrInvalidInput)
	}
	if e.Rooms == nil {
		return room.Room{}, errors.New("access: room repository not configured")
	}
	r, err := e.Rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return room.Room{}, fmt.Errorf("%w: unknown room %q: %w", ErrInvalidInput, roomID, err)
		}
		return room.Room{}, fmt.Errorf("%w: load room: %w", ErrStorageUnavailable, err)
	}
	return r, nil
}

// checkDocument requires the document, when given, to exist in the room.
func (e *Engine) checkDocument(ctx context.Context, roomID, documentID string) error {
	if documentID == "" {
		return nil
	}
	if e.Documents == nil {
		return errors.New("access: document repository not configured")
	}
	d, err := e.Documents.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return fmt.Errorf("%w: unknown document %q: %w", ErrInvalidInput, documentID, err)
		}
		return fmt.Errorf("%w: load document: %w", ErrStorageUnavailable, err)
	}
	if d.RoomID != roomID {
		return fmt.Errorf("%w: document %q is not in room %q: %w", ErrInvalidInput, documentID, roomID, document.ErrNotFound)
	}
	return nil
}
