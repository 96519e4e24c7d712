package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dataroom/internal/audit"
	"dataroom/internal/grant"
	"dataroom/internal/ids"
	"dataroom/internal/rbac"
	"dataroom/internal/room"
)

// errPolicyDenied aborts a room update after a denial has been audited.
var errPolicyDenied = errors.New("access: policy denied")

func (e *Engine) ApplyLegalHold(ctx context.Context, subj Subject, roomID string) (Decision, room.Room, error) {
	return e.runCommand(ctx, subj, roomID, rbac.ActionApplyLegalHold, "", func(r *room.Room, now time.Time) error {
		room.ApplyLegalHold(r, now)
		return nil
	})
}

func (e *Engine) ReleaseLegalHold(ctx context.Context, subj Subject, roomID string) (Decision, room.Room, error) {
	return e.runCommand(ctx, subj, roomID, rbac.ActionReleaseLegalHold, "", func(r *room.Room, now time.Time) error {
		room.ReleaseLegalHold(r, now)
		return nil
	})
}

func (e *Engine) ForceSoftDelete(ctx context.Context, subj Subject, roomID string) (Decision, room.Room, error) {
	return e.runCommand(ctx, subj, roomID, rbac.ActionForceSoftDelete, "", room.ForceSoftDelete)
}

func (e *Engine) ForceHardDelete(ctx context.Context, subj Subject, roomID string) (Decision, room.Room, error) {
	return e.runCommand(ctx, subj, roomID, rbac.ActionForceHardDelete, "", room.ForceHardDelete)
}

// RevokeGrant fails with grant.ErrNotFound, without auditing, for an unknown
// id. Revoking an already revoked grant is allowed and leaves it REVOKED.
func (e *Engine) RevokeGrant(ctx context.Context, subj Subject, grantID string) (Decision, grant.Grant, error) {
	if _, err := validateSubject(subj); err != nil {
		return Decision{}, grant.Grant{}, err
	}
	if e.Grants == nil {
		return Decision{}, grant.Grant{}, errors.New("access: grant store not configured")
	}
	g, err := e.Grants.Get(ctx, grantID)
	if err != nil {
		if errors.Is(err, grant.ErrNotFound) {
			return Decision{}, grant.Grant{}, err
		}
		return deny(audit.ReasonNone, ""), grant.Grant{}, fmt.Errorf("%w: load grant: %w", ErrStorageUnavailable, err)
	}

	revoked := g
	meta := metadata(map[string]string{"grant_id": g.ID, "grantee": g.SubjectIdentity, "grantee_role": string(g.SubjectRole)})
	d, _, err := e.runCommand(ctx, subj, g.RoomID, rbac.ActionRevokeGrant, meta, func(_ *room.Room, now time.Time) error {
		out, err := e.Grants.Revoke(ctx, grantID, now)
		if err != nil {
			return err
		}
		revoked = out
		return nil
	})
	return d, revoked, err
}

// runCommand evaluates an administrative command and applies it under the
// room's write lock. The audit append happens inside the same critical
// section, so a failed append leaves the room unchanged.
func (e *Engine) runCommand(ctx context.Context, subj Subject, roomID string, action rbac.Action, meta string, apply func(r *room.Room, now time.Time) error) (Decision, room.Room, error) {
	role, err := validateSubject(subj)
	if err != nil {
		return Decision{}, room.Room{}, err
	}
	if roomID == "" {
		return Decision{}, room.Room{}, fmt.Errorf("%w: room_id required", ErrInvalidInput)
	}
	if e.Rooms == nil {
		return Decision{}, room.Room{}, errors.New("access: room repository not configured")
	}

	req := Request{Subject: subj, RoomID: roomID, Action: action}
	var (
		d             Decision
		transitionErr error
	)
	updated, err := e.Rooms.Update(ctx, roomID, func(r *room.Room) error {
		pol, err := e.evaluate(ctx, *r, role, subj.Identity, action)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}

		if pol.Allowed() {
			now := e.now()
			if err := apply(r, now); err != nil {
				if !errors.Is(err, room.ErrInvalidTransition) {
					return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
				}
				transitionErr = err
				pol = deny(audit.ReasonInvalidTransition, transitionDetail(*r, now))
			}
		}

		rec, err := e.record(ctx, req, role, pol, auditActionFor(action, pol), "", meta)
		d = rec
		if err != nil {
			return err
		}
		if transitionErr != nil {
			return transitionErr
		}
		if !pol.Allowed() {
			return errPolicyDenied
		}
		return nil
	})

	switch {
	case err == nil:
		e.Metrics.ObserveAdminCommand(string(action), "applied")
		e.logger().Info("admin command applied",
			"room_id", roomID,
			"subject", subj.Identity,
			"command", string(action),
			"status", string(room.ResolveStatus(updated, e.now())),
			"event_seq", d.EventSeq,
		)
		return d, updated, nil
	case errors.Is(err, errPolicyDenied):
		e.Metrics.ObserveAdminCommand(string(action), "denied")
		return d, updated, nil
	case errors.Is(err, room.ErrInvalidTransition):
		e.Metrics.ObserveAdminCommand(string(action), "invalid_transition")
		return d, updated, err
	case errors.Is(err, room.ErrNotFound):
		return Decision{}, room.Room{}, fmt.Errorf("%w: unknown room %q: %w", ErrInvalidInput, roomID, err)
	case errors.Is(err, ErrStorageUnavailable):
		e.Metrics.ObserveAdminCommand(string(action), "unavailable")
		if d.Outcome == "" {
			d = deny(audit.ReasonNone, "")
		}
		return d, updated, err
	default:
		e.Metrics.ObserveAdminCommand(string(action), "unavailable")
		return deny(audit.ReasonNone, ""), updated, fmt.Errorf("%w: update room: %w", ErrStorageUnavailable, err)
	}
}

func transitionDetail(r room.Room, now time.Time) string {
	if r.LegalHold {
		return "LEGAL_HOLD"
	}
	return string(room.ResolveStatus(r, now))
}

// InviteRequest creates a VIEW_ONLY grant for one invitee.
type InviteRequest struct {
	RoomID          string
	InviteeIdentity string
	InviteeRole     string
	PartyType       grant.PartyType
	ExpiresOn       time.Time
}

// Invite evaluates INVITE and, when allowed, creates the grant. One audit
// event is written: GRANT_CREATE on success, INVITE_OPEN when denied.
// Delivery of the invitation is somebody else's job.
func (e *Engine) Invite(ctx context.Context, subj Subject, in InviteRequest) (Decision, grant.Grant, error) {
	role, err := validateSubject(subj)
	if err != nil {
		return Decision{}, grant.Grant{}, err
	}
	now := e.now()
	g, err := e.newInviteGrant(subj, in, now)
	if err != nil {
		return Decision{}, grant.Grant{}, err
	}

	r, err := e.loadRoom(ctx, in.RoomID)
	if err != nil {
		return deny(audit.ReasonNone, ""), grant.Grant{}, err
	}

	req := Request{Subject: subj, RoomID: in.RoomID, Action: rbac.ActionInvite}
	d, err := e.evaluate(ctx, r, role, subj.Identity, rbac.ActionInvite)
	if err != nil {
		return e.failClosedGrant(req, err)
	}
	if !d.Allowed() {
		d, err = e.record(ctx, req, role, d, audit.ActionInviteOpen, "", "")
		return d, grant.Grant{}, err
	}

	if e.Grants == nil {
		return e.failClosedGrant(req, errors.New("grant store not configured"))
	}
	if err := e.Grants.Create(ctx, g); err != nil {
		if errors.Is(err, grant.ErrInvalidArgument) {
			return Decision{}, grant.Grant{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return e.failClosedGrant(req, err)
	}

	meta := metadata(map[string]string{
		"grant_id":     g.ID,
		"grantee":      g.SubjectIdentity,
		"grantee_role": string(g.SubjectRole),
		"party_type":   string(g.PartyType),
		"expires_on":   g.ExpiresOn.UTC().Format(time.RFC3339),
	})
	d, err = e.record(ctx, req, role, d, audit.ActionGrantCreate, "", meta)
	if err != nil {
		// an unaudited grant must not stay usable
		if _, rerr := e.Grants.Revoke(ctx, g.ID, now); rerr != nil {
			e.logger().Error("failed to revoke unaudited grant", "grant_id", g.ID, "err", rerr)
		}
		return d, grant.Grant{}, err
	}
	return d, g, nil
}

func (e *Engine) newInviteGrant(subj Subject, in InviteRequest, now time.Time) (grant.Grant, error) {
	identity := strings.TrimSpace(in.InviteeIdentity)
	if identity == "" {
		return grant.Grant{}, fmt.Errorf("%w: invitee identity required", ErrInvalidInput)
	}
	inviteeRole, err := rbac.ParseRole(in.InviteeRole)
	if err != nil {
		return grant.Grant{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if inviteeRole.HasImplicitRights() {
		return grant.Grant{}, fmt.Errorf("%w: %s does not take grants", ErrInvalidInput, inviteeRole)
	}
	if in.ExpiresOn.IsZero() {
		return grant.Grant{}, fmt.Errorf("%w: expiry required", ErrInvalidInput)
	}
	if in.ExpiresOn.Before(now) {
		return grant.Grant{}, fmt.Errorf("%w: expiry is in the past", ErrInvalidInput)
	}
	party := in.PartyType
	if party == "" {
		party = grant.PartyExternal
	}
	if party != grant.PartyExternal && party != grant.PartyInternal {
		return grant.Grant{}, fmt.Errorf("%w: unknown party type %q", ErrInvalidInput, party)
	}

	return grant.Grant{
		ID:              ids.New(),
		RoomID:          in.RoomID,
		SubjectRole:     inviteeRole,
		SubjectIdentity: identity,
		PartyType:       party,
		Permission:      grant.PermissionViewOnly,
		ExpiresOn:       in.ExpiresOn.UTC(),
		Status:          grant.StatusActive,
		CreatedBy:       subj.Identity,
		CreatedAt:       now,
	}, nil
}

func (e *Engine) failClosedGrant(req Request, err error) (Decision, grant.Grant, error) {
	d, err := e.failClosed(req, err)
	return d, grant.Grant{}, err
}

// RecordNavigation audits ROLE_SWITCH and DEAL_SELECT. These carry no policy
// decision; they are informational events attributed to the subject.
func (e *Engine) RecordNavigation(ctx context.Context, subj Subject, roomID string, kind audit.Action, meta string) (audit.Event, error) {
	role, err := validateSubject(subj)
	if err != nil {
		return audit.Event{}, err
	}
	if kind != audit.ActionRoleSwitch && kind != audit.ActionDealSelect {
		return audit.Event{}, fmt.Errorf("%w: %q is not a navigation event", ErrInvalidInput, kind)
	}
	if _, err := e.loadRoom(ctx, roomID); err != nil {
		return audit.Event{}, err
	}
	return e.appendEvent(ctx, audit.Event{
		RoomID:          roomID,
		SubjectIdentity: subj.Identity,
		SubjectRole:     string(role),
		Action:          kind,
		Outcome:         audit.OutcomeAllowed,
		Metadata:        meta,
	})
}

func metadata(m map[string]string) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
