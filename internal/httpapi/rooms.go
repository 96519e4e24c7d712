package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"dataroom/internal/access"
	"dataroom/internal/audit"
	"dataroom/internal/document"
	"dataroom/internal/grant"
	"dataroom/internal/ids"
	"dataroom/internal/rbac"
	"dataroom/internal/room"

	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	RoomID                 string    `json:"room_id,omitempty"`
	DealID                 string    `json:"deal_id"`
	IssuerOrg              string    `json:"issuer_org,omitempty"`
	ExpiresAt              time.Time `json:"expires_at"`
	SoftDeleteGraceDays    int       `json:"soft_delete_grace_days"`
	ExternalSharingEnabled bool      `json:"external_sharing_enabled"`
}

type roomResponse struct {
	room.Room
	EffectiveStatus room.Status `json:"effective_status"`
	GraceEndsAt     time.Time   `json:"grace_ends_at"`
}

func (h Handlers) roomView(r room.Room) roomResponse {
	return roomResponse{Room: r, EffectiveStatus: room.ResolveStatus(r, h.now()), GraceEndsAt: room.GraceEndsAt(r)}
}

// CreateRoom provisions a room for a deal. Route-gated to ISSUER (and ADMIN).
func (h Handlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	now := h.now()
	r := room.Room{
		ID:                     strings.TrimSpace(req.RoomID),
		DealID:                 strings.TrimSpace(req.DealID),
		IssuerOrg:              req.IssuerOrg,
		Status:                 room.StatusActive,
		ExpiresAt:              req.ExpiresAt.UTC(),
		SoftDeleteGraceDays:    req.SoftDeleteGraceDays,
		ExternalSharingEnabled: req.ExternalSharingEnabled,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if err := h.Rooms.Create(c.Request.Context(), r); err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusCreated, h.roomView(r))
}

func (h Handlers) GetRoom(c *gin.Context) {
	r, err := h.Rooms.Get(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusOK, h.roomView(r))
}

type decisionRequest struct {
	Action     string `json:"action"`
	DocumentID string `json:"document_id,omitempty"`
}

// Decide answers a non-administrative access request and audits it.
func (h Handlers) Decide(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Engine.Decide(c.Request.Context(), access.Request{
		Subject:    subj,
		RoomID:     c.Param("room_id"),
		Action:     rbac.Action(strings.ToUpper(strings.TrimSpace(req.Action))),
		DocumentID: req.DocumentID,
	})
	if err != nil {
		respondError(c, d, err)
		return
	}
	respondDecision(c, d, nil)
}

type registerDocumentRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	FolderPath string `json:"folder_path"`
	Name       string `json:"name"`
	PageCount  int    `json:"page_count"`
}

// RegisterDocument records metadata for an uploaded file after an UPLOAD
// decision. File bytes never pass through this service.
func (h Handlers) RegisterDocument(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	var req registerDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	roomID := c.Param("room_id")
	doc := document.Document{
		ID:         strings.TrimSpace(req.DocumentID),
		RoomID:     roomID,
		FolderPath: req.FolderPath,
		Name:       strings.TrimSpace(req.Name),
		PageCount:  req.PageCount,
		Version:    1,
		CreatedAt:  h.now(),
	}
	if doc.ID == "" {
		doc.ID = ids.New()
	}
	if err := doc.Validate(); err != nil {
		respondError(c, access.Decision{}, err)
		return
	}

	d, err := h.Engine.Decide(c.Request.Context(), access.Request{Subject: subj, RoomID: roomID, Action: rbac.ActionUpload})
	if err != nil {
		respondError(c, d, err)
		return
	}
	if !d.Allowed() {
		respondDecision(c, d, nil)
		return
	}
	if err := h.Documents.Create(c.Request.Context(), doc); err != nil {
		respondError(c, d, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"decision": d, "document": doc})
}

type inviteRequest struct {
	Identity  string    `json:"identity"`
	Role      string    `json:"role"`
	PartyType string    `json:"party_type,omitempty"`
	ExpiresOn time.Time `json:"expires_on"`
}

func (h Handlers) Invite(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, g, err := h.Engine.Invite(c.Request.Context(), subj, access.InviteRequest{
		RoomID:          c.Param("room_id"),
		InviteeIdentity: req.Identity,
		InviteeRole:     strings.ToUpper(strings.TrimSpace(req.Role)),
		PartyType:       grant.ParsePartyType(req.PartyType),
		ExpiresOn:       req.ExpiresOn,
	})
	if err != nil {
		respondError(c, d, err)
		return
	}
	if !d.Allowed() {
		respondDecision(c, d, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"decision": d, "grant": g})
}

type grantResponse struct {
	grant.Grant
	EffectiveStatus grant.Status `json:"effective_status"`
}

// ListGrants is route-gated to ISSUER (and ADMIN).
func (h Handlers) ListGrants(c *gin.Context) {
	rows, err := h.Grants.ListByRoom(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	now := h.now()
	out := make([]grantResponse, 0, len(rows))
	for _, g := range rows {
		out = append(out, grantResponse{Grant: g, EffectiveStatus: g.EffectiveStatus(now)})
	}
	c.JSON(http.StatusOK, gin.H{"grants": out})
}

func (h Handlers) RevokeGrant(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	d, g, err := h.Engine.RevokeGrant(c.Request.Context(), subj, c.Param("grant_id"))
	if err != nil {
		respondError(c, d, err)
		return
	}
	if !d.Allowed() {
		respondDecision(c, d, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": d, "grant": g})
}

// AdminRoomCommand adapts one of the engine's lifecycle commands. Every
// attempt reaches the engine so blocked attempts are audited too.
func (h Handlers) AdminRoomCommand(action rbac.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		subj, ok := subject(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		roomID := c.Param("room_id")

		var (
			d   access.Decision
			r   room.Room
			err error
		)
		switch action {
		case rbac.ActionApplyLegalHold:
			d, r, err = h.Engine.ApplyLegalHold(ctx, subj, roomID)
		case rbac.ActionReleaseLegalHold:
			d, r, err = h.Engine.ReleaseLegalHold(ctx, subj, roomID)
		case rbac.ActionForceSoftDelete:
			d, r, err = h.Engine.ForceSoftDelete(ctx, subj, roomID)
		case rbac.ActionForceHardDelete:
			d, r, err = h.Engine.ForceHardDelete(ctx, subj, roomID)
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unsupported command"})
			return
		}
		if err != nil {
			respondError(c, d, err)
			return
		}
		if !d.Allowed() {
			respondDecision(c, d, nil)
			return
		}
		respondDecision(c, d, gin.H{"room": h.roomView(r)})
	}
}

type navigationRequest struct {
	Action string `json:"action"`
	// Target is the role or deal selected, recorded as metadata.
	Target string `json:"target,omitempty"`
}

// RecordNavigation audits ROLE_SWITCH and DEAL_SELECT.
func (h Handlers) RecordNavigation(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	var req navigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	meta := ""
	if req.Target != "" {
		b, err := json.Marshal(map[string]string{"target": req.Target})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid target"})
			return
		}
		meta = string(b)
	}
	ev, err := h.Engine.RecordNavigation(c.Request.Context(), subj, c.Param("room_id"),
		audit.Action(strings.ToUpper(strings.TrimSpace(req.Action))), meta)
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}
