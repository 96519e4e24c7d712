package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dataroom/internal/access"
	"dataroom/internal/audit"
	"dataroom/internal/auth"
	"dataroom/internal/clock"
	"dataroom/internal/document"
	"dataroom/internal/grant"
	"dataroom/internal/rbac"
	"dataroom/internal/reporting"
	"dataroom/internal/room"
	"dataroom/internal/viewer"
	"dataroom/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Engine    *access.Engine
	Viewer    *viewer.Manager
	Rooms     room.Repository
	Documents document.Repository
	Grants    grant.Store
	Audit     *audit.Log
	Reports   *reporting.Service
	Clock     clock.Clock
}

func (h Handlers) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now().UTC()
}

// subject reads the verified caller placed in the request context by
// auth.RequireAccessToken.
func subject(c *gin.Context) (access.Subject, bool) {
	id, err := auth.Identity(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "subject identity required"})
		return access.Subject{}, false
	}
	role, err := auth.Role(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
		return access.Subject{}, false
	}
	return access.Subject{Identity: id, Role: role}, true
}

// respondDecision writes a completed decision. A policy DENY is 403.
func respondDecision(c *gin.Context, d access.Decision, body gin.H) {
	status := http.StatusOK
	if !d.Allowed() {
		status = http.StatusForbidden
	}
	if body == nil {
		body = gin.H{}
	}
	body["decision"] = d
	c.JSON(status, body)
}

// respondError maps service errors onto HTTP status codes. When the failure
// came with a DENY decision it is included so callers see the reason.
func respondError(c *gin.Context, d access.Decision, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, room.ErrNotFound), errors.Is(err, document.ErrNotFound),
		errors.Is(err, grant.ErrNotFound), errors.Is(err, viewer.ErrSessionNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, access.ErrInvalidInput), errors.Is(err, viewer.ErrUnknownInteraction),
		errors.Is(err, audit.ErrInvalidFilter), errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, room.ErrInvalidArgument), errors.Is(err, document.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, viewer.ErrNotAllowed):
		status, msg = http.StatusForbidden, "view not allowed"
	case errors.Is(err, room.ErrInvalidTransition):
		status, msg = http.StatusConflict, "invalid lifecycle transition"
	case errors.Is(err, room.ErrAlreadyExists):
		status, msg = http.StatusConflict, "already exists"
	case errors.Is(err, viewer.ErrSessionClosed):
		status, msg = http.StatusConflict, "session closed"
	case errors.Is(err, viewer.ErrSessionLimit):
		status, msg = http.StatusTooManyRequests, "too many open viewer sessions"
	case errors.Is(err, access.ErrStorageUnavailable), errors.Is(err, audit.ErrStorageUnavailable):
		status, msg = http.StatusServiceUnavailable, "storage unavailable"
	}

	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "status", status, "err", err)
	}
	body := gin.H{"error": msg}
	if d.Outcome != "" {
		body["decision"] = d
	}
	c.AbortWithStatusJSON(status, body)
}

// --- Auth ---

type tokenRequest struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Party    string `json:"party,omitempty"`
}

// IssueToken mints a token pair for an asserted subject.
//
// NOTE: identity proofing belongs to the upstream identity provider; this
// endpoint is only registered outside production.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.Identity = strings.TrimSpace(req.Identity)
	role, err := rbac.ParseRole(req.Role)
	if req.Identity == "" || err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "identity and a known role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), auth.Subject{Identity: req.Identity, Role: string(role), Party: req.Party})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// Me echoes the verified subject.
func (h Handlers) Me(c *gin.Context) {
	subj, ok := subject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": subj.Identity, "role": subj.Role, "party": auth.Party(c.Request.Context())})
}
