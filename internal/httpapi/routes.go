package httpapi

import (
	"dataroom/internal/rbac"

	"github.com/gin-gonic/gin"
)

type RouteOptions struct {
	// DevTokens exposes POST /v1/auth/token. Never enable in production.
	DevTokens bool
}

// Register mounts the /v1 API. authMW must verify the bearer token and put
// the subject into the request context.
func (h Handlers) Register(r gin.IRouter, authMW gin.HandlerFunc, opts RouteOptions) {
	if opts.DevTokens {
		r.POST("/v1/auth/token", h.IssueToken)
	}

	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireSubject())
	{
		v1.GET("/me", h.Me)

		// ROOM routes
		v1.POST("/rooms", rbac.RequireAnyRole(rbac.RoleIssuer), h.CreateRoom)
		rooms := v1.Group("/rooms/:room_id")
		{
			rooms.GET("", h.GetRoom)
			rooms.POST("/decisions", h.Decide)
			rooms.POST("/documents", h.RegisterDocument)
			rooms.POST("/documents/:document_id/sessions", h.OpenSession)
			rooms.POST("/grants", h.Invite)
			rooms.GET("/grants", rbac.RequireAnyRole(rbac.RoleIssuer), h.ListGrants)
			rooms.POST("/navigation", h.RecordNavigation)
			rooms.GET("/audit", rbac.RequireAnyRole(rbac.RoleIssuer), h.QueryAudit)
			rooms.GET("/audit/summary", rbac.RequireAnyRole(rbac.RoleIssuer), h.RoomSummary)
		}

		// VIEWER routes
		sessions := v1.Group("/sessions/:session_id")
		{
			sessions.GET("", h.GetSession)
			sessions.POST("/interactions", h.Interact)
			sessions.DELETE("", h.CloseSession)
		}

		// ADMIN routes
		// Not role-gated: the engine decides and audits blocked attempts.
		admin := v1.Group("/admin")
		{
			admin.POST("/rooms/:room_id/legal-hold", h.AdminRoomCommand(rbac.ActionApplyLegalHold))
			admin.POST("/rooms/:room_id/legal-hold/release", h.AdminRoomCommand(rbac.ActionReleaseLegalHold))
			admin.POST("/rooms/:room_id/soft-delete", h.AdminRoomCommand(rbac.ActionForceSoftDelete))
			admin.POST("/rooms/:room_id/hard-delete", h.AdminRoomCommand(rbac.ActionForceHardDelete))
			admin.POST("/grants/:grant_id/revoke", h.RevokeGrant)
			admin.GET("/subjects/:identity/activity", rbac.RequireAnyRole(), h.SubjectActivity)
		}
	}
}
