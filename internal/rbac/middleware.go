package rbac

import (
	"net/http"

	"dataroom/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireSubject enforces that the authentication layer supplied a verified
// identity and a recognised role.
func RequireSubject() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.Identity(c.Request.Context())
		if err != nil || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "subject identity required"})
			return
		}
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if _, err := ParseRole(role); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown role"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole is coarse route-level gating for read surfaces such as the
// audit trail. It never replaces the decision engine; admin commands are not
// gated here so a blocked attempt is still audited. ADMIN bypasses all checks.
func RequireAnyRole(allowed ...Role) gin.HandlerFunc {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		raw, err := auth.Role(c.Request.Context())
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		role, err := ParseRole(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		if role == RoleAdmin {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
