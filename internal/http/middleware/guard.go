package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loopcraft/iamd/internal/rbac"
	"github.com/loopcraft/iamd/internal/repository"
)

// Guard enforces role and permission requirements on authenticated routes.
// The token carries the role IDs held at sign-in; role definitions are loaded
// fresh per request, so a permission edit on a role takes effect immediately
// while the assignment snapshot stays fixed until re-login.
type Guard struct {
	Roles repository.RoleRepository
}

// RequireRole admits callers holding at least one of the named roles. With no
// names, any authenticated caller passes.
func (g *Guard) RequireRole(names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
			return
		}
		if len(names) == 0 {
			c.Next()
			return
		}

		roles, err := g.Roles.ListByIDs(c.Request.Context(), claims.RoleIDs)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "dependency_failure", "error_description": "Role lookup failed."})
			return
		}
		if !rbac.AnyRole(rbac.RoleNames(roles), names) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Insufficient role."})
			return
		}
		c.Next()
	}
}

// RequirePermission admits callers whose effective permission set contains
// the named permission.
func (g *Guard) RequirePermission(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
			return
		}

		roles, err := g.Roles.ListByIDs(c.Request.Context(), claims.RoleIDs)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "dependency_failure", "error_description": "Role lookup failed."})
			return
		}
		if !rbac.Contains(rbac.Union(roles), name) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Insufficient permissions."})
			return
		}
		c.Next()
	}
}
