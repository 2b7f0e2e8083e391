// Package rbac gates destructive endpoints by role. The role model is
// deliberately small: every authenticated operator is staff; admin is
// required for bulk-destructive actions.
package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// roleKey is the gin context key populated by the access-token middleware.
const roleKey = "role"

// RequireAnyRole aborts with 403 unless the authenticated identity carries
// one of the given roles. Must run after the access-token middleware.
func RequireAnyRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(roleKey)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role missing"})
			return
		}
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}
