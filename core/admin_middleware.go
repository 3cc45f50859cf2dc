package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAuthenticated rejects requests without a bound principal.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentPrincipal(c); !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole ensures the principal carries role. Anonymous requests get 401.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			c.Abort()
			return
		}
		if !p.HasRole(role) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "insufficient privileges")
			c.Abort()
			return
		}
		c.Next()
	}
}
