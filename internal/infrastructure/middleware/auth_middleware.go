package middleware

import (
	"net/http"
	"strings"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const (
	ContextIdentityID = "identity_id"
	ContextUsername   = "username"
	ContextAdmin      = "admin"
)

// AuthMiddleware authenticates the request's bearer token and stores the
// resolved identity in the gin context.
func AuthMiddleware(identity ports.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		who, err := identity.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextIdentityID, who.ID)
		c.Set(ContextUsername, who.Username)
		c.Set(ContextAdmin, who.Admin)
		c.Next()
	}
}

// AdminMiddleware rejects requests whose identity lacks the admin flag. Must
// run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, exists := c.Get(ContextAdmin)
		if !exists || admin != true {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// IdentityFromContext returns the authenticated identity stored by
// AuthMiddleware, or false when the request is unauthenticated.
func IdentityFromContext(c *gin.Context) (domain.Identity, bool) {
	idVal, exists := c.Get(ContextIdentityID)
	if !exists {
		return domain.Identity{}, false
	}
	id, ok := idVal.(domain.IdentityID)
	if !ok {
		return domain.Identity{}, false
	}
	username, _ := c.Get(ContextUsername)
	admin, _ := c.Get(ContextAdmin)
	name, _ := username.(string)
	isAdmin, _ := admin.(bool)
	return domain.Identity{ID: id, Username: name, Admin: isAdmin}, true
}
