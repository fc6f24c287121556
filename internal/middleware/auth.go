package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridez/internal/auth"
	"ridez/internal/domain"
)

// Context keys set by Authenticate.
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// TokenParser validates a bearer token and returns its claims.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication credentials were not provided"})
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireRole allows the request only when the caller's role equals role.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "you do not have permission to perform this action"})
			return
		}
		c.Next()
	}
}

// CallerRole returns the role stored by Authenticate, or "" when absent.
func CallerRole(c *gin.Context) domain.Role {
	role, _ := c.Get(ContextUserRole)
	r, _ := role.(domain.Role)
	return r
}
