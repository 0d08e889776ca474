// README: Auth middleware resolving bearer tokens to user ids.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cartpool/internal/types"
)

const userIDKey = "auth_user_id"

// SessionResolver maps a session token to its user id. Implemented by
// the session manager; tests plug in a stub.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (types.UserID, error)
}

// Auth requires a valid "Authorization: Bearer <token>" header and
// stores the resolved user id in the request context.
func Auth(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user set by Auth.
func UserID(c *gin.Context) types.UserID {
	v, ok := c.Get(userIDKey)
	if !ok {
		panic("middleware: UserID called on unauthenticated route")
	}
	return v.(types.UserID)
}

// Token extracts the bearer token, empty when absent.
func Token(c *gin.Context) string {
	token, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return token
}
