package middleware

import (
	"net/http"
	"strings"

	"artemis/auth"

	"github.com/gin-gonic/gin"
)

type MiddlewareManager struct {
	auth *auth.AuthModule
}

func NewMiddlewareManager(auth *auth.AuthModule) *MiddlewareManager {
	return &MiddlewareManager{auth: auth}
}

// RequireAuth accepts "Authorization: Bearer <token>" or a token query
// parameter, which browsers need for websockets. Without a configured
// pairing passphrase every request passes.
func (m *MiddlewareManager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.auth == nil || !m.auth.Enabled() {
			c.Next()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = c.Query("token")
		}
		claims, err := m.auth.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("client_id", claims.Subject)
		c.Next()
	}
}
