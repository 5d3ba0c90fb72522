package middleware

import (
	"strings"

	"venty/internal/utils"
	"venty/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware.
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
	ContextAdminID  = "admin_id"
	ContextAdmin    = "admin_username"
	// ContextUserClaims holds the *utils.UserClaims of the session.
	ContextUserClaims = "user_claims"
)

// SessionAuth validates the bearer token issued by the marketplace identity
// service. WebSocket clients may pass it as ?session_token= instead.
func SessionAuth(tokens *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c, true)
		if !ok {
			utils.UnauthorizedResponse(c, "Missing session token")
			c.Abort()
			return
		}

		claims, err := tokens.ValidateUserJWT(tokenString)
		if err != nil {
			logger.LogSecurityEvent("invalid_session_token", "", c.ClientIP(), map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			utils.UnauthorizedResponse(c, "Invalid session token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserClaims, claims)
		c.Next()
	}
}

// bearerToken extracts "Bearer <token>" from the Authorization header, or
// the session_token query parameter when allowQuery is set.
func bearerToken(c *gin.Context, allowQuery bool) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if !allowQuery {
			return "", false
		}
		token := c.Query("session_token")
		return token, token != ""
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}
