package middleware

import (
	"venty/internal/utils"
	"venty/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AdminAuth validates admin tokens signed with the admin secret.
func AdminAuth(tokens *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c, false)
		if !ok {
			utils.UnauthorizedResponse(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := tokens.ValidateAdminJWT(tokenString)
		if err != nil {
			logger.LogSecurityEvent("invalid_admin_token", "", c.ClientIP(), map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			utils.UnauthorizedResponse(c, "Invalid admin token")
			c.Abort()
			return
		}

		c.Set(ContextAdminID, claims.AdminID)
		c.Set(ContextAdmin, claims.Username)

		logger.Infof("Admin access: %s -> %s %s", claims.Username, c.Request.Method, c.Request.URL.Path)

		c.Next()
	}
}

// AdminSecurityHeaders adds security headers for admin endpoints
func AdminSecurityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
