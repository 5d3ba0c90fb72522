package routes

import (
	"venty/internal/handlers"
	"venty/internal/middleware"
	"venty/internal/utils"

	"github.com/gin-gonic/gin"
)

func SetupAdminRoutes(group *gin.RouterGroup, tokens *utils.TokenManager, adminHandler *handlers.AdminHandler, production bool) {
	admin := group.Group("/admin")
	admin.Use(middleware.AdminSecurityHeaders(production))

	admin.POST("/login", adminHandler.Login)

	protected := admin.Group("/")
	protected.Use(middleware.AdminAuth(tokens))
	{
		protected.GET("/violations/:user_id", adminHandler.GetViolations)
		protected.DELETE("/violations/:user_id", adminHandler.ResetViolations)
		protected.POST("/conversations/:id/close", adminHandler.CloseConversation)
	}
}
