package routes

import (
	"venty/internal/handlers"
	"venty/internal/middleware"
	"venty/internal/utils"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes mounts the live conversation feed. Browsers cannot set
// headers on WebSocket upgrades, so SessionAuth also accepts ?session_token=.
func SetupWebSocketRoutes(group *gin.RouterGroup, tokens *utils.TokenManager, wsHandler *handlers.WebSocketHandler) {
	group.GET("/ws", middleware.SessionAuth(tokens), wsHandler.HandleConversationWebSocket)
}
