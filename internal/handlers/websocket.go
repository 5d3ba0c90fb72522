package handlers

import (
	"context"
	"net/http"
	"time"

	"venty/internal/config"
	"venty/internal/middleware"
	"venty/internal/services"
	"venty/internal/utils"
	"venty/internal/websocket"
	"venty/pkg/logger"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	service  *services.NegotiationService
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

func NewWebSocketHandler(service *services.NegotiationService, hub *websocket.Hub, cfg config.WebSocketConfig, cors config.CORSConfig) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		hub:     hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     checkOrigin(cfg.CheckOrigin, cors.AllowedOrigins),
		},
	}
}

// checkOrigin accepts any origin unless enabled, then only the CORS list.
func checkOrigin(enabled bool, allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if !enabled {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleConversationWebSocket streams message, agreement and status events of
// ?conversation_id= to a participant. Runs behind SessionAuth.
func (h *WebSocketHandler) HandleConversationWebSocket(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "conversation_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	_, err := h.service.GetConversation(ctx, conversationID, userID)
	cancel()
	if err != nil {
		respondError(c, err, "open live updates")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Warnf("Failed to upgrade WebSocket connection for %s", userID)
		return
	}

	client := websocket.NewClient(conn, h.hub, userID, conversationID)
	client.IP = c.ClientIP()

	if !h.hub.Join(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
