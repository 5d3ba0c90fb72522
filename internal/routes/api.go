package routes

import (
	"venty/internal/config"
	"venty/internal/handlers"
	"venty/internal/middleware"
	"venty/internal/services"
	"venty/internal/utils"
	"venty/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the wired components the routes serve.
type Dependencies struct {
	Config       *config.Config
	Service      *services.NegotiationService
	Hub          *websocket.Hub
	Tokens       *utils.TokenManager
	HealthChecks map[string]handlers.HealthCheck
}

// SetupRoutes registers every route. The returned func stops the rate limiter
// janitors.
func SetupRoutes(router *gin.Engine, deps Dependencies) func() {
	cfg := deps.Config
	timeout := cfg.Server.HTTP.RequestTimeout

	negotiationHandler := handlers.NewNegotiationHandler(deps.Service, cfg.Negotiation, timeout)
	adminHandler := handlers.NewAdminHandler(deps.Service, deps.Tokens, cfg.Admin, timeout)
	wsHandler := handlers.NewWebSocketHandler(deps.Service, deps.Hub, cfg.Server.WebSocket, cfg.Server.CORS)
	healthHandler := handlers.NewHealthHandler(cfg.App.Version, deps.Hub, deps.HealthChecks)

	// Global middleware
	router.Use(middleware.CORS(cfg.Server.CORS))
	router.Use(middleware.Logger())

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := cfg.Security.RateLimit
	apiLimiter := middleware.NewRateLimiter(rl.Requests, rl.Window)
	chatLimiter := middleware.NewRateLimiter(rl.ChatRequests, rl.ChatWindow)
	limit := func(h gin.HandlerFunc) gin.HandlerFunc {
		if !rl.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return h
	}

	v1 := router.Group("/api/v1")
	v1.Use(limit(middleware.RateLimit(apiLimiter, "api")))
	{
		user := v1.Group("/")
		user.Use(middleware.SessionAuth(deps.Tokens))
		{
			user.POST("/conversations", negotiationHandler.OpenConversation)
			user.GET("/conversations/:id", negotiationHandler.GetConversation)
			user.GET("/conversations/:id/messages", negotiationHandler.ListMessages)
			user.POST("/conversations/:id/messages", limit(middleware.ChatRateLimit(chatLimiter)), negotiationHandler.SendMessage)
			user.POST("/conversations/:id/agreement", limit(middleware.ChatRateLimit(chatLimiter)), negotiationHandler.ToggleAgreement)
			user.GET("/conversations/:id/contacts", negotiationHandler.GetContacts)
			user.POST("/conversations/:id/close", negotiationHandler.CloseConversation)
			user.GET("/violations/me", negotiationHandler.GetMyViolations)
		}

		SetupWebSocketRoutes(v1, deps.Tokens, wsHandler)
		SetupAdminRoutes(v1, deps.Tokens, adminHandler, cfg.App.Environment == "production")
	}

	return func() {
		apiLimiter.Stop()
		chatLimiter.Stop()
	}
}
