package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venty/internal/config"
	"venty/internal/moderation"
	"venty/internal/routes"
	"venty/internal/services"
	"venty/internal/storage"
	"venty/internal/utils"
	"venty/internal/violation"
	"venty/internal/websocket"
	"venty/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	logger.Init()
	defer logger.Close()
	if envErr != nil {
		logger.Info("No .env file found, using process environment")
	}

	cfg := config.Load()
	cfg.ApplyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer backends.Close()

	filter, err := moderation.NewFilter(cfg.Moderation.Rules())
	if err != nil {
		logger.Fatalf("Invalid moderation rules: %v", err)
	}
	counter := violation.NewCounter(backends.Violations, cfg.Violations.CounterOptions())

	hub := websocket.NewHub(cfg.Server.WebSocket)
	go hub.Run(ctx)

	service := services.NewNegotiationService(backends.Conversations, filter, counter, services.Options{
		MaxMessageLength: cfg.Negotiation.MaxMessageLength,
		DisplayLocation:  cfg.Negotiation.Location(),
		Notifier:         hub,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	stopLimiters := routes.SetupRoutes(router, routes.Dependencies{
		Config:       cfg,
		Service:      service,
		Hub:          hub,
		Tokens:       utils.NewTokenManager(cfg.Security.JWT),
		HealthChecks: backends.Checks,
	})
	defer stopLimiters()

	srv := &http.Server{
		Addr:           net.JoinHostPort(cfg.Server.HTTP.Host, cfg.Server.HTTP.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.HTTP.ReadTimeout,
		WriteTimeout:   cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:    cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.Server.HTTP.MaxHeaderBytes,
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":            srv.Addr,
			"environment":     cfg.App.Environment,
			"violation_scope": counter.Scope(),
			"suspend_after":   counter.SuspendAfter(),
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}
