package handlers

import (
	"context"
	"net/http"
	"time"

	"venty/internal/websocket"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency; a nil error means healthy.
type HealthCheck = func(ctx context.Context) error

type HealthHandler struct {
	version string
	started time.Time
	hub     *websocket.Hub
	checks  map[string]HealthCheck
}

func NewHealthHandler(version string, hub *websocket.Hub, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{
		version: version,
		started: time.Now(),
		hub:     hub,
		checks:  checks,
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":       status,
		"version":      version(h.version),
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"dependencies": deps,
		"timestamp":    time.Now(),
	}
	if h.hub != nil {
		body["websocket_clients"] = h.hub.ClientCount()
	}
	c.JSON(code, body)
}

func version(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}
