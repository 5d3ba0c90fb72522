package middleware

import (
	"strconv"
	"time"

	"venty/internal/metrics"
	"venty/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Logger logs each request through logrus and records HTTP metrics.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()

		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())

		logger.LogRequest(c.Request.Method, c.Request.URL.Path, c.ClientIP(), duration, status)
	}
}
