package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"venty/internal/metrics"
	"venty/internal/utils"

	"github.com/gin-gonic/gin"
)

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	capacity float64
	refill   float64 // tokens per second
	cleanup  time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	tokens   float64
	lastTime time.Time
}

// NewRateLimiter allows requests per window, refilled continuously.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		capacity: float64(requests),
		refill:   float64(requests) / window.Seconds(),
		cleanup:  3 * window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.cleanupVisitors()
	return rl
}

// Limit reports the bucket capacity.
func (rl *RateLimiter) Limit() int {
	return int(rl.capacity)
}

// Allow consumes a token for key and returns the remaining tokens.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.capacity, lastTime: now}
		rl.visitors[key] = v
	}

	elapsed := now.Sub(v.lastTime).Seconds()
	v.lastTime = now
	v.tokens = math.Min(rl.capacity, v.tokens+elapsed*rl.refill)

	if v.tokens < 1 {
		return false, 0
	}
	v.tokens--
	return true, int(v.tokens)
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, v := range rl.visitors {
				if now.Sub(v.lastTime) > rl.cleanup {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimit limits requests per client. endpoint labels the metric.
func RateLimit(limiter *RateLimiter, endpoint string) gin.HandlerFunc {
	return rateLimit(limiter, endpoint, getClientKey, "Rate limit exceeded")
}

// ChatRateLimit limits message sends and agreement toggles per user. Must run
// after SessionAuth.
func ChatRateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return rateLimit(limiter, "chat", getClientKey, "Chat rate limit exceeded")
}

func rateLimit(limiter *RateLimiter, endpoint string, keyFunc func(*gin.Context) string, message string) gin.HandlerFunc {
	limit := strconv.Itoa(limiter.Limit())
	return func(c *gin.Context) {
		allowed, remaining := limiter.Allow(keyFunc(c))
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			c.Header("Retry-After", "60")
			utils.ErrorResponse(c, http.StatusTooManyRequests, message)
			c.Abort()
			return
		}

		c.Next()
	}
}

// getClientKey prefers the authenticated user over the client IP.
func getClientKey(c *gin.Context) string {
	if userID := c.GetString(ContextUserID); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}
