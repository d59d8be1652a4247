package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-tracker/internal/observability"
	"github.com/yungbote/roadmap-tracker/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/platform/ratelimit"
)

// RateLimit keys on the authenticated user when present, else the client IP.
// Limiter errors fail open.
func RateLimit(log *logger.Logger, lim ratelimit.Limiter, m *observability.Metrics) gin.HandlerFunc {
	if lim == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("Middleware", "RateLimit")
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid := ctxutil.UserID(c.Request.Context()); uid != "" {
			key = "user:" + uid
		}
		ok, wait, err := lim.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !ok {
			m.IncRateLimited(c.FullPath())
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"message": "too many requests", "code": "rate_limited"},
			})
			return
		}
		c.Next()
	}
}
