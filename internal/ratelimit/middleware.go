package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Middleware enforces the configured per-client request limit. A zero limit
// disables enforcement; limiter backend errors fail open.
func Middleware(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			c.Next()
			return
		}

		limit := manager.provider().Limit
		if limit <= 0 {
			c.Next()
			return
		}

		key := ClientKey(c.ClientIP())
		result, errAllow := manager.Allow(c.Request.Context(), key, limit)
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit: check failed, allowing request")
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Next()
	}
}
