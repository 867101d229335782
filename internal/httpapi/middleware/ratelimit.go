package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sqlrag.app/engine/internal/ratelimit"
)

// RateLimit rejects requests past the per-IP token budget with 429.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
