package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func RateLimitMiddleware(rps float64) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))

	return func(c *gin.Context) {
		// health checks are never limited
		if c.FullPath() == "/health" {
			c.Next()
			return
		}
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
