package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatvault/internal/ratelimit"
	"chatvault/internal/transport/http/response"
)

// RequestLimit throttles requests per client IP through the shared redis
// fixed-window limiter. Quota (usage counter) limits are enforced in the
// service layer; this guards the transport itself.
func RequestLimit(limiter *ratelimit.FixedWindowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			response.Error(c, http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
